// Package ledger is the append-only, hash-linked audit trail.
//
// Every governance-relevant transition is recorded as an AuditEvent. Events
// are never edited or removed; the ledger hands out copies only. Appends are
// serialized by a single mutex so two events can never claim the same
// prev_hash.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/chain"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
)

var (
	ErrNoTransition = errors.New("audit record requires a transition")
	ErrInvalidRisk  = errors.New("audit record has unknown risk tier")
	ErrNoAction     = errors.New("audit record requires an action")
)

// Record is the input to Ledger.Record.
type Record struct {
	Action           string
	Risk             policy.Risk
	Transition       Transition
	Summary          string // human-readable, distinct from the raw evidence
	Evidence         Fields
	ThoughtSignature string
	RelatedMessageID string
}

// AuditEvent is a stored ledger entry.
type AuditEvent struct {
	ID                 string
	Seq                int64
	Timestamp          time.Time
	Action             string
	Risk               policy.Risk
	Transition         Transition
	Summary            string
	Evidence           Fields
	RawLog             string
	PrevHash           string
	Hash               string
	TimestampSignature string
	ThoughtSignature   string
	RelatedMessageID   string
}

// State returns the lifecycle state of the event's transition.
func (e AuditEvent) State() State { return e.Transition.State() }

// Signature returns the proof signature of a committed event, or "".
func (e AuditEvent) Signature() string {
	if c, ok := e.Transition.(Committed); ok {
		return c.Signature
	}
	return ""
}

// Ghost reports whether the event records unsigned input admitted while
// authority was absent.
func (e AuditEvent) Ghost() bool {
	d, ok := e.Transition.(Draft)
	return ok && d.Ghost
}

// ChainRecord returns the hashed view of the event.
func (e AuditEvent) ChainRecord() chain.Record {
	return chain.Record{
		Link:     chain.Link{Action: e.Action, Summary: e.Summary, Timestamp: e.Timestamp},
		PrevHash: e.PrevHash,
		Hash:     e.Hash,
	}
}

func (e AuditEvent) clone() AuditEvent {
	e.Evidence = e.Evidence.clone()
	return e
}

// Ledger stores audit events in append order.
type Ledger struct {
	mu     sync.RWMutex
	runID  string
	chain  *chain.Chain
	events []AuditEvent
	byID   map[string]int
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty ledger rooted at chain.Genesis.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		runID: uuid.NewString(),
		chain: chain.New(),
		byID:  make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RunID identifies this ledger instance. Exported archives key events by
// (run id, seq) because the in-memory chain restarts at Genesis.
func (l *Ledger) RunID() string { return l.runID }

// Record appends an event and returns a copy of it.
func (l *Ledger) Record(rec Record) (AuditEvent, error) {
	if rec.Transition == nil {
		return AuditEvent{}, ErrNoTransition
	}
	if !rec.Risk.Valid() {
		return AuditEvent{}, fmt.Errorf("%w: %q", ErrInvalidRisk, rec.Risk)
	}
	if strings.TrimSpace(rec.Action) == "" {
		return AuditEvent{}, ErrNoAction
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	hash, prev := l.chain.Append(chain.Link{Action: rec.Action, Summary: rec.Summary, Timestamp: ts})
	tsSig := timestampSignature(ts)

	evidence := buildEvidence(hash, prev, tsSig, rec.ThoughtSignature, rec.Evidence)
	raw, err := evidence.Render()
	if err != nil {
		// Evidence values come from the caller; an unencodable value is
		// replaced rather than leaving a hole in the chain.
		raw = fmt.Sprintf(`{"render_error": %q}`, err.Error())
	}

	ev := AuditEvent{
		ID:                 eventID(),
		Seq:                int64(len(l.events) + 1),
		Timestamp:          ts,
		Action:             rec.Action,
		Risk:               rec.Risk,
		Transition:         rec.Transition,
		Summary:            rec.Summary,
		Evidence:           evidence,
		RawLog:             raw,
		PrevHash:           prev,
		Hash:               hash,
		TimestampSignature: tsSig,
		ThoughtSignature:   rec.ThoughtSignature,
		RelatedMessageID:   rec.RelatedMessageID,
	}

	l.byID[ev.ID] = len(l.events)
	l.events = append(l.events, ev)
	return ev.clone(), nil
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Tip returns the current chain tip.
func (l *Ledger) Tip() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain.Tip()
}

// Get returns the event with the given id.
func (l *Ledger) Get(id string) (AuditEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return AuditEvent{}, false
	}
	return l.events[i].clone(), true
}

// Snapshot returns a copy of every event in append order.
func (l *Ledger) Snapshot() []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AuditEvent, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.clone()
	}
	return out
}

// ForMessage returns the events related to a message, in append order.
func (l *Ledger) ForMessage(messageID string) []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []AuditEvent
	for _, ev := range l.events {
		if ev.RelatedMessageID == messageID {
			out = append(out, ev.clone())
		}
	}
	return out
}

// EntriesSince yields events whose Seq is greater than cursor. The sequence
// is lazy, bounded by the ledger length when iteration starts, and may be
// ranged over again to restart from the same cursor.
func (l *Ledger) EntriesSince(cursor int64) iter.Seq[AuditEvent] {
	return func(yield func(AuditEvent) bool) {
		if cursor < 0 {
			cursor = 0
		}
		end := int64(l.Len())
		for i := cursor; i < end; i++ {
			l.mu.RLock()
			ev := l.events[i].clone()
			l.mu.RUnlock()
			if !yield(ev) {
				return
			}
		}
	}
}

// Verify recomputes the chain from Genesis. A non-nil error is a
// *chain.IntegrityError and means the single-writer discipline was broken.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	records := make([]chain.Record, len(l.events))
	for i, ev := range l.events {
		records[i] = ev.ChainRecord()
	}
	tip := l.chain.Tip()
	l.mu.RUnlock()

	if err := chain.Verify(records); err != nil {
		return err
	}
	if len(records) > 0 && records[len(records)-1].Hash != tip {
		return &chain.IntegrityError{Index: len(records) - 1, Reason: "tip does not match last event"}
	}
	return nil
}

func eventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "evt_" + id.String()
}

// timestampSignature is the simulated timestamp-authority token.
func timestampSignature(ts time.Time) string {
	return "TSA-" + ts.Format("2006-01-02T15:04:05.000Z07:00") + "-" + uuid.NewString()[:8]
}
