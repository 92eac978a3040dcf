package store

import (
	"context"
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/chain"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
)

// ArchivedEvent is an audit event as persisted by an EvidenceStore.
type ArchivedEvent struct {
	RunID              string
	Seq                int64
	EventID            string
	Timestamp          time.Time
	Action             string
	Risk               string
	State              string
	Ghost              bool
	Summary            string
	RawLog             string
	PrevHash           string
	Hash               string
	TimestampSignature string
	Signature          string
	ThoughtSignature   string
	RelatedMessageID   string
}

// Archive converts a ledger event for storage.
func Archive(runID string, ev ledger.AuditEvent) ArchivedEvent {
	return ArchivedEvent{
		RunID:              runID,
		Seq:                ev.Seq,
		EventID:            ev.ID,
		Timestamp:          ev.Timestamp,
		Action:             ev.Action,
		Risk:               string(ev.Risk),
		State:              string(ev.State()),
		Ghost:              ev.Ghost(),
		Summary:            ev.Summary,
		RawLog:             ev.RawLog,
		PrevHash:           ev.PrevHash,
		Hash:               ev.Hash,
		TimestampSignature: ev.TimestampSignature,
		Signature:          ev.Signature(),
		ThoughtSignature:   ev.ThoughtSignature,
		RelatedMessageID:   ev.RelatedMessageID,
	}
}

// ChainRecord returns the hashed view used for verification.
func (e ArchivedEvent) ChainRecord() chain.Record {
	return chain.Record{
		Link:     chain.Link{Action: e.Action, Summary: e.Summary, Timestamp: e.Timestamp},
		PrevHash: e.PrevHash,
		Hash:     e.Hash,
	}
}

// EvidenceStore is an append-only archive of exported audit events. Appending
// an event already archived under the same (run id, seq) is a no-op.
type EvidenceStore interface {
	AppendEvents(ctx context.Context, events []ArchivedEvent) error
	// LastSeq returns the highest archived seq for runID, or 0.
	LastSeq(ctx context.Context, runID string) (int64, error)
	// ListEvents returns the archived events of runID in seq order.
	ListEvents(ctx context.Context, runID string) ([]ArchivedEvent, error)
}

// VerifyRun recomputes the chain of one archived run.
func VerifyRun(ctx context.Context, s EvidenceStore, runID string) (int, error) {
	events, err := s.ListEvents(ctx, runID)
	if err != nil {
		return 0, err
	}
	records := make([]chain.Record, len(events))
	for i, ev := range events {
		records[i] = ev.ChainRecord()
	}
	return len(records), chain.Verify(records)
}
