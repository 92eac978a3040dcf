// Package conversation owns the message list and derives the context that
// is handed to the generator.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
)

type Role = authority.Role

const (
	RoleUser  = authority.RoleUser
	RoleAgent = authority.RoleAgent
)

// Status is the message lifecycle state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusCommitted   Status = "committed"
	StatusQuarantined Status = "quarantined"
)

var (
	ErrNotFound          = errors.New("message not found")
	ErrInvalidTransition = errors.New("invalid message transition")
)

// Message is a snapshot of one conversation message. Proof is non-nil only
// while Status is committed.
type Message struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
	Subject   string
	Status    Status
	Proof     *authority.Proof
}

// Signed reports whether m is committed with a proof.
func (m Message) Signed() bool { return m.Status == StatusCommitted && m.Proof != nil }

// Unsigned reports whether m was committed without a proof (ghost input).
func (m Message) Unsigned() bool { return m.Status == StatusCommitted && m.Proof == nil }

func (m Message) clone() Message {
	if m.Proof != nil {
		p := *m.Proof
		m.Proof = &p
	}
	return m
}

// Repository is the single owner of message state. Callers only ever see
// copies.
type Repository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Message
	now   func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		byID: make(map[string]*Message),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a draft. An empty subject gets a default derived from the role.
func (r *Repository) Create(role Role, text, subject string) Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subject == "" && role == RoleUser {
		subject = fmt.Sprintf("RE: Project-Alpha-%d", len(r.order))
	}
	m := &Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: r.now(),
		Subject:   subject,
		Status:    StatusDraft,
	}
	r.order = append(r.order, m.ID)
	r.byID[m.ID] = m
	return m.clone()
}

// Get returns the message with the given id.
func (r *Repository) Get(id string) (Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

// List returns every message in arrival order.
func (r *Repository) List() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id].clone()
	}
	return out
}

// Len returns the number of messages.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Commit moves a draft to committed. A nil proof records an unsigned
// (ghost) commit.
func (r *Repository) Commit(id string, proof *authority.Proof) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.Status != StatusDraft {
		return Message{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusCommitted)
	}
	m.Status = StatusCommitted
	if proof != nil {
		p := *proof
		m.Proof = &p
	}
	return m.clone(), nil
}

// Quarantine moves a draft or committed message to quarantined and drops its
// proof. It returns the message as it was before the transition.
func (r *Repository) Quarantine(id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.Status == StatusQuarantined {
		return Message{}, fmt.Errorf("%w: already %s", ErrInvalidTransition, StatusQuarantined)
	}
	before := m.clone()
	m.Status = StatusQuarantined
	m.Proof = nil
	return before, nil
}

// SetText replaces the text of a draft. Agent drafts are created before the
// generator returns.
func (r *Repository) SetText(id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.Status != StatusDraft {
		return fmt.Errorf("%w: text of %s message is fixed", ErrInvalidTransition, m.Status)
	}
	m.Text = text
	return nil
}
