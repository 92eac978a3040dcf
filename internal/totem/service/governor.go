package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/metrics"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
)

var (
	ErrEmptyText            = errors.New("text is required")
	ErrInvalidRole          = errors.New("role must be user or agent")
	ErrAuthorizationAborted = errors.New("authorization aborted; message left in draft")
	ErrGenerationFailed     = errors.New("generation failed")

	ErrUnknownMessage    = conversation.ErrNotFound
	ErrInvalidTransition = conversation.ErrInvalidTransition
)

// Audit actions.
const (
	ActionInferenceRequest   = "Inference Request"
	ActionGhostInput         = "User Input (Ghost Mode)"
	ActionTransactionBlocked = "Transaction Blocked"
	ActionPolicyViolation    = "Policy Violation"
	ActionAIResponse         = "AI Response Generation"
	ActionAIBlocked          = "AI Output Blocked"
	ActionAIFailed           = "AI Inference Failed"
	ActionContextQuarantined = "Context Quarantined"
)

// Outcome is the result of one admission attempt.
type Outcome struct {
	Message  conversation.Message
	Decision policy.Decision
	// Event is the ledger entry written for the transition; nil when the
	// attempt was aborted without one.
	Event *ledger.AuditEvent
	// Notice is the operator-facing explanation for anything but a signed
	// commit.
	Notice string
}

type SubmitRequest struct {
	Role    conversation.Role // defaults to user
	Text    string
	Subject string
}

// Deps are the collaborators of a Governor. Ledger, Policy, Gate and
// Messages are required.
type Deps struct {
	Ledger    *ledger.Ledger
	Policy    *policy.Engine
	Gate      *authority.Gate
	Messages  *conversation.Repository
	Generator generation.Generator
	Metrics   *metrics.Metrics
	Logger    *log.Logger

	DefaultModel string
}

// Governor is the message state machine. Admissions are serialized: the
// coordinator lock is held from the policy decision through proof
// attachment, so two drafts never interleave their ledger entries.
type Governor struct {
	mu sync.Mutex

	ledger   *ledger.Ledger
	policy   *policy.Engine
	gate     *authority.Gate
	messages *conversation.Repository
	gen      generation.Generator
	metrics  *metrics.Metrics
	logger   *log.Logger
	model    string

	ghosts atomic.Int64
}

func NewGovernor(d Deps) *Governor {
	g := &Governor{
		ledger:   d.Ledger,
		policy:   d.Policy,
		gate:     d.Gate,
		messages: d.Messages,
		gen:      d.Generator,
		metrics:  d.Metrics,
		logger:   d.Logger,
		model:    d.DefaultModel,
	}
	if g.gen == nil {
		g.gen = generation.Offline{}
	}
	if g.logger == nil {
		g.logger = log.New(io.Discard, "", 0)
	}
	if g.model == "" {
		g.model = generation.DefaultModel
	}
	g.gate.Watch(func(s authority.Status) {
		g.metrics.SetAuthorityConnected(s.Connected())
	})
	return g
}

// Submit creates a draft and runs it through admission. Draft creation is
// only logged; the ledger entry is written by the admission outcome, so each
// submit leaves at most one audit event.
func (g *Governor) Submit(ctx context.Context, req SubmitRequest) (Outcome, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Outcome{}, ErrEmptyText
	}
	role := req.Role
	if role == "" {
		role = conversation.RoleUser
	}
	if !role.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	msg := g.messages.Create(role, req.Text, req.Subject)
	g.metrics.IncrementTransition(string(role), string(conversation.StatusDraft))
	g.logger.Printf("governor: buffer initialized %s [DRAFT] role=%s", msg.ID, role)

	return g.admit(ctx, msg.ID, agentMeta{})
}

// Retry re-runs admission for a draft left behind by an aborted
// authorization.
func (g *Governor) Retry(ctx context.Context, id string) (Outcome, error) {
	return g.admit(ctx, id, agentMeta{})
}

// agentMeta carries generator output into the agent's ledger evidence.
type agentMeta struct {
	model            string
	thoughtSignature string
	replyTo          string
}

func (g *Governor) admit(ctx context.Context, id string, meta agentMeta) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	msg, ok := g.messages.Get(id)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if msg.Status != conversation.StatusDraft {
		return Outcome{Message: msg}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, msg.Status)
	}

	if !g.gate.Connected() {
		if msg.Role == conversation.RoleAgent {
			return g.blockAgent(msg, "Device Disconnected during generation")
		}
		return g.commitGhost(msg)
	}

	decision := g.policy.Evaluate(msg.Text)
	g.metrics.IncrementPolicyDecision(decision.RuleID, decision.Blocked)
	if decision.Blocked {
		return g.quarantineBlocked(msg, decision)
	}

	start := time.Now()
	proof, ok := g.gate.Authorize(ctx, authority.Request{Role: msg.Role, MessageID: msg.ID, Content: msg.Text})
	g.metrics.ObserveAuthorization(string(msg.Role), ok, time.Since(start))
	if !ok {
		if msg.Role == conversation.RoleAgent {
			return g.blockAgent(msg, "Device Disconnected during generation")
		}
		g.logger.Printf("governor: authorization for %s aborted; left in draft", msg.ID)
		return Outcome{Message: msg, Decision: decision, Notice: "Authorization aborted. Message remains a draft."}, ErrAuthorizationAborted
	}

	committed, err := g.messages.Commit(msg.ID, &proof)
	if err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(msg.Role), string(conversation.StatusCommitted))

	// A rule may flag without blocking; the flag's tier is kept on the event.
	rec := ledger.Record{
		Risk:             decision.Risk,
		Transition:       ledger.Committed{Signature: proof.Signature},
		RelatedMessageID: msg.ID,
	}
	if msg.Role == conversation.RoleAgent {
		rec.Action = ActionAIResponse
		rec.Summary = "AI Output generated and signed."
		rec.ThoughtSignature = meta.thoughtSignature
		rec.Evidence = ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F(ledger.KeyProofID, proof.ID),
			ledger.F(ledger.KeyFullText, msg.Text),
			ledger.F("model", meta.model),
			ledger.F("response_length", len(msg.Text)),
			ledger.F("reply_to", meta.replyTo),
		}
	} else {
		rec.Action = ActionInferenceRequest + ": " + preview(msg.Text, 20)
		rec.Summary = "User input verified via Totem Hardware Key."
		rec.Evidence = ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F(ledger.KeyProofID, proof.ID),
			ledger.F(ledger.KeyFullText, msg.Text),
			ledger.F("content_hash", proof.Headers.ContentHash),
		}
	}
	if decision.RuleID != "" {
		rec.Evidence = append(rec.Evidence, ledger.F("flagged_by", decision.RuleID))
	}
	ev, err := g.record(rec)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: committed, Decision: decision, Event: &ev}, nil
}

func (g *Governor) commitGhost(msg conversation.Message) (Outcome, error) {
	committed, err := g.messages.Commit(msg.ID, nil)
	if err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(msg.Role), string(conversation.StatusCommitted))
	g.metrics.SetGhostInputs(int(g.ghosts.Add(1)))

	ev, err := g.record(ledger.Record{
		Action:     ActionGhostInput,
		Risk:       policy.RiskLow,
		Transition: ledger.Draft{Ghost: true},
		Summary:    "Logged input event. AI response blocked. Totem required.",
		Evidence: ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F("input_preview", preview(msg.Text, 50)),
			ledger.F("hardware_status", string(authority.Disconnected)),
		},
		RelatedMessageID: msg.ID,
	})
	if err != nil {
		return Outcome{}, err
	}
	g.logger.Printf("governor: %s admitted unsigned (ghost input)", msg.ID)
	return Outcome{
		Message:  committed,
		Decision: policy.Allowed,
		Event:    &ev,
		Notice:   "Logged (State: DRAFT). AI response blocked. Totem required.",
	}, nil
}

func (g *Governor) quarantineBlocked(msg conversation.Message, d policy.Decision) (Outcome, error) {
	if _, err := g.messages.Quarantine(msg.ID); err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(msg.Role), string(conversation.StatusQuarantined))

	rec := ledger.Record{
		Risk:             policy.RiskHigh,
		Transition:       ledger.Quarantined{},
		RelatedMessageID: msg.ID,
	}
	var notice string
	if d.RuleID == policy.TransferLimitID {
		rec.Action = ActionTransactionBlocked
		rec.Summary = "Policy Engine intercepted high-value transfer."
		rec.Evidence = ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F(ledger.KeyFullText, msg.Text),
			ledger.F("intent", "transfer_funds"),
			ledger.F("amount", d.Amount),
			ledger.F("rule", d.RuleID),
			ledger.F("risk", string(d.Risk)),
		}
		notice = "COMMAND BLOCKED. Policy Engine has flagged this transaction exceeds the $100 auto-approval limit."
	} else {
		rec.Action = ActionPolicyViolation
		rec.Summary = "Policy Engine blocked message: " + d.Reason
		rec.Evidence = ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F(ledger.KeyFullText, msg.Text),
			ledger.F("rule", d.RuleID),
			ledger.F("reason", d.Reason),
			ledger.F("risk", string(d.Risk)),
		}
		notice = "COMMAND BLOCKED. " + d.Reason
	}

	ev, err := g.record(rec)
	if err != nil {
		return Outcome{}, err
	}
	after, _ := g.messages.Get(msg.ID)
	g.logger.Printf("governor: %s quarantined by rule %s", msg.ID, d.RuleID)
	return Outcome{Message: after, Decision: d, Event: &ev, Notice: notice}, nil
}

func (g *Governor) blockAgent(msg conversation.Message, cause string) (Outcome, error) {
	if _, err := g.messages.Quarantine(msg.ID); err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(msg.Role), string(conversation.StatusQuarantined))

	ev, err := g.record(ledger.Record{
		Action:     ActionAIBlocked,
		Risk:       policy.RiskHigh,
		Transition: ledger.Quarantined{},
		Summary:    "Governance Check Failed during output phase.",
		Evidence: ledger.Fields{
			ledger.F(ledger.KeyMessageID, msg.ID),
			ledger.F("error", cause),
		},
		RelatedMessageID: msg.ID,
	})
	if err != nil {
		return Outcome{}, err
	}
	after, _ := g.messages.Get(msg.ID)
	g.logger.Printf("governor: agent output %s blocked: %s", msg.ID, cause)
	return Outcome{Message: after, Decision: policy.Allowed, Event: &ev, Notice: "AI output blocked. Totem required."}, nil
}

// Quarantine removes a message from the active context. A committed message
// is demoted; a draft is abandoned.
func (g *Governor) Quarantine(id, reason string) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	before, err := g.messages.Quarantine(id)
	if err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(before.Role), string(conversation.StatusQuarantined))

	if strings.TrimSpace(reason) == "" {
		reason = "Manual demotion"
	}
	var proofID any
	if before.Proof != nil {
		proofID = before.Proof.ID
	}
	ev, err := g.record(ledger.Record{
		Action:     ActionContextQuarantined,
		Risk:       policy.RiskHigh,
		Transition: ledger.Quarantined{Demotion: before.Status == conversation.StatusCommitted},
		Summary:    "Message removed from active context: " + reason,
		Evidence: ledger.Fields{
			ledger.F(ledger.KeyMessageID, id),
			ledger.F(ledger.KeyProofID, proofID),
			ledger.F("previous_status", string(before.Status)),
			ledger.F("signed", before.Proof != nil),
			ledger.F("reason", reason),
		},
		RelatedMessageID: id,
	})
	if err != nil {
		return Outcome{}, err
	}
	after, _ := g.messages.Get(id)
	return Outcome{Message: after, Decision: policy.Allowed, Event: &ev}, nil
}

// GhostCount returns the number of unsigned inputs admitted since the last
// acknowledgement.
func (g *Governor) GhostCount() int { return int(g.ghosts.Load()) }

// AcknowledgeGhosts resets the ghost counter and returns the notice owed to
// the operator, or "" when there were none.
func (g *Governor) AcknowledgeGhosts() (int, string) {
	n := int(g.ghosts.Swap(0))
	g.metrics.SetGhostInputs(0)
	if n == 0 {
		return 0, ""
	}
	return n, fmt.Sprintf("%d input(s) logged while authority was revoked.\n"+
		"Status: UNSIGNED. Not included in active execution context.", n)
}

// Connect restores hardware authority and returns any pending ghost notice.
// It holds the coordinator lock so no ghost admission lands between the
// reconnect and the acknowledgement.
func (g *Governor) Connect() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	wasConnected := g.gate.Connected()
	g.gate.Connect()
	if wasConnected {
		return ""
	}
	_, notice := g.AcknowledgeGhosts()
	return notice
}

// Disconnect revokes hardware authority. In-flight authorizations resolve
// without a proof.
func (g *Governor) Disconnect() { g.gate.Disconnect() }

// Messages returns every message in arrival order.
func (g *Governor) Messages() []conversation.Message { return g.messages.List() }

// Message returns one message by id.
func (g *Governor) Message(id string) (conversation.Message, bool) { return g.messages.Get(id) }

// ActiveContext returns the signed, committed messages.
func (g *Governor) ActiveContext() []conversation.Message {
	return conversation.ActiveContext(g.messages.List())
}

func (g *Governor) record(rec ledger.Record) (ledger.AuditEvent, error) {
	ev, err := g.ledger.Record(rec)
	if err != nil {
		return ledger.AuditEvent{}, fmt.Errorf("ledger record %q: %w", rec.Action, err)
	}
	g.metrics.IncrementLedgerEvent(string(ev.State()), string(ev.Risk))
	return ev, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
