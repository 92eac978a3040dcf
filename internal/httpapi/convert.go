package httpapi

import (
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/service"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/types"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ── Messages ─────────────────────────────────────────────────────────────────

func proofToView(p *authority.Proof) *types.Proof {
	if p == nil {
		return nil
	}
	return &types.Proof{
		ID:          p.ID,
		Timestamp:   formatTime(p.Timestamp),
		From:        p.Headers.From,
		To:          p.Headers.To,
		Subject:     p.Headers.Subject,
		ContentHash: p.Headers.ContentHash,
		Signature:   p.Signature,
	}
}

func messageToView(m conversation.Message) types.Message {
	return types.Message{
		ID:        m.ID,
		Role:      string(m.Role),
		Text:      m.Text,
		CreatedAt: formatTime(m.CreatedAt),
		Subject:   m.Subject,
		Status:    string(m.Status),
		Signed:    m.Signed(),
		Proof:     proofToView(m.Proof),
	}
}

func messagesToView(ms []conversation.Message) []types.Message {
	out := make([]types.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageToView(m))
	}
	return out
}

func decisionToView(d policy.Decision) types.Decision {
	return types.Decision{
		Risk:    string(d.Risk),
		Blocked: d.Blocked,
		RuleID:  d.RuleID,
		Reason:  d.Reason,
		Amount:  d.Amount,
	}
}

func outcomeToView(o service.Outcome) types.Outcome {
	v := types.Outcome{
		Message:  messageToView(o.Message),
		Decision: decisionToView(o.Decision),
		Notice:   o.Notice,
	}
	if o.Event != nil {
		ev := eventToView(*o.Event)
		v.Event = &ev
	}
	return v
}

func exchangeToView(r service.ExchangeResult) types.ExchangeResponse {
	v := types.ExchangeResponse{User: outcomeToView(r.User)}
	if r.Agent != nil {
		a := outcomeToView(*r.Agent)
		v.Agent = &a
	}
	return v
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func eventToView(e ledger.AuditEvent) types.AuditEvent {
	v := types.AuditEvent{
		ID:                 e.ID,
		Seq:                e.Seq,
		Timestamp:          formatTime(e.Timestamp),
		Action:             e.Action,
		Risk:               string(e.Risk),
		State:              string(e.State()),
		Ghost:              e.Ghost(),
		Summary:            e.Summary,
		RawLog:             e.RawLog,
		PrevHash:           e.PrevHash,
		Hash:               e.Hash,
		TimestampSignature: e.TimestampSignature,
		Signature:          e.Signature(),
		ThoughtSignature:   e.ThoughtSignature,
		RelatedMessageID:   e.RelatedMessageID,
	}
	if q, ok := e.Transition.(ledger.Quarantined); ok {
		v.Demotion = q.Demotion
	}
	// Evidence values are produced by the ledger itself and always encode.
	if raw, err := e.Evidence.MarshalJSON(); err == nil {
		v.Evidence = raw
	}
	return v
}

func eventsToView(es []ledger.AuditEvent) []types.AuditEvent {
	out := make([]types.AuditEvent, 0, len(es))
	for _, e := range es {
		out = append(out, eventToView(e))
	}
	return out
}

// ── Authority ────────────────────────────────────────────────────────────────

func authorityToView(st authority.Status, ghosts int, notice string) types.AuthorityStatus {
	return types.AuthorityStatus{
		State:            string(st.State),
		Connected:        st.Connected(),
		Epoch:            st.Epoch,
		InFlight:         st.InFlight,
		LastAuthorizedAt: formatTime(st.LastAuthorizedAt),
		GhostInputs:      ghosts,
		Notice:           notice,
	}
}
