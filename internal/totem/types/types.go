// Package types holds the wire representations served by the HTTP API.
package types

import "encoding/json"

// ── Requests ─────────────────────────────────────────────────────────────────

type SubmitRequest struct {
	Role    string `json:"role,omitempty"` // "user" (default) | "agent"
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
}

type ExchangeRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type QuarantineRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ── Messages ─────────────────────────────────────────────────────────────────

type Proof struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	ContentHash string `json:"content_hash"`
	Signature   string `json:"signature"`
}

type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	Signed    bool   `json:"signed"`
	Proof     *Proof `json:"proof,omitempty"`
}

type Decision struct {
	Risk    string `json:"risk"`
	Blocked bool   `json:"blocked"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type Outcome struct {
	Message  Message     `json:"message"`
	Decision Decision    `json:"decision"`
	Event    *AuditEvent `json:"event,omitempty"`
	Notice   string      `json:"notice,omitempty"`
}

type ExchangeResponse struct {
	User  Outcome  `json:"user"`
	Agent *Outcome `json:"agent,omitempty"`
	Error string   `json:"error,omitempty"`
}

type MessageList struct {
	Messages []Message `json:"messages"`
}

type MessageDetail struct {
	Message Message      `json:"message"`
	Events  []AuditEvent `json:"events"`
}

// ── Ledger ───────────────────────────────────────────────────────────────────

type AuditEvent struct {
	ID                 string          `json:"id"`
	Seq                int64           `json:"seq"`
	Timestamp          string          `json:"timestamp"`
	Action             string          `json:"action"`
	Risk               string          `json:"risk"`
	State              string          `json:"state"`
	Ghost              bool            `json:"ghost,omitempty"`
	Demotion           bool            `json:"demotion,omitempty"`
	Summary            string          `json:"summary"`
	Evidence           json.RawMessage `json:"evidence,omitempty"`
	RawLog             string          `json:"raw_log"`
	PrevHash           string          `json:"prev_hash"`
	Hash               string          `json:"hash"`
	TimestampSignature string          `json:"ts_sig"`
	Signature          string          `json:"signature,omitempty"`
	ThoughtSignature   string          `json:"thought_signature,omitempty"`
	RelatedMessageID   string          `json:"related_message_id,omitempty"`
}

type LedgerPage struct {
	RunID  string       `json:"run_id"`
	Since  int64        `json:"since"`
	Next   int64        `json:"next"` // cursor for the following page
	Tip    string       `json:"tip"`
	Events []AuditEvent `json:"events"`
}

type VerifyReport struct {
	OK     bool   `json:"ok"`
	RunID  string `json:"run_id"`
	Length int    `json:"length"`
	Tip    string `json:"tip,omitempty"`
	Error  string `json:"error,omitempty"`
	Broken []int  `json:"broken,omitempty"`
}

// ── Authority ────────────────────────────────────────────────────────────────

type AuthorityStatus struct {
	State            string `json:"state"`
	Connected        bool   `json:"connected"`
	Epoch            uint64 `json:"epoch"`
	InFlight         int    `json:"in_flight"`
	LastAuthorizedAt string `json:"last_authorized_at,omitempty"`
	GhostInputs      int    `json:"ghost_inputs"`
	Notice           string `json:"notice,omitempty"`
}

// ── Errors ───────────────────────────────────────────────────────────────────

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
