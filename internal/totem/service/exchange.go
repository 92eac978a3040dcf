package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
)

type ExchangeRequest struct {
	Text  string
	Model string // defaults to the governor's model
}

// ExchangeResult holds both halves of a turn. Agent is nil when the user
// message did not reach a signed commit.
type ExchangeResult struct {
	User  Outcome
	Agent *Outcome
}

// Exchange runs one full turn: the user text is admitted, and if it commits
// with a proof the generator is called on the active context and its reply
// is admitted as an agent draft.
func (g *Governor) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	if !generation.KnownModel(model) {
		return ExchangeResult{}, fmt.Errorf("%w: %q", generation.ErrUnknownModel, model)
	}

	user, err := g.Submit(ctx, SubmitRequest{Role: conversation.RoleUser, Text: req.Text})
	res := ExchangeResult{User: user}
	if err != nil || !user.Message.Signed() {
		return res, err
	}

	turns := conversation.Turns(g.messages.List())
	draft := g.messages.Create(conversation.RoleAgent, "", "RE: "+user.Message.Proof.Headers.Subject)
	g.metrics.IncrementTransition(string(conversation.RoleAgent), string(conversation.StatusDraft))

	resp, genErr := g.gen.Generate(ctx, generation.Request{Prompt: req.Text, Context: turns, Model: model})
	text := strings.TrimSpace(generation.StripMetadata(resp.Text))
	if genErr == nil && text == "" {
		genErr = generation.ErrEmptyReply
	}
	if genErr != nil {
		out, err := g.failGeneration(draft, model, genErr)
		if err != nil {
			return res, err
		}
		res.Agent = &out
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}

	if err := g.messages.SetText(draft.ID, text); err != nil {
		return res, err
	}
	agent, err := g.admit(ctx, draft.ID, agentMeta{
		model:            model,
		thoughtSignature: resp.ThoughtSignature,
		replyTo:          user.Message.ID,
	})
	if err != nil {
		return res, err
	}
	res.Agent = &agent
	return res, nil
}

func (g *Governor) failGeneration(draft conversation.Message, model string, cause error) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.messages.Quarantine(draft.ID); err != nil {
		return Outcome{}, err
	}
	g.metrics.IncrementTransition(string(conversation.RoleAgent), string(conversation.StatusQuarantined))

	ev, err := g.record(ledger.Record{
		Action:     ActionAIFailed,
		Risk:       policy.RiskHigh,
		Transition: ledger.Quarantined{},
		Summary:    "Generation failed; no output admitted.",
		Evidence: ledger.Fields{
			ledger.F(ledger.KeyMessageID, draft.ID),
			ledger.F("model", model),
			ledger.F("error", cause.Error()),
		},
		RelatedMessageID: draft.ID,
	})
	if err != nil {
		return Outcome{}, err
	}
	after, _ := g.messages.Get(draft.ID)
	g.logger.Printf("governor: generation for %s failed: %v", draft.ID, cause)
	return Outcome{Message: after, Decision: policy.Allowed, Event: &ev, Notice: "AI inference failed. Output quarantined."}, nil
}
