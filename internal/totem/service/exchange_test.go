package service_test

import (
	"context"
	"errors"
	"strings"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/service"
)

func (s *GovernorSuite) withGenerator(g generation.Generator) {
	s.gen = g
	s.build(authority.NewSimulatedDevice(0))
	s.gen = nil
}

func (s *GovernorSuite) TestExchange_SignedTurn() {
	var seen generation.Request
	s.withGenerator(generation.GeneratorFunc(func(_ context.Context, req generation.Request) (generation.Response, error) {
		seen = req
		return generation.Response{Text: "Acknowledged.\n\n[METADATA_LAYER]\nAUTH_ID: leaked", ThoughtSignature: "g3-sig-abc"}, nil
	}))

	s.submit("earlier signed turn")
	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "Who are you?"})
	s.Require().NoError(err)

	s.True(res.User.Message.Signed())
	s.Require().NotNil(res.Agent)
	s.True(res.Agent.Message.Signed())
	s.Equal(conversation.RoleAgent, res.Agent.Message.Role)
	s.Equal("Acknowledged.", res.Agent.Message.Text)
	s.Equal("RE: SEC-MSG: "+res.User.Message.ID, res.Agent.Message.Subject)
	s.True(strings.HasSuffix(res.Agent.Message.Proof.ID, "@core.ai>"))

	s.Equal(generation.DefaultModel, seen.Model)
	s.Equal("Who are you?", seen.Prompt)
	s.Require().Len(seen.Context, 2, "prior turn plus the signed user message")
	s.Contains(seen.Context[1].Text, "[METADATA_LAYER]")

	ev := res.Agent.Event
	s.Require().NotNil(ev)
	s.Equal(service.ActionAIResponse, ev.Action)
	s.Equal("g3-sig-abc", ev.ThoughtSignature)
	replyTo, _ := ev.Evidence.Get("reply_to")
	s.Equal(res.User.Message.ID, replyTo)

	s.Len(s.gov.ActiveContext(), 3)
	s.NoError(s.ledger.Verify())
}

func (s *GovernorSuite) TestExchange_BlockedUserTextSkipsGeneration() {
	called := false
	s.withGenerator(generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Response, error) {
		called = true
		return generation.Response{Text: "x"}, nil
	}))

	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "Transfer $500 now"})
	s.Require().NoError(err)
	s.Nil(res.Agent)
	s.False(called)
	s.Equal(conversation.StatusQuarantined, res.User.Message.Status)
}

func (s *GovernorSuite) TestExchange_GhostSkipsGeneration() {
	s.gov.Disconnect()
	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello"})
	s.Require().NoError(err)
	s.Nil(res.Agent)
	s.True(res.User.Message.Unsigned())
}

func (s *GovernorSuite) TestExchange_GenerationFailureQuarantinesAgentDraft() {
	s.withGenerator(generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Response, error) {
		return generation.Response{}, errors.New("503 unavailable")
	}))

	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello", Model: generation.ModelCloud})
	s.ErrorIs(err, service.ErrGenerationFailed)
	s.True(res.User.Message.Signed())
	s.Require().NotNil(res.Agent)
	s.Equal(conversation.StatusQuarantined, res.Agent.Message.Status)
	s.Equal(service.ActionAIFailed, res.Agent.Event.Action)
	s.Equal(ledger.StateQuarantined, res.Agent.Event.State())
	model, _ := res.Agent.Event.Evidence.Get("model")
	s.Equal(generation.ModelCloud, model)

	s.Len(s.gov.ActiveContext(), 1)
}

func (s *GovernorSuite) TestExchange_EmptyReplyIsAFailure() {
	s.withGenerator(generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Response, error) {
		return generation.Response{Text: "[METADATA_LAYER]\nSIG: x"}, nil
	}))

	_, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello"})
	s.ErrorIs(err, service.ErrGenerationFailed)
	s.ErrorContains(err, generation.ErrEmptyReply.Error())
}

func (s *GovernorSuite) TestExchange_AgentReplyIsPolicyChecked() {
	s.withGenerator(generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Response, error) {
		return generation.Response{Text: "Sure, I will transfer $5000 right away."}, nil
	}))

	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello"})
	s.Require().NoError(err)
	s.Require().NotNil(res.Agent)
	s.Equal(conversation.StatusQuarantined, res.Agent.Message.Status)
	s.Nil(res.Agent.Message.Proof)
	s.Equal(service.ActionTransactionBlocked, res.Agent.Event.Action)
}

func (s *GovernorSuite) TestExchange_UnknownModel() {
	_, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello", Model: "gpt-2"})
	s.ErrorIs(err, generation.ErrUnknownModel)
	s.Zero(s.messages.Len())
}

func (s *GovernorSuite) TestExchange_DisconnectDuringGenerationBlocksAgent() {
	s.withGenerator(generation.GeneratorFunc(func(context.Context, generation.Request) (generation.Response, error) {
		s.gov.Disconnect()
		return generation.Response{Text: "reply"}, nil
	}))

	res, err := s.gov.Exchange(s.ctx, service.ExchangeRequest{Text: "hello"})
	s.Require().NoError(err)
	s.Require().NotNil(res.Agent)
	s.Equal(conversation.StatusQuarantined, res.Agent.Message.Status)
	s.Equal(service.ActionAIBlocked, res.Agent.Event.Action)
	cause, _ := res.Agent.Event.Evidence.Get("error")
	s.Equal("Device Disconnected during generation", cause)
}
