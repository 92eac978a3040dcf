package generation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
)

func TestOffline_CannedReplies(t *testing.T) {
	g := generation.Offline{}
	ctx := context.Background()

	tests := []struct {
		prompt string
		want   string
	}{
		{"Who are you?", "Hardware Governance Protocol"},
		{"give me a status report", "System Status: NOMINAL"},
		{"Transfer $99 to Bob", "Transaction logged for settlement."},
		{"hello", "MOCK RESPONSE (gemma-3-27b-it)"},
	}
	for _, tt := range tests {
		resp, err := g.Generate(ctx, generation.Request{Prompt: tt.prompt})
		require.NoError(t, err)
		assert.Contains(t, resp.Text, tt.want, tt.prompt)
		assert.True(t, strings.HasPrefix(resp.ThoughtSignature, "g3-sig-mock-fallback-"))
	}
}

func TestOffline_ModelAndContext(t *testing.T) {
	resp, err := generation.Offline{}.Generate(context.Background(), generation.Request{
		Prompt:  "hello",
		Model:   generation.ModelCloud,
		Context: []generation.Turn{{Role: generation.TurnUser, Text: "a"}, {Role: generation.TurnModel, Text: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "MOCK RESPONSE (gemini-3-flash-preview): analyzing the immutable context chain (2 signed turns).", resp.Text)

	_, err = generation.Offline{}.Generate(context.Background(), generation.Request{Prompt: "x", Model: "gpt-2"})
	assert.ErrorIs(t, err, generation.ErrUnknownModel)
}

func TestOffline_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := generation.Offline{Delay: time.Hour}.Generate(ctx, generation.Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripMetadata(t *testing.T) {
	assert.Equal(t, "reply", generation.StripMetadata("reply\n\n[METADATA_LAYER]\nAUTH_ID: <x@core.ai>"))
	assert.Equal(t, "plain", generation.StripMetadata("plain"))
}
