package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
)

// ── Transfer limit ───────────────────────────────────────────────────────────

func TestEvaluate_TransferLimit(t *testing.T) {
	engine := policy.NewEngine()

	cases := []struct {
		name    string
		text    string
		blocked bool
		amount  string
	}{
		{"above limit", "Transfer $500", true, "$500"},
		{"exactly at limit", "Transfer $100", true, "$100"},
		{"just below limit", "Transfer $99", false, ""},
		{"single digit", "transfer $5", false, ""},
		{"send verb", "please SEND $250 to bob", true, "$250"},
		{"large amount", "initiating test transfer of $5000 to safe harbor", true, "$5000"},
		{"leading zero not recognized", "Transfer $0500", false, ""},
		{"thousands separator not recognized", "Transfer $1,000", false, ""},
		{"no verb", "I have $500", false, ""},
		{"verb after amount", "$500 transfer", false, ""},
		{"no currency sign", "Transfer 500 dollars", false, ""},
		{"plain greeting", "Hello", false, ""},
		{"empty", "", false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := engine.Evaluate(tc.text)
			assert.Equal(t, tc.blocked, d.Blocked)
			assert.Equal(t, tc.amount, d.Amount)
			if tc.blocked {
				assert.Equal(t, policy.RiskHigh, d.Risk)
				assert.Equal(t, policy.TransferLimitID, d.RuleID)
				assert.Equal(t, "amount exceeds auto-approval limit", d.Reason)
			} else {
				assert.Equal(t, policy.Allowed, d)
			}
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	engine := policy.NewEngine()
	first := engine.Evaluate("send $123 now")
	for i := 0; i < 50; i++ {
		require.Equal(t, first, engine.Evaluate("send $123 now"))
	}
}

// ── Pattern rules ────────────────────────────────────────────────────────────

func TestEvaluate_ExtraRulesRunAfterBuiltIn(t *testing.T) {
	rules, err := policy.CompileRules([]policy.RuleSpec{
		{ID: "wallet_address", Pattern: `0x[0-9a-f]{6,}`, Block: true, Reason: "raw wallet address"},
		{ID: "memory_probe", Pattern: `memory manipulation`, Risk: "low"},
	})
	require.NoError(t, err)
	engine := policy.NewEngine(rules...)

	assert.Equal(t, []string{policy.TransferLimitID, "wallet_address", "memory_probe"}, engine.Rules())

	// Built-in wins when both match.
	d := engine.Evaluate("transfer $5000 to 0xDEADBEEF")
	assert.Equal(t, policy.TransferLimitID, d.RuleID)

	d = engine.Evaluate("Target: 0xDEADBEEF...")
	assert.True(t, d.Blocked)
	assert.Equal(t, policy.RiskHigh, d.Risk)
	assert.Equal(t, "wallet_address", d.RuleID)
	assert.Equal(t, "raw wallet address", d.Reason)

	d = engine.Evaluate("Attempting MEMORY MANIPULATION")
	assert.False(t, d.Blocked)
	assert.Equal(t, policy.RiskLow, d.Risk)
	assert.Equal(t, "memory_probe", d.RuleID)
	assert.Equal(t, "matched policy rule memory_probe", d.Reason)
}

func TestCompileRules_Invalid(t *testing.T) {
	cases := map[string][]policy.RuleSpec{
		"missing id":      {{Pattern: "x"}},
		"missing pattern": {{ID: "a"}},
		"bad regexp":      {{ID: "a", Pattern: "("}},
		"bad risk":        {{ID: "a", Pattern: "x", Risk: "CRITICAL"}},
		"reserved id":     {{ID: policy.TransferLimitID, Pattern: "x"}},
		"duplicate id":    {{ID: "a", Pattern: "x"}, {ID: "a", Pattern: "y"}},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := policy.CompileRules(specs)
			assert.ErrorIs(t, err, policy.ErrInvalidRule)
		})
	}
}
