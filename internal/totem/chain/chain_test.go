package chain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/chain"
)

var t0 = time.Date(2026, 2, 1, 13, 30, 0, 0, time.UTC)

func buildRecords(n int) []chain.Record {
	c := chain.New()
	out := make([]chain.Record, 0, n)
	for i := 0; i < n; i++ {
		l := chain.Link{
			Action:    fmt.Sprintf("action-%d", i),
			Summary:   fmt.Sprintf("summary-%d", i),
			Timestamp: t0.Add(time.Duration(i) * time.Millisecond),
		}
		hash, prev := c.Append(l)
		out = append(out, chain.Record{Link: l, PrevHash: prev, Hash: hash})
	}
	return out
}

// ── Append ───────────────────────────────────────────────────────────────────

func TestNew_StartsAtGenesis(t *testing.T) {
	assert.Equal(t, chain.Genesis, chain.New().Tip())
	assert.Equal(t, chain.Genesis, chain.Resume("").Tip())
	assert.Equal(t, "abc", chain.Resume("abc").Tip())
}

func TestAppend_AdvancesTipAndReturnsPrev(t *testing.T) {
	c := chain.New()
	l := chain.Link{Action: "a", Summary: "s", Timestamp: t0}

	hash, prev := c.Append(l)

	assert.Equal(t, chain.Genesis, prev)
	assert.Equal(t, hash, c.Tip())
	assert.Equal(t, chain.Compute(chain.Genesis, l), hash)
}

func TestAppend_DeterministicAcrossChains(t *testing.T) {
	a := buildRecords(5)
	b := buildRecords(5)
	for i := range a {
		assert.Equal(t, a[i].Hash, b[i].Hash, "index %d", i)
	}
}

func TestCompute_EachFieldAffectsHash(t *testing.T) {
	base := chain.Link{Action: "a", Summary: "s", Timestamp: t0}
	h := chain.Compute(chain.Genesis, base)

	assert.NotEqual(t, h, chain.Compute("other", base))
	assert.NotEqual(t, h, chain.Compute(chain.Genesis, chain.Link{Action: "b", Summary: "s", Timestamp: t0}))
	assert.NotEqual(t, h, chain.Compute(chain.Genesis, chain.Link{Action: "a", Summary: "t", Timestamp: t0}))
	assert.NotEqual(t, h, chain.Compute(chain.Genesis, chain.Link{Action: "a", Summary: "s", Timestamp: t0.Add(time.Millisecond)}))
}

func TestVerify_RejectsShiftedFieldBoundary(t *testing.T) {
	c := chain.New()
	l := chain.Link{Action: "Inference Request: pay|x", Summary: "User input verified via Totem Hardware Key.", Timestamp: t0}
	hash, prev := c.Append(l)
	require.NoError(t, chain.Verify([]chain.Record{{Link: l, PrevHash: prev, Hash: hash}}))

	edited := chain.Record{
		Link:     chain.Link{Action: "Inference Request: pay", Summary: "x|User input verified via Totem Hardware Key.", Timestamp: t0},
		PrevHash: prev,
		Hash:     hash,
	}
	var ie *chain.IntegrityError
	require.ErrorAs(t, chain.Verify([]chain.Record{edited}), &ie)
	assert.Equal(t, 0, ie.Index)
	assert.Equal(t, []int{0}, chain.Broken([]chain.Record{edited}))
}

func TestAppend_OrderDependent(t *testing.T) {
	x := chain.Link{Action: "x", Timestamp: t0}
	y := chain.Link{Action: "y", Timestamp: t0}

	c1 := chain.New()
	c1.Append(x)
	c1.Append(y)

	c2 := chain.New()
	c2.Append(y)
	c2.Append(x)

	assert.NotEqual(t, c1.Tip(), c2.Tip())
}

// ── Verify ───────────────────────────────────────────────────────────────────

func TestVerify_ValidChain(t *testing.T) {
	for _, n := range []int{0, 1, 2, 17} {
		require.NoError(t, chain.Verify(buildRecords(n)), "n=%d", n)
		assert.Empty(t, chain.Broken(buildRecords(n)), "n=%d", n)
	}
}

func TestVerify_LinksPrevToPreviousHash(t *testing.T) {
	recs := buildRecords(3)
	for k := 0; k+1 < len(recs); k++ {
		assert.Equal(t, recs[k].Hash, recs[k+1].PrevHash)
	}
}

func TestVerify_MutationInvalidatesEverySubsequentLink(t *testing.T) {
	const n = 8
	for k := 0; k < n; k++ {
		recs := buildRecords(n)
		recs[k].Summary = "tampered"

		err := chain.Verify(recs)
		var ie *chain.IntegrityError
		require.True(t, errors.As(err, &ie), "k=%d", k)
		assert.Equal(t, k, ie.Index)

		broken := chain.Broken(recs)
		expected := make([]int, 0, n-k)
		for i := k; i < n; i++ {
			expected = append(expected, i)
		}
		assert.Equal(t, expected, broken, "k=%d", k)
	}
}

func TestVerify_DetectsForkedPrevHash(t *testing.T) {
	recs := buildRecords(3)
	// Two events claiming the same predecessor, as a racing append would produce.
	recs[2].PrevHash = recs[1].PrevHash

	err := chain.Verify(recs)
	var ie *chain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Index)
}
