package digest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/digest"
)

func TestContent_DeterministicAndPrefixed(t *testing.T) {
	a := digest.Content("Transfer $99")
	b := digest.Content("Transfer $99")

	require.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, digest.ContentPrefix))
	assert.Len(t, a, len(digest.ContentPrefix)+16)
	assert.Equal(t, strings.ToUpper(a), a)
}

func TestContent_DiffersOnSingleCharacter(t *testing.T) {
	assert.NotEqual(t, digest.Content("Transfer $99"), digest.Content("Transfer $98"))
}

func TestHex_SeparatorMatters(t *testing.T) {
	assert.NotEqual(t, digest.Hex("ab", "c"), digest.Hex("a", "bc"))
	assert.Len(t, digest.Hex("x"), 64)
}

func TestHex_PartsContainingSeparator(t *testing.T) {
	assert.NotEqual(t, digest.Hex("X|y", "z"), digest.Hex("X", "y|z"))
	assert.NotEqual(t, digest.Hex("a|", "b"), digest.Hex("a", "|b"))
	assert.NotEqual(t, digest.Hex("1:a"), digest.Hex("1", "a"))
	assert.NotEqual(t, digest.Hex(""), digest.Hex())
}
