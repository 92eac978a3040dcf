package conversation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
)

func proof(id string) *authority.Proof {
	return &authority.Proof{
		ID:        id,
		Signature: "RSA-USER-" + id,
		Headers:   authority.Headers{ContentHash: "SHA256-" + id},
	}
}

// ── Repository ───────────────────────────────────────────────────────────────

func TestRepository_CreateDefaults(t *testing.T) {
	r := conversation.NewRepository()

	a := r.Create(conversation.RoleUser, "one", "")
	b := r.Create(conversation.RoleUser, "two", "")
	c := r.Create(conversation.RoleAgent, "three", "RE: SEC-MSG: x")

	assert.Equal(t, conversation.StatusDraft, a.Status)
	assert.Equal(t, "RE: Project-Alpha-0", a.Subject)
	assert.Equal(t, "RE: Project-Alpha-1", b.Subject)
	assert.Equal(t, "RE: SEC-MSG: x", c.Subject)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.Proof)
	assert.Equal(t, 3, r.Len())
}

func TestRepository_CommitAndDemote(t *testing.T) {
	r := conversation.NewRepository()
	m := r.Create(conversation.RoleUser, "hi", "")

	got, err := r.Commit(m.ID, proof("p1"))
	require.NoError(t, err)
	assert.True(t, got.Signed())

	_, err = r.Commit(m.ID, proof("p2"))
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)

	before, err := r.Quarantine(m.ID)
	require.NoError(t, err)
	assert.True(t, before.Signed())

	after, ok := r.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, conversation.StatusQuarantined, after.Status)
	assert.Nil(t, after.Proof)

	_, err = r.Quarantine(m.ID)
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)
	_, err = r.Commit(m.ID, nil)
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)
}

func TestRepository_GhostCommit(t *testing.T) {
	r := conversation.NewRepository()
	m := r.Create(conversation.RoleUser, "hi", "")

	got, err := r.Commit(m.ID, nil)
	require.NoError(t, err)
	assert.True(t, got.Unsigned())
	assert.False(t, got.Signed())
}

func TestRepository_UnknownID(t *testing.T) {
	r := conversation.NewRepository()
	_, err := r.Commit("msg_missing", nil)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	_, err = r.Quarantine("msg_missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.ErrorIs(t, r.SetText("msg_missing", "x"), conversation.ErrNotFound)
}

func TestRepository_SnapshotsAreCopies(t *testing.T) {
	r := conversation.NewRepository()
	m := r.Create(conversation.RoleUser, "hi", "")
	_, err := r.Commit(m.ID, proof("p1"))
	require.NoError(t, err)

	list := r.List()
	list[0].Text = "tampered"
	list[0].Proof.Signature = "forged"

	fresh, _ := r.Get(m.ID)
	assert.Equal(t, "hi", fresh.Text)
	assert.Equal(t, "RSA-USER-p1", fresh.Proof.Signature)
}

func TestRepository_SetTextOnlyOnDraft(t *testing.T) {
	r := conversation.NewRepository()
	m := r.Create(conversation.RoleAgent, "", "")
	require.NoError(t, r.SetText(m.ID, "reply"))
	_, err := r.Commit(m.ID, proof("p"))
	require.NoError(t, err)
	assert.ErrorIs(t, r.SetText(m.ID, "edited"), conversation.ErrInvalidTransition)
}

// ── Active context ───────────────────────────────────────────────────────────

func mixed() []conversation.Message {
	return []conversation.Message{
		{ID: "1", Role: conversation.RoleUser, Text: "signed user", Status: conversation.StatusCommitted, Proof: proof("a")},
		{ID: "2", Role: conversation.RoleUser, Text: "ghost", Status: conversation.StatusCommitted},
		{ID: "3", Role: conversation.RoleUser, Text: "blocked", Status: conversation.StatusQuarantined},
		{ID: "4", Role: conversation.RoleUser, Text: "pending", Status: conversation.StatusDraft},
		{ID: "5", Role: conversation.RoleAgent, Text: "signed agent", Status: conversation.StatusCommitted, Proof: proof("b")},
	}
}

func TestActiveContext_FiltersAndKeepsOrder(t *testing.T) {
	active := conversation.ActiveContext(mixed())
	require.Len(t, active, 2)
	assert.Equal(t, "1", active[0].ID)
	assert.Equal(t, "5", active[1].ID)
}

func TestActiveContext_Idempotent(t *testing.T) {
	once := conversation.ActiveContext(mixed())
	twice := conversation.ActiveContext(once)
	assert.Equal(t, once, twice)
	assert.Empty(t, conversation.ActiveContext(nil))
}

func TestTurns_EmbedProofMetadata(t *testing.T) {
	turns := conversation.Turns(mixed())
	require.Len(t, turns, 2)

	assert.Equal(t, generation.TurnUser, turns[0].Role)
	assert.Equal(t, "signed user\n\n[METADATA_LAYER]\nAUTH_ID: a\nSIG: RSA-USER-a\nHASH: SHA256-a", turns[0].Text)
	assert.Equal(t, generation.TurnModel, turns[1].Role)
}
