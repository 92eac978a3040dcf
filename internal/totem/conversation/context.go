package conversation

import (
	"strings"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
)

// ActiveContext returns the messages eligible as generator input: committed
// and signed, in arrival order. It is pure, so applying it twice is the same
// as applying it once.
func ActiveContext(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Signed() {
			out = append(out, m)
		}
	}
	return out
}

// Turns renders the active context for the generator. Each turn carries its
// proof as a trailing metadata block.
func Turns(msgs []Message) []generation.Turn {
	active := ActiveContext(msgs)
	turns := make([]generation.Turn, len(active))
	for i, m := range active {
		role := generation.TurnUser
		if m.Role == RoleAgent {
			role = generation.TurnModel
		}
		turns[i] = generation.Turn{Role: role, Text: withMetadata(m)}
	}
	return turns
}

func withMetadata(m Message) string {
	var b strings.Builder
	b.WriteString(m.Text)
	b.WriteString("\n\n")
	b.WriteString(generation.MetadataMarker)
	b.WriteString("\nAUTH_ID: ")
	b.WriteString(m.Proof.ID)
	b.WriteString("\nSIG: ")
	b.WriteString(m.Proof.Signature)
	b.WriteString("\nHASH: ")
	b.WriteString(m.Proof.Headers.ContentHash)
	return b.String()
}
