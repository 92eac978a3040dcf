// Package generation defines the contract for the model that produces agent
// replies. The governance core never calls a provider directly; it hands a
// Request to a Generator and admits whatever comes back as an agent draft.
package generation

import (
	"context"
	"errors"
	"strings"
)

// Supported model identifiers.
const (
	ModelEdge  = "gemma-3-27b-it"
	ModelCloud = "gemini-3-flash-preview"

	DefaultModel = ModelEdge
)

// Turn roles as seen by the model.
const (
	TurnUser  = "user"
	TurnModel = "model"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrEmptyReply   = errors.New("generator returned an empty reply")
)

// KnownModel reports whether id is a supported model.
func KnownModel(id string) bool { return id == ModelEdge || id == ModelCloud }

// Turn is one prior message handed to the model.
type Turn struct {
	Role string
	Text string
}

type Request struct {
	Prompt  string
	Context []Turn
	Model   string
}

type Response struct {
	Text             string
	ThoughtSignature string // empty when the model exposes none
}

// Generator produces a reply. Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// MetadataMarker opens the proof block embedded in context turns.
const MetadataMarker = "[METADATA_LAYER]"

// StripMetadata removes a proof block the model echoed back into its reply.
func StripMetadata(text string) string {
	if i := strings.Index(text, MetadataMarker); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}
