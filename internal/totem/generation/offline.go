package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Offline answers without a model provider. It returns canned replies for
// identity and status questions and a generic acknowledgement otherwise.
type Offline struct {
	// Delay simulates provider latency.
	Delay time.Duration
}

func (o Offline) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Model != "" && !KnownModel(req.Model) {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
	}
	if o.Delay > 0 {
		timer := time.NewTimer(o.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	return Response{
		Text:             cannedReply(req.Prompt, model, len(req.Context)),
		ThoughtSignature: "g3-sig-mock-fallback-" + uuid.NewString()[:8],
	}, nil
}

func cannedReply(prompt, model string, turns int) string {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "who are you") || strings.Contains(p, "identity"):
		return "I am operating under the Project RE Hardware Governance Protocol, which ensures my outputs are immutable and verified."
	case strings.Contains(p, "status") || strings.Contains(p, "report"):
		return "System Status: NOMINAL. Governance Protocol: ACTIVE. I am ready to process requests within the authorized context."
	case strings.Contains(p, "transfer") || strings.Contains(p, "send"):
		return "Transaction logged for settlement."
	}
	return fmt.Sprintf("MOCK RESPONSE (%s): analyzing the immutable context chain (%d signed turns).", model, turns)
}
