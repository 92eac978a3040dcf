package authority

import (
	"context"
	"strings"
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/digest"
)

// SignRequest is what the gate hands to the device for one authorization.
type SignRequest struct {
	Role        Role
	MessageID   string
	ContentHash string
}

// Device performs the hardware round trip. Sign must return promptly once ctx
// is done.
type Device interface {
	Sign(ctx context.Context, req SignRequest) (string, error)
}

// SimulatedDevice stands in for the physical totem: it waits Delay, then
// returns a signature token bound to (role, content hash).
type SimulatedDevice struct {
	Delay time.Duration
	// Key is mixed into the token so different devices sign differently.
	Key string
}

// NewSimulatedDevice returns a device with the given round-trip delay.
func NewSimulatedDevice(delay time.Duration) *SimulatedDevice {
	return &SimulatedDevice{Delay: delay, Key: "totem-dev"}
}

func (d *SimulatedDevice) Sign(ctx context.Context, req SignRequest) (string, error) {
	if d.Delay > 0 {
		timer := time.NewTimer(d.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	return SignatureFor(d.Key, req.Role, req.ContentHash), nil
}

// SignatureFor is the deterministic token format, e.g. "RSA-USER-1A2B3C4D5E6F7A8B".
func SignatureFor(key string, role Role, contentHash string) string {
	sum := digest.Hex(key, string(role), contentHash)
	return "RSA-" + strings.ToUpper(string(role)) + "-" + strings.ToUpper(sum[:16])
}
