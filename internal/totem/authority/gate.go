// Package authority models the hardware kill switch ("totem").
//
// The Gate is the single authority over whether content may acquire an
// authorization proof. It is Disconnected until Connect is called. While
// Connected, an Authorize call moves it through the transient Authorizing
// state for the duration of the device round trip. Disconnect bumps the gate
// epoch and cancels every in-flight round trip; a round trip that completes
// under a stale epoch never yields a proof.
package authority

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/digest"
)

// Role is the author of the content being authorized.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAgent }

// State is the gate state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connected    State = "CONNECTED"
	Authorizing  State = "AUTHORIZING"
)

// Headers are the envelope fields of a proof.
type Headers struct {
	From        string
	To          string
	Subject     string
	ContentHash string
}

// Proof asserts that content was authorized at a point in time. It is built
// once by the gate and never mutated.
type Proof struct {
	ID        string
	Timestamp time.Time
	Headers   Headers
	Signature string
}

// Request is one authorization attempt.
type Request struct {
	Role      Role
	MessageID string
	Content   string
}

// Status is a point-in-time view of the gate.
type Status struct {
	State            State
	Epoch            uint64
	InFlight         int
	LastAuthorizedAt time.Time // zero until the first proof
}

// Connected reports whether new authorizations can be attempted.
func (s Status) Connected() bool { return s.State != Disconnected }

// Gate tracks connectivity and issues proofs.
type Gate struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex // serializes watcher delivery
	state     State
	epoch     uint64
	inflight  int
	lastAuth  time.Time
	revokeCtx context.Context
	revoke    context.CancelFunc
	watchers  []func(Status)

	device Device
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Gate)

// WithDevice sets the hardware round trip. Defaults to a SimulatedDevice
// with no delay.
func WithDevice(d Device) Option { return func(g *Gate) { g.device = d } }

// WithClock overrides the proof timestamp source.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// WithLogger sets the gate logger.
func WithLogger(l *log.Logger) Option { return func(g *Gate) { g.logger = l } }

// NewGate returns a disconnected gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		state:  Disconnected,
		device: NewSimulatedDevice(0),
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Watch registers fn to be called after every state change. fn runs on the
// goroutine that caused the change, outside the gate lock. Deliveries are
// serialized and each carries the status current at delivery time, so the
// last status a watcher sees always matches Status once changes settle. fn
// may read the gate but must not change its state.
func (g *Gate) Watch(fn func(Status)) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	g.watchers = append(g.watchers, fn)
	st := g.statusLocked()
	g.mu.Unlock()
	fn(st)
}

// Status returns the current gate status.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

// Connected reports whether the gate is Connected or Authorizing.
func (g *Gate) Connected() bool { return g.Status().Connected() }

// Connect flips the gate to Connected. It is a no-op when already connected.
func (g *Gate) Connect() {
	g.mu.Lock()
	if g.state != Disconnected {
		g.mu.Unlock()
		return
	}
	g.state = Connected
	g.revokeCtx, g.revoke = context.WithCancel(context.Background())
	st := g.statusLocked()
	g.mu.Unlock()

	g.logger.Printf("authority: DEVICE_INSERTED epoch=%d", st.Epoch)
	g.publish()
}

// Disconnect flips the gate to Disconnected and aborts in-flight round trips.
// Proofs already issued stay valid. It is a no-op when already disconnected.
func (g *Gate) Disconnect() {
	g.mu.Lock()
	if g.state == Disconnected {
		g.mu.Unlock()
		return
	}
	g.epoch++
	g.state = Disconnected
	if g.revoke != nil {
		g.revoke()
	}
	st := g.statusLocked()
	g.mu.Unlock()

	g.logger.Printf("authority: DEVICE_REMOVED epoch=%d inflight=%d", st.Epoch, st.InFlight)
	g.publish()
}

// Authorize asks the device to sign req. It returns false immediately when
// disconnected, and false when the gate is disconnected or ctx is cancelled
// before the round trip completes. It never returns a proof issued under a
// superseded epoch.
func (g *Gate) Authorize(ctx context.Context, req Request) (Proof, bool) {
	g.mu.Lock()
	if g.state == Disconnected {
		g.mu.Unlock()
		return Proof{}, false
	}
	epoch := g.epoch
	revokeCtx := g.revokeCtx
	g.inflight++
	entered := g.state == Connected
	g.state = Authorizing
	g.mu.Unlock()

	if entered {
		g.publish()
	}
	defer g.finish()

	contentHash := digest.Content(req.Content)

	signCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(revokeCtx, cancel)
	defer stop()

	sig, err := g.device.Sign(signCtx, SignRequest{Role: req.Role, MessageID: req.MessageID, ContentHash: contentHash})
	if err != nil {
		g.logger.Printf("authority: round trip for %s aborted: %v", req.MessageID, err)
		return Proof{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.epoch != epoch || g.state == Disconnected || ctx.Err() != nil {
		g.logger.Printf("authority: discarding signature for %s (epoch %d -> %d)", req.MessageID, epoch, g.epoch)
		return Proof{}, false
	}

	now := g.now()
	g.lastAuth = now
	return buildProof(req, contentHash, sig, now), true
}

func (g *Gate) finish() {
	g.mu.Lock()
	g.inflight--
	if g.inflight > 0 || g.state != Authorizing {
		g.mu.Unlock()
		return
	}
	g.state = Connected
	g.mu.Unlock()
	g.publish()
}

func (g *Gate) statusLocked() Status {
	return Status{State: g.state, Epoch: g.epoch, InFlight: g.inflight, LastAuthorizedAt: g.lastAuth}
}

func (g *Gate) watchersLocked() []func(Status) {
	out := make([]func(Status), len(g.watchers))
	copy(out, g.watchers)
	return out
}

// publish delivers the current status to every watcher. The status is read
// under notifyMu, so a delivery racing a later change is always followed by
// one carrying that change.
func (g *Gate) publish() {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	st, ws := g.statusLocked(), g.watchersLocked()
	g.mu.Unlock()
	for _, fn := range ws {
		fn(st)
	}
}

func buildProof(req Request, contentHash, sig string, now time.Time) Proof {
	host, from, to := "local.node", "operator@terminal", "inference@core"
	if req.Role == RoleAgent {
		host, from, to = "core.ai", "ai@inference-engine", "operator@terminal"
	}
	return Proof{
		ID:        "<" + uuid.NewString()[:9] + "@" + host + ">",
		Timestamp: now,
		Headers: Headers{
			From:        from,
			To:          to,
			Subject:     "SEC-MSG: " + req.MessageID,
			ContentHash: contentHash,
		},
		Signature: sig,
	}
}
