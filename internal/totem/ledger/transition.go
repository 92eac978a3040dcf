package ledger

// State is the lifecycle state recorded with an audit event.
type State string

const (
	StateDraft       State = "DRAFT"
	StateCommitted   State = "COMMITTED"
	StateQuarantined State = "QUARANTINED"
)

// Transition is the lifecycle variant carried by an audit event. Each variant
// holds only the fields that are meaningful for its state, so a signature can
// only ever be attached to a committed event.
type Transition interface {
	State() State
	isTransition()
}

// Draft records an input that was logged without authority. Ghost marks user
// input admitted while the gate was disconnected.
type Draft struct {
	Ghost bool
}

// Committed records an authorized admission. Signature is the proof signature
// when one exists; system events may commit unsigned.
type Committed struct {
	Signature string
}

// Quarantined records a rejection. Demotion marks the committed → quarantined
// correction path.
type Quarantined struct {
	Demotion bool
}

func (Draft) State() State       { return StateDraft }
func (Committed) State() State   { return StateCommitted }
func (Quarantined) State() State { return StateQuarantined }

func (Draft) isTransition()       {}
func (Committed) isTransition()   {}
func (Quarantined) isTransition() {}
