// Package policy classifies proposed message text as allowed or blocked.
//
// The engine is a pure function of its input: no I/O, no clocks, no shared
// mutable state. Rules are evaluated in a fixed priority order and the first
// match wins.
package policy

// Risk is the tier attached to a decision and to the audit event it produces.
type Risk string

const (
	RiskLow  Risk = "LOW"
	RiskHigh Risk = "HIGH"
)

// Valid reports whether r is a known tier.
func (r Risk) Valid() bool { return r == RiskLow || r == RiskHigh }

// Decision is the ephemeral outcome of Evaluate. It is not stored anywhere
// beyond the audit event it leads to.
type Decision struct {
	Risk    Risk
	Blocked bool
	RuleID  string // empty when no rule matched
	Reason  string
	Amount  string // extracted parameter, e.g. "$500"; empty when not applicable
}

// Allowed is the decision returned when no rule matches.
var Allowed = Decision{Risk: RiskLow}

// Rule inspects text and reports a decision when it applies.
type Rule interface {
	ID() string
	Match(text string) (Decision, bool)
}

// Engine evaluates rules in order.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine with the built-in transfer limit rule followed
// by any extra rules, in the order given.
func NewEngine(extra ...Rule) *Engine {
	rules := make([]Rule, 0, len(extra)+1)
	rules = append(rules, TransferLimit{})
	rules = append(rules, extra...)
	return &Engine{rules: rules}
}

// Evaluate returns the decision of the first matching rule, or Allowed.
func (e *Engine) Evaluate(text string) Decision {
	for _, r := range e.rules {
		if d, ok := r.Match(text); ok {
			if d.RuleID == "" {
				d.RuleID = r.ID()
			}
			return d
		}
	}
	return Allowed
}

// Rules returns the rule ids in evaluation order.
func (e *Engine) Rules() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}
