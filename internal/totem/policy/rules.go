package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TransferLimitID identifies the built-in transfer rule.
const TransferLimitID = "transfer_limit"

// transferPattern matches a transfer/send request carrying a dollar amount of
// three or more digits with no leading zero.
//
// This is a structural match, not numeric parsing: "$100".."$999..." match,
// "$99" does not. Amounts written as "$0500", "$1,000", "$1.5k" or in another
// currency are not recognized and fall through to Allowed.
var transferPattern = regexp.MustCompile(`(?i)(transfer|send).*\$([1-9][0-9]{2,})`)

// TransferLimit blocks transfers at or above the auto-approval limit of 100
// currency units.
type TransferLimit struct{}

func (TransferLimit) ID() string { return TransferLimitID }

func (TransferLimit) Match(text string) (Decision, bool) {
	m := transferPattern.FindStringSubmatch(text)
	if m == nil {
		return Decision{}, false
	}
	return Decision{
		Risk:    RiskHigh,
		Blocked: true,
		RuleID:  TransferLimitID,
		Reason:  "amount exceeds auto-approval limit",
		Amount:  "$" + m[2],
	}, true
}

// PatternRule is a configurable regular-expression rule.
type PatternRule struct {
	id      string
	pattern *regexp.Regexp
	risk    Risk
	block   bool
	reason  string
}

// RuleSpec is the declarative form of a PatternRule, as read from config.
type RuleSpec struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Risk    string `yaml:"risk"`
	Block   bool   `yaml:"block"`
	Reason  string `yaml:"reason"`
}

var ErrInvalidRule = errors.New("invalid policy rule")

// NewPatternRule compiles spec. Patterns are matched case-insensitively.
func NewPatternRule(spec RuleSpec) (*PatternRule, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if id == TransferLimitID {
		return nil, fmt.Errorf("%w: id %q is reserved", ErrInvalidRule, id)
	}
	if strings.TrimSpace(spec.Pattern) == "" {
		return nil, fmt.Errorf("%w: rule %s: pattern is required", ErrInvalidRule, id)
	}
	re, err := regexp.Compile("(?i)" + spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, id, err)
	}

	risk := Risk(strings.ToUpper(strings.TrimSpace(spec.Risk)))
	if risk == "" {
		risk = RiskHigh
	}
	if !risk.Valid() {
		return nil, fmt.Errorf("%w: rule %s: unknown risk %q", ErrInvalidRule, id, spec.Risk)
	}

	reason := spec.Reason
	if reason == "" {
		reason = "matched policy rule " + id
	}

	return &PatternRule{id: id, pattern: re, risk: risk, block: spec.Block, reason: reason}, nil
}

// CompileRules compiles specs in order.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		r, err := NewPatternRule(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r.id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.id)
		}
		seen[r.id] = struct{}{}
		rules = append(rules, r)
	}
	return rules, nil
}

func (r *PatternRule) ID() string { return r.id }

func (r *PatternRule) Match(text string) (Decision, bool) {
	if !r.pattern.MatchString(text) {
		return Decision{}, false
	}
	return Decision{
		Risk:    r.risk,
		Blocked: r.block,
		RuleID:  r.id,
		Reason:  r.reason,
	}, true
}
