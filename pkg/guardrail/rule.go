// Package guardrail screens AI proposals against business-safety rules
// before anything effectful happens. Violations are data, never errors:
// the engine yields a GuardrailResult and leaves enforcement to the
// executor and approval layers.
package guardrail

import (
	"encoding/json"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// Rule is one registered business-safety rule. Check inspects the proposal
// content plus the caller-supplied context of domain facts (budgets, stock,
// pricing, historical peaks) and returns a violation or nil.
//
// Rules are stored in an ordered collection and evaluated as a simple fold;
// there is no reflection-based discovery.
type Rule struct {
	Code     string
	Category contracts.RuleCategory
	Severity contracts.Severity
	Fixable  bool

	// Check returns nil when the rule passes. A rule yields at most one
	// violation per evaluation.
	Check func(content, ctx map[string]any) *contracts.RuleViolation

	// Fix rewrites content in place to satisfy the rule. Only consulted for
	// fixable violations of MEDIUM or LOW severity.
	Fix func(content, ctx map[string]any)
}

// violation builds the violation for this rule with the given message.
func (r *Rule) violation(msg string) *contracts.RuleViolation {
	return &contracts.RuleViolation{
		RuleCode: r.Code,
		Category: r.Category,
		Severity: r.Severity,
		Message:  msg,
		Fixable:  r.Fixable,
	}
}

// num extracts a numeric field from a map, tolerating the types that
// arrive via JSON decoding and via native Go callers.
func num(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func boolVal(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m[key].(bool)
	return b, ok
}
