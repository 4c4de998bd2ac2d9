package contracts

// Severity ranks how dangerous a rule violation is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// RuleCategory groups business-safety rules by the concern they protect.
type RuleCategory string

const (
	CategoryFinancial   RuleCategory = "financial"
	CategoryOperational RuleCategory = "operational"
	CategorySafety      RuleCategory = "safety"
	CategoryCompliance  RuleCategory = "compliance"
	CategoryBusiness    RuleCategory = "business"
	CategoryRefund      RuleCategory = "refund"
)

// RuleViolation is produced by the guardrail engine when a rule predicate
// fails. Violations are data, never errors; they are embedded in a
// GuardrailResult and never persisted standalone.
type RuleViolation struct {
	RuleCode string       `json:"rule_code"`
	Category RuleCategory `json:"category"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
	Fixable  bool         `json:"fixable"`
}

// GuardrailResult is the verdict of screening one proposal. It is derived
// state, recomputed per proposal and never mutated after creation.
type GuardrailResult struct {
	ProposalID            string          `json:"proposal_id"`
	Violations            []RuleViolation `json:"violations"`
	RequiresHumanApproval bool            `json:"requires_human_approval"`
	AutoFixed             bool            `json:"auto_fixed"`
	FixedContent          map[string]any  `json:"fixed_content,omitempty"`
}

// HasCritical reports whether any violation is CRITICAL.
func (r *GuardrailResult) HasCritical() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// CountSeverity returns the number of violations at the given severity.
func (r *GuardrailResult) CountSeverity(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}
