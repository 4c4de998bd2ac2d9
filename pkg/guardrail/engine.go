package guardrail

import (
	"log/slog"
	"sync"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// Engine evaluates proposals against an ordered rule catalog.
//
// Approval policy: one HIGH violation is tolerable, two compounding HIGH
// risks are not, and any CRITICAL violation always requires a human. The
// non-linear HIGH threshold is intentional policy.
const highViolationThreshold = 2

// Engine is safe for concurrent use. The per-rule statistics counters are
// best-effort in-process state and reset on restart.
type Engine struct {
	mu     sync.RWMutex
	rules  []Rule
	stats  map[string]map[contracts.Severity]int
	logger *slog.Logger
}

// NewEngine creates an engine over the given catalog. Pass
// DefaultCatalog() for the built-in rule set.
func NewEngine(rules []Rule) *Engine {
	return &Engine{
		rules:  rules,
		stats:  make(map[string]map[contracts.Severity]int),
		logger: slog.Default().With("component", "guardrail"),
	}
}

// Register appends a rule to the catalog. Used for tenant-specific rules
// loaded from the policy file (including CEL expression rules).
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// RuleCount returns the number of registered rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every registered rule against (proposal.Content, ctx) and
// returns the verdict. A rule either passes or yields exactly one violation.
func (e *Engine) Evaluate(proposal *contracts.Proposal, ctx map[string]any) *contracts.GuardrailResult {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	result := &contracts.GuardrailResult{
		ProposalID: proposal.ProposalID,
		Violations: make([]contracts.RuleViolation, 0),
	}

	for i := range rules {
		r := &rules[i]
		if r.Check == nil {
			continue
		}
		v := r.Check(proposal.Content, ctx)
		if v == nil {
			continue
		}
		result.Violations = append(result.Violations, *v)
		e.recordViolation(v)
	}

	critical := result.CountSeverity(contracts.SeverityCritical)
	high := result.CountSeverity(contracts.SeverityHigh)
	result.RequiresHumanApproval = critical >= 1 || high >= highViolationThreshold

	if len(result.Violations) > 0 {
		e.logger.Info("proposal screened",
			"proposal_id", proposal.ProposalID,
			"proposal_type", proposal.Type,
			"violations", len(result.Violations),
			"requires_human_approval", result.RequiresHumanApproval)
	}

	return result
}

// AutoFixProposal attempts to rewrite the proposal content so the violated
// rules pass. Only violations marked fixable with severity MEDIUM or LOW
// are candidates. If any CRITICAL violation is present the proposal is
// never auto-fixed, regardless of other fixable violations.
//
// The proposal itself is not mutated; fixes are applied to a copy returned
// in FixedContent.
func (e *Engine) AutoFixProposal(proposal *contracts.Proposal, result *contracts.GuardrailResult, ctx map[string]any) *contracts.GuardrailResult {
	out := &contracts.GuardrailResult{
		ProposalID:            result.ProposalID,
		Violations:            result.Violations,
		RequiresHumanApproval: result.RequiresHumanApproval,
	}

	if result.HasCritical() {
		return out
	}

	e.mu.RLock()
	byCode := make(map[string]*Rule, len(e.rules))
	for i := range e.rules {
		byCode[e.rules[i].Code] = &e.rules[i]
	}
	e.mu.RUnlock()

	fixed := proposal.CloneContent()
	applied := 0
	for _, v := range result.Violations {
		if !v.Fixable {
			continue
		}
		if v.Severity != contracts.SeverityMedium && v.Severity != contracts.SeverityLow {
			continue
		}
		r := byCode[v.RuleCode]
		if r == nil || r.Fix == nil {
			continue
		}
		r.Fix(fixed, ctx)
		applied++
	}

	if applied > 0 {
		out.AutoFixed = true
		out.FixedContent = fixed
		e.logger.Info("proposal auto-fixed",
			"proposal_id", proposal.ProposalID, "fixes_applied", applied)
	}
	return out
}

// RuleStatistics returns per-rule violation counts by severity observed
// since engine start. In-memory only; not persisted.
func (e *Engine) RuleStatistics() map[string]map[contracts.Severity]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]map[contracts.Severity]int, len(e.stats))
	for code, bySev := range e.stats {
		inner := make(map[contracts.Severity]int, len(bySev))
		for sev, n := range bySev {
			inner[sev] = n
		}
		out[code] = inner
	}
	return out
}

func (e *Engine) recordViolation(v *contracts.RuleViolation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bySev := e.stats[v.RuleCode]
	if bySev == nil {
		bySev = make(map[contracts.Severity]int)
		e.stats[v.RuleCode] = bySev
	}
	bySev[v.Severity]++
}
