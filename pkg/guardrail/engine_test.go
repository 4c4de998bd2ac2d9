package guardrail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

func testProposal(pType string, content map[string]any) *contracts.Proposal {
	return &contracts.Proposal{
		ProposalID: "prop-001",
		Type:       pType,
		Content:    content,
		Confidence: 0.9,
		Reasoning:  "model suggestion",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSingleHighDoesNotRequireApproval(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	// Discount below cost: amount 5000 against cost price 4000 is one HIGH.
	p := testProposal("discount_apply", map[string]any{
		"amount":     5000.0,
		"cost_price": 4000.0,
	})
	result := e.Evaluate(p, map[string]any{})

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "FIN_DISCOUNT_BELOW_COST", result.Violations[0].RuleCode)
	assert.Equal(t, contracts.SeverityHigh, result.Violations[0].Severity)
	assert.False(t, result.RequiresHumanApproval)
}

func TestTwoHighViolationsFlipApproval(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	// Same discount plus a refund whose store already exceeds the daily
	// refund threshold: two compounding HIGH risks.
	p := testProposal("discount_apply", map[string]any{
		"amount":        5000.0,
		"cost_price":    4000.0,
		"refund_amount": 20.0,
		"has_receipt":   true,
	})
	ctx := map[string]any{
		"daily_refund_rate":     0.4,
		"refund_rate_threshold": 0.2,
	}
	result := e.Evaluate(p, ctx)

	require.Equal(t, 2, result.CountSeverity(contracts.SeverityHigh))
	assert.Zero(t, result.CountSeverity(contracts.SeverityCritical))
	assert.True(t, result.RequiresHumanApproval)
}

func TestCriticalAlwaysRequiresApproval(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	p := testProposal("shift_schedule", map[string]any{
		"staff_count": 1.0,
	})
	ctx := map[string]any{"legal_min_staff": 3.0}
	result := e.Evaluate(p, ctx)

	require.True(t, result.HasCritical())
	assert.True(t, result.RequiresHumanApproval)
}

func TestAutoFixNeverFixesWithCriticalPresent(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	// One CRITICAL (staff below legal minimum) plus one fixable MEDIUM
	// (negative amount). The critical violation must block all fixing.
	p := testProposal("shift_schedule", map[string]any{
		"staff_count": 1.0,
		"amount":      -5.0,
	})
	ctx := map[string]any{"legal_min_staff": 3.0}
	result := e.Evaluate(p, ctx)
	require.True(t, result.HasCritical())

	fixed := e.AutoFixProposal(p, result, ctx)
	assert.False(t, fixed.AutoFixed)
	assert.Nil(t, fixed.FixedContent)
}

func TestAutoFixAppliesMediumAndLowFixes(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	p := testProposal("order_create", map[string]any{
		"amount":     -10.0,
		"total":      99.0,
		"unit_price": 10.0,
		"quantity":   5.0,
	})
	result := e.Evaluate(p, map[string]any{})
	require.False(t, result.HasCritical())
	require.NotEmpty(t, result.Violations)

	fixed := e.AutoFixProposal(p, result, map[string]any{})
	require.True(t, fixed.AutoFixed)
	require.NotNil(t, fixed.FixedContent)
	assert.Equal(t, 0.0, fixed.FixedContent["amount"])
	assert.Equal(t, 50.0, fixed.FixedContent["total"])

	// Original proposal content must be untouched.
	assert.Equal(t, -10.0, p.Content["amount"])
	assert.Equal(t, 99.0, p.Content["total"])
}

func TestHighViolationsAreNotAutoFixed(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	// Purchase over budget is HIGH and marked fixable, but auto-fix only
	// touches MEDIUM and LOW severities.
	p := testProposal("purchase_order", map[string]any{"amount": 9000.0})
	ctx := map[string]any{"monthly_budget_remaining": 5000.0}
	result := e.Evaluate(p, ctx)
	require.Len(t, result.Violations, 1)
	require.Equal(t, contracts.SeverityHigh, result.Violations[0].Severity)

	fixed := e.AutoFixProposal(p, result, ctx)
	assert.False(t, fixed.AutoFixed)
}

func TestRuleStatisticsAccumulate(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	p := testProposal("discount_apply", map[string]any{
		"amount":     5000.0,
		"cost_price": 4000.0,
	})
	for i := 0; i < 3; i++ {
		e.Evaluate(p, nil)
	}

	stats := e.RuleStatistics()
	require.Contains(t, stats, "FIN_DISCOUNT_BELOW_COST")
	assert.Equal(t, 3, stats["FIN_DISCOUNT_BELOW_COST"][contracts.SeverityHigh])
}

func TestCatalogHasAtLeastFifteenRules(t *testing.T) {
	assert.GreaterOrEqual(t, len(DefaultCatalog()), 15)
}

func TestRulesSkipProposalsWithoutRelevantFields(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	p := testProposal("shift_report", map[string]any{"note": "all good"})
	result := e.Evaluate(p, map[string]any{})
	assert.Empty(t, result.Violations)
	assert.False(t, result.RequiresHumanApproval)
}
