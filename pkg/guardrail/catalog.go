package guardrail

import (
	"fmt"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// DefaultCatalog returns the built-in rule set. Rules only fire when the
// fields they inspect are present, so a proposal is judged by the rules
// relevant to its shape. Context keys carry the domain facts supplied by
// the surrounding data services.
func DefaultCatalog() []Rule {
	rules := []Rule{
		// --- financial ---
		{
			Code:     "FIN_PURCHASE_OVER_BUDGET",
			Category: contracts.CategoryFinancial,
			Severity: contracts.SeverityHigh,
			Fixable:  true,
		},
		{
			Code:     "FIN_DISCOUNT_BELOW_COST",
			Category: contracts.CategoryFinancial,
			Severity: contracts.SeverityHigh,
		},
		{
			Code:     "FIN_SINGLE_TXN_LIMIT",
			Category: contracts.CategoryFinancial,
			Severity: contracts.SeverityCritical,
		},
		{
			Code:     "FIN_NEGATIVE_AMOUNT",
			Category: contracts.CategoryFinancial,
			Severity: contracts.SeverityMedium,
			Fixable:  true,
		},
		// --- operational ---
		{
			Code:     "OPS_STAFF_BELOW_LEGAL_MIN",
			Category: contracts.CategoryOperational,
			Severity: contracts.SeverityCritical,
		},
		{
			Code:     "OPS_STAFF_OVER_CAP",
			Category: contracts.CategoryOperational,
			Severity: contracts.SeverityLow,
			Fixable:  true,
		},
		{
			Code:     "OPS_ORDER_BELOW_SAFETY_STOCK",
			Category: contracts.CategoryOperational,
			Severity: contracts.SeverityMedium,
			Fixable:  true,
		},
		{
			Code:     "OPS_PEAK_UNCOVERED",
			Category: contracts.CategoryOperational,
			Severity: contracts.SeverityMedium,
			Fixable:  true,
		},
		// --- safety ---
		{
			Code:     "SAF_STORAGE_TEMP_RANGE",
			Category: contracts.CategorySafety,
			Severity: contracts.SeverityCritical,
		},
		{
			Code:     "SAF_EXPIRED_GOODS",
			Category: contracts.CategorySafety,
			Severity: contracts.SeverityCritical,
		},
		// --- compliance ---
		{
			Code:     "CMP_MINOR_SHIFT_HOURS",
			Category: contracts.CategoryCompliance,
			Severity: contracts.SeverityCritical,
		},
		{
			Code:     "CMP_DISCOUNT_DISCLOSURE",
			Category: contracts.CategoryCompliance,
			Severity: contracts.SeverityMedium,
			Fixable:  true,
		},
		// --- business ---
		{
			Code:     "BIZ_PROMO_STACKING",
			Category: contracts.CategoryBusiness,
			Severity: contracts.SeverityMedium,
			Fixable:  true,
		},
		{
			Code:     "BIZ_PRICE_BELOW_FLOOR",
			Category: contracts.CategoryBusiness,
			Severity: contracts.SeverityHigh,
		},
		{
			Code:     "BIZ_LINE_TOTAL_MISMATCH",
			Category: contracts.CategoryBusiness,
			Severity: contracts.SeverityLow,
			Fixable:  true,
		},
		// --- refund ---
		{
			Code:     "RF_DAILY_RATE_EXCEEDED",
			Category: contracts.CategoryRefund,
			Severity: contracts.SeverityHigh,
		},
		{
			Code:     "RF_REPEAT_REFUNDER",
			Category: contracts.CategoryRefund,
			Severity: contracts.SeverityMedium,
		},
		{
			Code:     "RF_NO_RECEIPT_OVER_LIMIT",
			Category: contracts.CategoryRefund,
			Severity: contracts.SeverityHigh,
		},
	}

	byCode := make(map[string]*Rule, len(rules))
	for i := range rules {
		byCode[rules[i].Code] = &rules[i]
	}

	attach := func(code string, check func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation, fix func(content, ctx map[string]any)) {
		r := byCode[code]
		r.Check = func(content, ctx map[string]any) *contracts.RuleViolation {
			return check(r, content, ctx)
		}
		r.Fix = fix
	}

	attach("FIN_PURCHASE_OVER_BUDGET",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			amount, ok1 := num(content, "amount")
			remaining, ok2 := num(ctx, "monthly_budget_remaining")
			if ok1 && ok2 && amount > remaining {
				return r.violation(fmt.Sprintf("purchase amount %.2f exceeds remaining monthly budget %.2f", amount, remaining))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			if remaining, ok := num(ctx, "monthly_budget_remaining"); ok {
				content["amount"] = remaining
			}
		})

	attach("FIN_DISCOUNT_BELOW_COST",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			amount, ok1 := num(content, "amount")
			cost, ok2 := num(content, "cost_price")
			if !ok2 {
				cost, ok2 = num(ctx, "cost_price")
			}
			if ok1 && ok2 && amount > cost {
				return r.violation(fmt.Sprintf("discount of %.2f would sell below cost price %.2f", amount, cost))
			}
			return nil
		}, nil)

	attach("FIN_SINGLE_TXN_LIMIT",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			amount, ok := num(content, "amount")
			if !ok {
				return nil
			}
			limit, ok := num(ctx, "single_txn_limit")
			if !ok {
				limit = 50000
			}
			if amount > limit {
				return r.violation(fmt.Sprintf("transaction amount %.2f exceeds hard single-transaction ceiling %.2f", amount, limit))
			}
			return nil
		}, nil)

	attach("FIN_NEGATIVE_AMOUNT",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			if amount, ok := num(content, "amount"); ok && amount < 0 {
				return r.violation(fmt.Sprintf("amount %.2f is negative", amount))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			if amount, ok := num(content, "amount"); ok && amount < 0 {
				content["amount"] = 0.0
			}
		})

	attach("OPS_STAFF_BELOW_LEGAL_MIN",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			staff, ok1 := num(content, "staff_count")
			min, ok2 := num(ctx, "legal_min_staff")
			if ok1 && ok2 && staff < min {
				return r.violation(fmt.Sprintf("proposed staffing %.0f is below the legal minimum %.0f", staff, min))
			}
			return nil
		}, nil)

	attach("OPS_STAFF_OVER_CAP",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			staff, ok1 := num(content, "staff_count")
			cap, ok2 := num(ctx, "max_staff")
			if ok1 && ok2 && staff > cap {
				return r.violation(fmt.Sprintf("proposed staffing %.0f exceeds the store cap %.0f", staff, cap))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			if cap, ok := num(ctx, "max_staff"); ok {
				content["staff_count"] = cap
			}
		})

	attach("OPS_ORDER_BELOW_SAFETY_STOCK",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			qty, ok1 := num(content, "order_quantity")
			stock, ok2 := num(ctx, "current_stock")
			safety, ok3 := num(ctx, "safety_stock")
			if ok1 && ok2 && ok3 && stock+qty < safety {
				return r.violation(fmt.Sprintf("order of %.0f leaves stock below safety level %.0f", qty, safety))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			stock, ok1 := num(ctx, "current_stock")
			safety, ok2 := num(ctx, "safety_stock")
			if ok1 && ok2 && safety > stock {
				content["order_quantity"] = safety - stock
			}
		})

	attach("OPS_PEAK_UNCOVERED",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			staff, ok1 := num(content, "staff_count")
			peak, ok2 := num(ctx, "historical_peak_staff")
			if ok1 && ok2 && staff < peak {
				return r.violation(fmt.Sprintf("proposed staffing %.0f is below the historical peak requirement %.0f", staff, peak))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			if peak, ok := num(ctx, "historical_peak_staff"); ok {
				content["staff_count"] = peak
			}
		})

	attach("SAF_STORAGE_TEMP_RANGE",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			temp, ok := num(content, "storage_temp")
			if !ok {
				return nil
			}
			lo, okLo := num(ctx, "storage_temp_min")
			hi, okHi := num(ctx, "storage_temp_max")
			if (okLo && temp < lo) || (okHi && temp > hi) {
				return r.violation(fmt.Sprintf("storage temperature %.1f outside safe range", temp))
			}
			return nil
		}, nil)

	attach("SAF_EXPIRED_GOODS",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			if days, ok := num(content, "days_to_expiry"); ok && days <= 0 {
				return r.violation("proposal touches goods at or past expiry")
			}
			return nil
		}, nil)

	attach("CMP_MINOR_SHIFT_HOURS",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			minor, ok := boolVal(content, "employee_minor")
			if !ok || !minor {
				return nil
			}
			hours, ok1 := num(content, "shift_hours")
			max, ok2 := num(ctx, "max_minor_hours")
			if !ok2 {
				max = 8
			}
			if ok1 && hours > max {
				return r.violation(fmt.Sprintf("minor scheduled for %.1f hours, above the legal maximum %.1f", hours, max))
			}
			return nil
		}, nil)

	attach("CMP_DISCOUNT_DISCLOSURE",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			pct, ok := num(content, "discount_percent")
			if !ok {
				return nil
			}
			max, okMax := num(ctx, "max_discount_percent")
			if !okMax {
				max = 50
			}
			if pct > max {
				return r.violation(fmt.Sprintf("discount %.0f%% exceeds the disclosable maximum %.0f%%", pct, max))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			max, ok := num(ctx, "max_discount_percent")
			if !ok {
				max = 50
			}
			content["discount_percent"] = max
		})

	attach("BIZ_PROMO_STACKING",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			if n, ok := num(content, "stacked_promotions"); ok && n > 1 {
				return r.violation(fmt.Sprintf("%.0f promotions stacked on one order; only one is allowed", n))
			}
			return nil
		},
		func(content, ctx map[string]any) {
			content["stacked_promotions"] = 1.0
		})

	attach("BIZ_PRICE_BELOW_FLOOR",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			price, ok1 := num(content, "price")
			floor, ok2 := num(ctx, "price_floor")
			if ok1 && ok2 && price < floor {
				return r.violation(fmt.Sprintf("price %.2f is below the brand floor %.2f", price, floor))
			}
			return nil
		}, nil)

	attach("BIZ_LINE_TOTAL_MISMATCH",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			total, ok1 := num(content, "total")
			unit, ok2 := num(content, "unit_price")
			qty, ok3 := num(content, "quantity")
			if ok1 && ok2 && ok3 {
				expected := unit * qty
				if diff := total - expected; diff > 0.01 || diff < -0.01 {
					return r.violation(fmt.Sprintf("line total %.2f does not equal %.2f x %.0f", total, unit, qty))
				}
			}
			return nil
		},
		func(content, ctx map[string]any) {
			unit, ok1 := num(content, "unit_price")
			qty, ok2 := num(content, "quantity")
			if ok1 && ok2 {
				content["total"] = unit * qty
			}
		})

	attach("RF_DAILY_RATE_EXCEEDED",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			rate, ok1 := num(ctx, "daily_refund_rate")
			threshold, ok2 := num(ctx, "refund_rate_threshold")
			if _, isRefund := num(content, "refund_amount"); !isRefund {
				return nil
			}
			if ok1 && ok2 && rate > threshold {
				return r.violation(fmt.Sprintf("store refund rate %.2f already exceeds the daily threshold %.2f", rate, threshold))
			}
			return nil
		}, nil)

	attach("RF_REPEAT_REFUNDER",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			if _, isRefund := num(content, "refund_amount"); !isRefund {
				return nil
			}
			if n, ok := num(ctx, "customer_refund_count_30d"); ok && n >= 3 {
				return r.violation(fmt.Sprintf("customer has %.0f refunds in the last 30 days", n))
			}
			return nil
		}, nil)

	attach("RF_NO_RECEIPT_OVER_LIMIT",
		func(r *Rule, content, ctx map[string]any) *contracts.RuleViolation {
			amount, ok := num(content, "refund_amount")
			if !ok {
				return nil
			}
			if hasReceipt, present := boolVal(content, "has_receipt"); present && !hasReceipt {
				limit, okLimit := num(ctx, "no_receipt_refund_limit")
				if !okLimit {
					limit = 100
				}
				if amount > limit {
					return r.violation(fmt.Sprintf("receiptless refund of %.2f exceeds limit %.2f", amount, limit))
				}
			}
			return nil
		}, nil)

	return rules
}
