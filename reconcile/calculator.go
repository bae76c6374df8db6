// Package reconcile applies parsed note adjustments to a receipt's original
// amount and classifies the result against the legacy net amount.
package reconcile

import (
	"fmt"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/shopspring/decimal"
)

// Calculator is a pure function holder. Amounts are never rounded here.
type Calculator struct {
	// Tolerance is the largest variance still classified RECONCILED (exclusive).
	Tolerance decimal.Decimal
}

func NewCalculator() *Calculator {
	return &Calculator{Tolerance: utils.MoneyTolerance}
}

type computation struct {
	amount   decimal.Decimal
	discount decimal.Decimal
	fees     decimal.Decimal
	applied  []models.FinancialAdjustment
	trace    []string
}

// Reconcile derives the reconciled amount from original and adjustments and
// compares it with legacyNet. With no adjustments the legacy net amount is
// taken verbatim.
func (c *Calculator) Reconcile(original, legacyNet decimal.Decimal, adjustments []models.FinancialAdjustment) models.ReconciliationResult {
	res := models.ReconciliationResult{
		OriginalAmount:  original,
		LegacyNetAmount: legacyNet,
	}
	if len(adjustments) == 0 {
		res.ReconciledAmount = legacyNet
		res.UsedLegacyFallback = true
		res.Trace = []string{
			fmt.Sprintf("start: original %s", original.StringFixed(2)),
			fmt.Sprintf("no adjustments: legacy net %s taken as reconciled", legacyNet.StringFixed(2)),
		}
	} else {
		comp := c.apply(original, adjustments)
		res.ReconciledAmount = comp.amount
		res.DiscountAmount = comp.discount
		res.FeeAmount = comp.fees
		res.Applied = comp.applied
		res.Trace = comp.trace
	}

	res.VarianceAmount = legacyNet.Sub(res.ReconciledAmount).Abs()
	if res.VarianceAmount.LessThan(c.Tolerance) {
		res.Status = models.ValidationStatusReconciled
	} else {
		res.Status = models.ValidationStatusVarianceDetected
	}
	res.Trace = append(res.Trace, fmt.Sprintf("reconciled %s vs legacy net %s: variance %s %s",
		res.ReconciledAmount.StringFixed(2), legacyNet.StringFixed(2), res.VarianceAmount.StringFixed(2), res.Status))
	return res
}

// ReconcileWithoutLegacyNet handles receipts whose legacy net amount is
// blank. Nothing can be compared, so the result is ESTIMATED with zero variance.
func (c *Calculator) ReconcileWithoutLegacyNet(original decimal.Decimal, adjustments []models.FinancialAdjustment) models.ReconciliationResult {
	res := models.ReconciliationResult{
		OriginalAmount: original,
		Status:         models.ValidationStatusEstimated,
		VarianceAmount: decimal.Zero,
	}
	if len(adjustments) == 0 {
		res.ReconciledAmount = original
		res.Trace = []string{
			fmt.Sprintf("start: original %s", original.StringFixed(2)),
			"no adjustments and no legacy net: original taken as reconciled",
		}
	} else {
		comp := c.apply(original, adjustments)
		res.ReconciledAmount = comp.amount
		res.DiscountAmount = comp.discount
		res.FeeAmount = comp.fees
		res.Applied = comp.applied
		res.Trace = comp.trace
	}
	res.LegacyNetAmount = res.ReconciledAmount
	res.Trace = append(res.Trace, fmt.Sprintf("reconciled %s: legacy net missing, %s", res.ReconciledAmount.StringFixed(2), res.Status))
	return res
}

func (c *Calculator) apply(original decimal.Decimal, adjustments []models.FinancialAdjustment) computation {
	comp := computation{
		amount:   original,
		discount: decimal.Zero,
		fees:     decimal.Zero,
		trace:    []string{fmt.Sprintf("start: original %s", original.StringFixed(2))},
	}

	var discounts, fees []models.FinancialAdjustment
	for _, adj := range adjustments {
		switch {
		case adj.Reduces():
			discounts = append(discounts, adj)
		case adj.IsFee():
			fees = append(fees, adj)
		default:
			comp.trace = append(comp.trace, fmt.Sprintf("skip %s: unknown kind", adj.Describe()))
		}
	}

	if len(discounts) > 0 {
		best := 0
		for i := 1; i < len(discounts); i++ {
			if discounts[i].AmountAgainst(original).GreaterThan(discounts[best].AmountAgainst(original)) {
				best = i
			}
		}
		for i, d := range discounts {
			if i != best {
				comp.trace = append(comp.trace, fmt.Sprintf("ignore %s: only one discount applies", d.Describe()))
			}
		}
		d := discounts[best]
		before := comp.amount
		if d.IsPercentage() {
			factor := utils.DecimalHundred.Sub(d.Value).Div(utils.DecimalHundred)
			comp.amount = comp.amount.Mul(factor)
		} else {
			comp.amount = comp.amount.Sub(d.Value)
		}
		comp.amount = c.clamp(comp.amount, &comp.trace)
		comp.discount = before.Sub(comp.amount)
		comp.applied = append(comp.applied, d)
		comp.trace = append(comp.trace, fmt.Sprintf("apply %s: %s -> %s", d.Describe(), before.StringFixed(2), comp.amount.StringFixed(2)))
	}

	for _, f := range fees {
		before := comp.amount
		var add decimal.Decimal
		if f.IsPercentage() {
			add = comp.amount.Mul(f.Value).Div(utils.DecimalHundred)
		} else {
			add = f.Value
		}
		comp.amount = c.clamp(comp.amount.Add(add), &comp.trace)
		comp.fees = comp.fees.Add(comp.amount.Sub(before))
		comp.applied = append(comp.applied, f)
		comp.trace = append(comp.trace, fmt.Sprintf("add %s: %s -> %s", f.Describe(), before.StringFixed(2), comp.amount.StringFixed(2)))
	}
	return comp
}

func (c *Calculator) clamp(amount decimal.Decimal, trace *[]string) decimal.Decimal {
	if amount.IsNegative() {
		*trace = append(*trace, fmt.Sprintf("clamp %s to 0.00", amount.StringFixed(2)))
		return decimal.Zero
	}
	return amount
}
