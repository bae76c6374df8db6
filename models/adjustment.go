package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FinancialAdjustment is one discount, fee, scholarship or special
// arrangement extracted from a receipt note.
type FinancialAdjustment struct {
	Kind       AdjustmentKind  `json:"kind"`
	GLType     GLType          `json:"gl_type"`
	ValueType  ValueType       `json:"value_type"`
	Value      decimal.Decimal `json:"value"`
	// ComputedAmount is the money value of the adjustment against the original amount.
	ComputedAmount decimal.Decimal `json:"computed_amount"`
	SourceText     string          `json:"source_text"`
	Start          int             `json:"start"`
	End            int             `json:"end"`
}

// Reduces reports whether the adjustment lowers the amount due.
func (a FinancialAdjustment) Reduces() bool {
	switch a.Kind {
	case AdjustmentKindDiscount, AdjustmentKindScholarship, AdjustmentKindSpecialArrangement:
		return true
	}
	return false
}

func (a FinancialAdjustment) IsFee() bool {
	return a.Kind == AdjustmentKindFee
}

func (a FinancialAdjustment) IsPercentage() bool {
	return a.ValueType == ValueTypePercentage
}

// Describe renders the adjustment for traces and line-item descriptions.
func (a FinancialAdjustment) Describe() string {
	if a.IsPercentage() {
		return fmt.Sprintf("%s/%s %s%%", a.Kind, a.GLType, a.Value.String())
	}
	return fmt.Sprintf("%s/%s %s", a.Kind, a.GLType, a.Value.StringFixed(2))
}

// AmountAgainst returns the money value of the adjustment applied to base.
func (a FinancialAdjustment) AmountAgainst(base decimal.Decimal) decimal.Decimal {
	if a.IsPercentage() {
		return base.Mul(a.Value).Div(decimal.NewFromInt(100))
	}
	return a.Value
}
