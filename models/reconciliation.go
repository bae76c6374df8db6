package models

import "github.com/shopspring/decimal"

// ReconciliationResult is the outcome of applying extracted adjustments to an
// original amount and comparing the result with the legacy net amount.
// Amounts are unrounded; rounding to cents happens when persisted.
type ReconciliationResult struct {
	OriginalAmount   decimal.Decimal  `json:"original_amount"`
	LegacyNetAmount  decimal.Decimal  `json:"legacy_net_amount"`
	ReconciledAmount decimal.Decimal  `json:"reconciled_amount"`
	DiscountAmount   decimal.Decimal  `json:"discount_amount"`
	FeeAmount        decimal.Decimal  `json:"fee_amount"`
	VarianceAmount   decimal.Decimal  `json:"variance_amount"`
	Status           ValidationStatus `json:"status"`
	Trace            []string         `json:"trace"`
	// Applied holds the adjustments that actually moved the amount, in order.
	Applied []FinancialAdjustment `json:"applied"`
	// UsedLegacyFallback is set when no adjustments were found and the legacy
	// net amount was taken verbatim.
	UsedLegacyFallback bool `json:"used_legacy_fallback"`
}

func (r ReconciliationResult) IsReconciled() bool {
	return r.Status == ValidationStatusReconciled
}
