package reconcile

import (
	"testing"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/notes"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixed(kind models.AdjustmentKind, gl models.GLType, v string) models.FinancialAdjustment {
	return models.FinancialAdjustment{Kind: kind, GLType: gl, ValueType: models.ValueTypeFixed, Value: dec(v), ComputedAmount: dec(v)}
}

func percent(kind models.AdjustmentKind, gl models.GLType, v string, base string) models.FinancialAdjustment {
	a := models.FinancialAdjustment{Kind: kind, GLType: gl, ValueType: models.ValueTypePercentage, Value: dec(v)}
	a.ComputedAmount = a.AmountAgainst(dec(base))
	return a
}

func TestReconcile_VarianceClassification(t *testing.T) {
	c := NewCalculator()
	discount := fixed(models.AdjustmentKindDiscount, models.GLTypeGeneral, "20")

	res := c.Reconcile(dec("120"), dec("100"), []models.FinancialAdjustment{discount})
	if res.Status != models.ValidationStatusReconciled || !res.VarianceAmount.IsZero() {
		t.Fatalf("expected RECONCILED with zero variance, got %s %s", res.Status, res.VarianceAmount)
	}

	res = c.Reconcile(dec("125"), dec("100"), []models.FinancialAdjustment{discount})
	if !res.ReconciledAmount.Equal(dec("105")) {
		t.Fatalf("expected reconciled 105, got %s", res.ReconciledAmount)
	}
	if res.Status != models.ValidationStatusVarianceDetected || !res.VarianceAmount.Equal(dec("5")) {
		t.Fatalf("expected VARIANCE_DETECTED 5.00, got %s %s", res.Status, res.VarianceAmount)
	}
}

func TestReconcile_ToleranceBoundary(t *testing.T) {
	c := NewCalculator()
	fee := fixed(models.AdjustmentKindFee, models.GLTypeLateFee, "0.009")
	res := c.Reconcile(dec("100"), dec("100"), []models.FinancialAdjustment{fee})
	if res.Status != models.ValidationStatusReconciled {
		t.Fatalf("variance below one cent must reconcile, got %s (%s)", res.Status, res.VarianceAmount)
	}
	fee = fixed(models.AdjustmentKindFee, models.GLTypeLateFee, "0.01")
	res = c.Reconcile(dec("100"), dec("100"), []models.FinancialAdjustment{fee})
	if res.Status != models.ValidationStatusVarianceDetected {
		t.Fatalf("variance of one cent must be detected, got %s", res.Status)
	}
}

func TestReconcile_NoAdjustmentsFallsBackToLegacyNet(t *testing.T) {
	c := NewCalculator()
	res := c.Reconcile(dec("500"), dec("0"), nil)
	if !res.UsedLegacyFallback || !res.ReconciledAmount.IsZero() || res.Status != models.ValidationStatusReconciled {
		t.Fatalf("unexpected fallback result: %+v", res)
	}
}

func TestReconcile_DiscountThenFees(t *testing.T) {
	c := NewCalculator()
	adjs := []models.FinancialAdjustment{
		percent(models.AdjustmentKindDiscount, models.GLTypeStaff, "10", "1000"),
		fixed(models.AdjustmentKindFee, models.GLTypeLateFee, "20"),
		percent(models.AdjustmentKindFee, models.GLTypeAdminFee, "5", "1000"),
	}
	res := c.Reconcile(dec("1000"), dec("966"), adjs)
	// 1000 * 0.9 = 900; + 20 = 920; + 920 * 5% = 966
	if !res.ReconciledAmount.Equal(dec("966")) {
		t.Fatalf("expected 966, got %s\ntrace=%v", res.ReconciledAmount, res.Trace)
	}
	if !res.DiscountAmount.Equal(dec("100")) || !res.FeeAmount.Equal(dec("66")) {
		t.Fatalf("unexpected totals discount=%s fees=%s", res.DiscountAmount, res.FeeAmount)
	}
	if len(res.Applied) != 3 || !res.IsReconciled() {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReconcile_OnlyLargestDiscountApplies(t *testing.T) {
	c := NewCalculator()
	adjs := []models.FinancialAdjustment{
		fixed(models.AdjustmentKindDiscount, models.GLTypeFamily, "50"),
		percent(models.AdjustmentKindDiscount, models.GLTypeStaff, "10", "1000"),
	}
	res := c.Reconcile(dec("1000"), dec("900"), adjs)
	if !res.ReconciledAmount.Equal(dec("900")) || len(res.Applied) != 1 || res.Applied[0].GLType != models.GLTypeStaff {
		t.Fatalf("expected the staff discount alone, got %s %+v", res.ReconciledAmount, res.Applied)
	}
}

func TestReconcile_ClampsAtZero(t *testing.T) {
	c := NewCalculator()
	adjs := []models.FinancialAdjustment{
		fixed(models.AdjustmentKindDiscount, models.GLTypeGeneral, "700"),
		fixed(models.AdjustmentKindFee, models.GLTypeAdminFee, "10"),
	}
	res := c.Reconcile(dec("500"), dec("10"), adjs)
	if !res.ReconciledAmount.Equal(dec("10")) {
		t.Fatalf("expected clamp to 0 then +10, got %s", res.ReconciledAmount)
	}
	if !res.DiscountAmount.Equal(dec("500")) {
		t.Fatalf("discount should be limited to the amount due, got %s", res.DiscountAmount)
	}
}

func TestReconcileWithoutLegacyNet(t *testing.T) {
	c := NewCalculator()
	res := c.ReconcileWithoutLegacyNet(dec("200"), []models.FinancialAdjustment{
		fixed(models.AdjustmentKindSpecialArrangement, models.GLTypeSpecialArrangement, "150"),
	})
	if res.Status != models.ValidationStatusEstimated || !res.ReconciledAmount.Equal(dec("50")) || !res.VarianceAmount.IsZero() {
		t.Fatalf("unexpected estimate: %+v", res)
	}
	res = c.ReconcileWithoutLegacyNet(dec("200"), nil)
	if !res.ReconciledAmount.Equal(dec("200")) {
		t.Fatalf("expected original when nothing applies, got %s", res.ReconciledAmount)
	}
}

func TestReconcile_WithParsedNote(t *testing.T) {
	p := notes.NewParser()
	c := NewCalculator()
	original := dec("500")
	adjs, _ := p.Parse("sibling discount 10%, late fee $25 and admin fee $5", original)
	res := c.Reconcile(original, dec("480"), adjs)
	// 500 - 50 + 25 + 5
	if !res.ReconciledAmount.Equal(dec("480")) || !res.IsReconciled() {
		t.Fatalf("expected 480 RECONCILED, got %s %s\ntrace=%v", res.ReconciledAmount, res.Status, res.Trace)
	}
}
