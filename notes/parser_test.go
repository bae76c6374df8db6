package notes

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParse_EmptyNotes(t *testing.T) {
	p := NewParser()
	for _, note := range []string{"", "   ", "NULL", "None", "nan", "N/A", "-"} {
		adjs, trace := p.Parse(note, dec("100"))
		if len(adjs) != 0 {
			t.Fatalf("note %q: expected no adjustments, got %+v", note, adjs)
		}
		if len(trace) != 1 {
			t.Fatalf("note %q: expected a single trace line, got %v", note, trace)
		}
	}
}

func TestParse_SpecialArrangementShortCircuits(t *testing.T) {
	p := NewParser()
	adjs, trace := p.Parse("Pay only $50 (staff discount 10%, late fee $5)", dec("200"))
	if len(adjs) != 1 {
		t.Fatalf("expected exactly one adjustment, got %+v", adjs)
	}
	a := adjs[0]
	if a.Kind != models.AdjustmentKindSpecialArrangement || !a.ComputedAmount.Equal(dec("150")) {
		t.Fatalf("unexpected adjustment: %+v", a)
	}
	for _, line := range trace {
		if strings.Contains(line, "discount candidate") || strings.HasPrefix(line, "fee ") {
			t.Fatalf("no discount/fee scanning expected after a final amount, trace=%v", trace)
		}
	}
}

func TestParse_FinalAmountVariants(t *testing.T) {
	p := NewParser()
	cases := []struct {
		note     string
		original string
		want     string
	}{
		{"final amount: 1,200.00", "1500", "300"},
		{"special arrangement with parents, agreed $700", "1000", "300"},
		{"agreed amount 90 baht", "100", "10"},
		{"จ่ายเพียง 3000 บาท", "5000", "2000"},
	}
	for _, tc := range cases {
		adjs, _ := p.Parse(tc.note, dec(tc.original))
		if len(adjs) != 1 || adjs[0].Kind != models.AdjustmentKindSpecialArrangement {
			t.Fatalf("%q: expected one special arrangement, got %+v", tc.note, adjs)
		}
		if !adjs[0].ComputedAmount.Equal(dec(tc.want)) {
			t.Fatalf("%q: expected %s, got %s", tc.note, tc.want, adjs[0].ComputedAmount)
		}
	}
}

func TestParse_FinalAmountAboveOriginalIgnored(t *testing.T) {
	p := NewParser()
	adjs, trace := p.Parse("pay only $250", dec("200"))
	if len(adjs) != 0 {
		t.Fatalf("expected no adjustments, got %+v", adjs)
	}
	if !strings.Contains(strings.Join(trace, "\n"), "exceeds original") {
		t.Fatalf("expected the ignored match in the trace, got %v", trace)
	}
}

func TestParse_SingleDiscountLargestWins(t *testing.T) {
	p := NewParser()
	adjs, _ := p.Parse("Staff discount 10%, sibling discount $50", dec("1000"))
	if len(adjs) != 1 {
		t.Fatalf("expected one discount, got %+v", adjs)
	}
	if adjs[0].GLType != models.GLTypeStaff || !adjs[0].ComputedAmount.Equal(dec("100")) {
		t.Fatalf("expected staff 100.00, got %+v", adjs[0])
	}

	adjs, _ = p.Parse("Staff discount 10%, sibling discount $150", dec("1000"))
	if len(adjs) != 1 || adjs[0].GLType != models.GLTypeFamily || !adjs[0].ComputedAmount.Equal(dec("150")) {
		t.Fatalf("expected family 150.00, got %+v", adjs)
	}
}

func TestParse_DiscountTieKeepsEarlierCategory(t *testing.T) {
	p := NewParser()
	adjs, _ := p.Parse("$100 off, early bird $100", dec("1000"))
	if len(adjs) != 1 || adjs[0].GLType != models.GLTypeEarlyBird {
		t.Fatalf("expected early_bird to win the tie, got %+v", adjs)
	}
}

func TestParse_DiscountForms(t *testing.T) {
	p := NewParser()
	cases := []struct {
		note   string
		gl     models.GLType
		kind   models.AdjustmentKind
		amount string
	}{
		{"10% off", models.GLTypeGeneral, models.AdjustmentKindDiscount, "50"},
		{"early-bird 5%", models.GLTypeEarlyBird, models.AdjustmentKindDiscount, "25"},
		{"monk 20 percent", models.GLTypeReligious, models.AdjustmentKindDiscount, "100"},
		{"scholarship $300", models.GLTypeScholarship, models.AdjustmentKindScholarship, "300"},
		{"฿200 discount", models.GLTypeGeneral, models.AdjustmentKindDiscount, "200"},
		{"ส่วนลด 10%", models.GLTypeGeneral, models.AdjustmentKindDiscount, "50"},
		{"พี่น้อง 100 บาท", models.GLTypeFamily, models.AdjustmentKindDiscount, "100"},
		{"Full scholarship", models.GLTypeScholarship, models.AdjustmentKindScholarship, "500"},
	}
	for _, tc := range cases {
		adjs, trace := p.Parse(tc.note, dec("500"))
		if len(adjs) != 1 {
			t.Fatalf("%q: expected one adjustment, got %+v\ntrace=%v", tc.note, adjs, trace)
		}
		a := adjs[0]
		if a.GLType != tc.gl || a.Kind != tc.kind || !a.ComputedAmount.Equal(dec(tc.amount)) {
			t.Fatalf("%q: got %s/%s %s, want %s/%s %s", tc.note, a.Kind, a.GLType, a.ComputedAmount, tc.kind, tc.gl, tc.amount)
		}
	}
}

func TestParse_PercentageOutOfRangeRejected(t *testing.T) {
	p := NewParser()
	adjs, trace := p.Parse("staff 150%", dec("100"))
	if len(adjs) != 0 {
		t.Fatalf("expected no adjustments, got %+v", adjs)
	}
	if !strings.Contains(strings.Join(trace, "\n"), "outside (0,100]") {
		t.Fatalf("expected rejection in trace, got %v", trace)
	}
}

func TestParse_FeesAccumulate(t *testing.T) {
	p := NewParser()
	adjs, _ := p.Parse("discount $50; late fee $20, admin fee $10", dec("500"))
	if len(adjs) != 3 {
		t.Fatalf("expected discount + 2 fees, got %+v", adjs)
	}
	if adjs[0].Kind != models.AdjustmentKindDiscount || !adjs[0].Value.Equal(dec("50")) {
		t.Fatalf("unexpected discount: %+v", adjs[0])
	}
	if adjs[1].GLType != models.GLTypeLateFee || !adjs[1].Value.Equal(dec("20")) {
		t.Fatalf("unexpected first fee: %+v", adjs[1])
	}
	if adjs[2].GLType != models.GLTypeAdminFee || !adjs[2].Value.Equal(dec("10")) {
		t.Fatalf("unexpected second fee: %+v", adjs[2])
	}
}

func TestParse_NearestKeywordClaimsNumber(t *testing.T) {
	p := NewParser()
	adjs, _ := p.Parse("late fee $5 admin fee $7", dec("100"))
	if len(adjs) != 2 {
		t.Fatalf("expected 2 fees, got %+v", adjs)
	}
	if adjs[0].GLType != models.GLTypeLateFee || !adjs[0].Value.Equal(dec("5")) {
		t.Fatalf("$5 should belong to the late fee: %+v", adjs[0])
	}
	if adjs[1].GLType != models.GLTypeAdminFee || !adjs[1].Value.Equal(dec("7")) {
		t.Fatalf("$7 should belong to the admin fee: %+v", adjs[1])
	}
}

func TestParse_RepeatedFeeAmountsAccumulate(t *testing.T) {
	adjs, trace := NewParser().Parse("late fee 5 reg fee 5", dec("200"))
	if len(adjs) != 2 {
		t.Fatalf("expected both fees, got %+v\ntrace=%v", adjs, trace)
	}
	if adjs[0].GLType != models.GLTypeLateFee || adjs[1].GLType != models.GLTypeAdminFee {
		t.Fatalf("unexpected fees: %+v", adjs)
	}
	for _, a := range adjs {
		if !a.ComputedAmount.Equal(dec("5")) {
			t.Fatalf("expected 5.00 per fee, got %+v", a)
		}
	}
}

func TestParse_FeeReadTwiceCountsOnce(t *testing.T) {
	adjs, trace := NewParser().Parse("$5 late fee $5", dec("100"))
	if len(adjs) != 1 || adjs[0].GLType != models.GLTypeLateFee || !adjs[0].Value.Equal(dec("5")) {
		t.Fatalf("expected a single late fee of 5, got %+v", adjs)
	}
	if !strings.Contains(strings.Join(trace, "\n"), "duplicates") {
		t.Fatalf("expected duplicate in trace, got %v", trace)
	}
}

func TestParse_NumberBeforeKeyword(t *testing.T) {
	p := NewParser()
	cases := []struct {
		note      string
		gl        models.GLType
		kind      models.AdjustmentKind
		valueType models.ValueType
		amount    string
	}{
		{"10% staff discount", models.GLTypeStaff, models.AdjustmentKindDiscount, models.ValueTypePercentage, "100"},
		{"$50 staff discount", models.GLTypeStaff, models.AdjustmentKindDiscount, models.ValueTypeFixed, "50"},
		{"10% scholarship", models.GLTypeScholarship, models.AdjustmentKindScholarship, models.ValueTypePercentage, "100"},
		{"5% late fee", models.GLTypeLateFee, models.AdjustmentKindFee, models.ValueTypePercentage, "50"},
		{"$20 late fee", models.GLTypeLateFee, models.AdjustmentKindFee, models.ValueTypeFixed, "20"},
		{"5 reg fee", models.GLTypeAdminFee, models.AdjustmentKindFee, models.ValueTypeFixed, "5"},
	}
	for _, tc := range cases {
		adjs, trace := p.Parse(tc.note, dec("1000"))
		if len(adjs) != 1 {
			t.Fatalf("%q: expected one adjustment, got %+v\ntrace=%v", tc.note, adjs, trace)
		}
		a := adjs[0]
		if a.GLType != tc.gl || a.Kind != tc.kind || a.ValueType != tc.valueType || !a.ComputedAmount.Equal(dec(tc.amount)) {
			t.Fatalf("%q: got %s/%s %s %s, want %s/%s %s %s", tc.note, a.Kind, a.GLType, a.ValueType, a.ComputedAmount,
				tc.kind, tc.gl, tc.valueType, tc.amount)
		}
	}
}

func TestParse_PaidOffIsNotADiscount(t *testing.T) {
	adjs, _ := NewParser().Parse("balance paid off 300", dec("1000"))
	if len(adjs) != 0 {
		t.Fatalf("expected no adjustments, got %+v", adjs)
	}
}

func TestParse_DatesAreNotAmounts(t *testing.T) {
	p := NewParser()
	adjs, _ := p.Parse("paid 15/01/2019 staff", dec("100"))
	if len(adjs) != 0 {
		t.Fatalf("expected no adjustments from a date, got %+v", adjs)
	}
}

func TestParse_UnrecognizedNote(t *testing.T) {
	p := NewParser()
	adjs, trace := p.Parse("paid by father at front desk", dec("100"))
	if len(adjs) != 0 {
		t.Fatalf("expected no adjustments, got %+v", adjs)
	}
	if trace[len(trace)-1] != "no adjustments recognized" {
		t.Fatalf("unexpected trace tail: %v", trace)
	}
}
