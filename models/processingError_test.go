package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	if ClassifyError(nil) != nil {
		t.Fatalf("nil should classify to nil")
	}

	pe := NewProcessingError(FailureMissingStudent, "student S1 not found", nil)
	wrapped := fmt.Errorf("materialize: %w", pe)
	got := ClassifyError(wrapped)
	if got.Category != FailureMissingStudent {
		t.Fatalf("expected MISSING_STUDENT through wrapping, got %s", got.Category)
	}

	plain := errors.New("connection reset")
	got = ClassifyError(plain)
	if got.Category != FailureProcessingError {
		t.Fatalf("expected PROCESSING_ERROR, got %s", got.Category)
	}
	if !errors.Is(got, plain) {
		t.Fatalf("classified error should unwrap to the original")
	}
}

func TestFailureCategoryFlags(t *testing.T) {
	if !FailureNullTermDropped.IsSkip() {
		t.Fatalf("NULL_TERM_DROPPED must be a skip")
	}
	for _, c := range AllFailureCategories {
		if c != FailureNullTermDropped && c.IsSkip() {
			t.Fatalf("%s must not be a skip", c)
		}
	}
	if !FailureMissingTerm.IsMissingEntity() || FailureMissingData.IsMissingEntity() {
		t.Fatalf("missing-entity flag wrong")
	}
}

func TestInvoiceNumbers(t *testing.T) {
	if got := InvoiceNumberFor("2019/T1", "R 100", "42"); got != "INV-2019_T1-R_100-42" {
		t.Fatalf("unexpected invoice number %q", got)
	}
	if got := InvoiceNumberFor("", "R1", "7"); got != "INV-NA-R1-7" {
		t.Fatalf("unexpected invoice number %q", got)
	}
	if got := PlaceholderInvoiceNumber("42"); got != "LEGACY-42" {
		t.Fatalf("unexpected placeholder number %q", got)
	}
}

func TestPaymentMethodFromLegacy(t *testing.T) {
	cases := map[string]PaymentMethod{
		"Cash":          PaymentMethodCash,
		"1":             PaymentMethodCash,
		"CHEQUE":        PaymentMethodCheck,
		"Visa card":     PaymentMethodCard,
		"bank transfer": PaymentMethodTransfer,
		"โอน":           PaymentMethodTransfer,
		"":              PaymentMethodOther,
		"barter":        PaymentMethodOther,
	}
	for in, want := range cases {
		if got := PaymentMethodFromLegacy(in); got != want {
			t.Fatalf("PaymentMethodFromLegacy(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLegacyReceiptFlags(t *testing.T) {
	r := LegacyReceipt{Deleted: "1", TermID: "NULL", ReceiptDate: "2019-08-01"}
	if !r.IsDeleted() {
		t.Fatalf("expected deleted")
	}
	if r.HasTerm() {
		t.Fatalf("NULL term should not count as a term")
	}
	if d := r.ParsedReceiptDate(); d == nil || d.Year() != 2019 {
		t.Fatalf("expected parsed date, got %v", d)
	}
	r = LegacyReceipt{Deleted: "0", TermID: "2019T1", ReceiptDate: "garbage"}
	if r.IsDeleted() || !r.HasTerm() || r.ParsedReceiptDate() != nil {
		t.Fatalf("unexpected flags for %+v", r)
	}
}

func TestParsedReceiptDate_SlashesAreDayFirst(t *testing.T) {
	cases := []struct {
		in    string
		month time.Month
		day   int
	}{
		{"03/04/2019", time.April, 3},
		{"3/4/2019", time.April, 3},
		{"13/01/2019", time.January, 13},
		{"03/04/2019 09:30", time.April, 3},
	}
	for _, tc := range cases {
		d := LegacyReceipt{ReceiptDate: tc.in}.ParsedReceiptDate()
		if d == nil || d.Month() != tc.month || d.Day() != tc.day {
			t.Fatalf("%q: expected %s %d, got %v", tc.in, tc.month, tc.day, d)
		}
	}
	if d := (LegacyReceipt{ReceiptDate: "01/13/2019"}).ParsedReceiptDate(); d != nil {
		t.Fatalf("month-first date should not parse, got %v", d)
	}
}

func TestBatchRunErrorCountsRoundTrip(t *testing.T) {
	run := &BatchRun{ProcessedCount: 10, SkippedCount: 2, SuccessfulCount: 6}
	run.SetErrorCounts(map[string]int{"MISSING_STUDENT": 2})
	if got := run.ErrorCounts()["MISSING_STUDENT"]; got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if rate := run.SuccessRate(); rate != 0.75 {
		t.Fatalf("expected 0.75, got %v", rate)
	}
}
