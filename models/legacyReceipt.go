package models

import (
	"strings"
	"time"
)

// LegacyReceipt is one row of the legacy receipts extract. Column values are
// kept verbatim; amounts are parsed by the pipeline so malformed figures can
// be classified instead of failing the whole extract.
type LegacyReceipt struct {
	// Position is the index among the records kept for the run. SourceRow is
	// the extract row the record came from, the header being row 1.
	Position    int    `json:"position"`
	SourceRow   int    `json:"source_row"`
	IPK         string `json:"ipk" validate:"required"`
	ReceiptNo   string `json:"receipt_no" validate:"required"`
	StudentID   string `json:"student_id" validate:"required"`
	TermID      string `json:"term_id"`
	Amount      string `json:"amount" validate:"required"`
	NetAmount   string `json:"net_amount"`
	NetDiscount string `json:"net_discount"`
	Notes       string `json:"notes"`
	PmtType     string `json:"pmt_type"`
	Deleted     string `json:"deleted"`
	ReceiptDate string `json:"receipt_date"`
}

// IsDeleted reports the legacy soft-delete flag.
func (r LegacyReceipt) IsDeleted() bool {
	switch strings.ToLower(strings.TrimSpace(r.Deleted)) {
	case "1", "true", "y", "yes":
		return true
	}
	return false
}

// HasTerm reports whether TermID carries a usable value.
func (r LegacyReceipt) HasTerm() bool {
	return !IsNullLike(r.TermID)
}

// Slashed dates in the legacy export are day first.
var receiptDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2/1/2006",
	"2/1/2006 15:04",
	"2006/01/02",
}

// ParsedReceiptDate returns the receipt date when the column is present and parseable.
func (r LegacyReceipt) ParsedReceiptDate() *time.Time {
	v := strings.TrimSpace(r.ReceiptDate)
	if IsNullLike(v) {
		return nil
	}
	for _, layout := range receiptDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// IsNullLike treats the placeholder spellings left by the legacy export as empty.
func IsNullLike(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "none", "nan", "n/a", "na", "-":
		return true
	}
	return false
}
