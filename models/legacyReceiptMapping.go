package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LegacyReceiptMapping is the audit row linking one legacy receipt to the
// ledger rows reconstructed from it. Natural key: LegacyIPK.
type LegacyReceiptMapping struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	LegacyIPK            string          `gorm:"size:64;not null;uniqueIndex" json:"legacy_ipk"`
	ReceiptNo            string          `gorm:"size:64;index" json:"receipt_no"`
	LegacyStudentId      string          `gorm:"size:64;index" json:"legacy_student_id"`
	LegacyTermId         string          `gorm:"size:64;index" json:"legacy_term_id"`
	InvoiceId            *int            `gorm:"index" json:"invoice_id"`
	InvoiceNumber        string          `gorm:"size:128" json:"invoice_number"`
	PaymentId            *int            `gorm:"index" json:"payment_id"`
	OriginalAmount       decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"original_amount"`
	LegacyNetAmount      decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"legacy_net_amount"`
	LegacyDiscountAmount decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"legacy_discount_amount"`
	ReconciledAmount     decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"reconciled_amount"`
	VarianceAmount       decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"variance_amount"`
	Notes                string          `gorm:"type:text" json:"notes"`
	AdjustmentsJSON      []byte          `gorm:"type:json" json:"adjustments"`
	ParserTraceJSON      []byte          `gorm:"type:json" json:"parser_trace"`
	CalculationTraceJSON []byte          `gorm:"type:json" json:"calculation_trace"`
	ValidationStatus     string          `gorm:"size:40;not null;index" json:"validation_status"`
	FailureReason        string          `gorm:"type:text" json:"failure_reason"`
	IsScholarship        bool            `gorm:"not null;default:false" json:"is_scholarship"`
	BatchRunId           string          `gorm:"size:36;index" json:"batch_run_id"`
	ProcessedAt          time.Time       `json:"processed_at"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFailure reports whether the mapping records a failed reconstruction.
func (m LegacyReceiptMapping) IsFailure() bool {
	switch m.ValidationStatus {
	case string(ValidationStatusReconciled), string(ValidationStatusVarianceDetected), string(ValidationStatusEstimated):
		return false
	case string(FailureNullTermDropped):
		return false
	}
	return true
}

// ParserTrace decodes ParserTraceJSON, returning nil on empty or invalid data.
func (m LegacyReceiptMapping) ParserTrace() []string {
	return decodeStrings(m.ParserTraceJSON)
}

func (m LegacyReceiptMapping) CalculationTrace() []string {
	return decodeStrings(m.CalculationTraceJSON)
}

func decodeStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
