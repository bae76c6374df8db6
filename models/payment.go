package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment records the money received against a reconstructed invoice.
// Natural key: LegacyIPK.
type Payment struct {
	ID                int             `gorm:"primary_key" json:"id"`
	LegacyIPK         string          `gorm:"size:64;not null;uniqueIndex" json:"legacy_ipk"`
	InvoiceId         int             `gorm:"index;not null" json:"invoice_id"`
	ReceiptNo         string          `gorm:"size:64" json:"receipt_no"`
	StudentId         int             `gorm:"index;default:null" json:"student_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"amount"`
	PaymentMethod     PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	LegacyPaymentType string          `gorm:"size:64" json:"legacy_payment_type"`
	Status            PaymentStatus   `gorm:"size:20;not null" json:"status"`
	IsPlaceholder     bool            `gorm:"not null;default:false;index" json:"is_placeholder"`
	PaidAt            *time.Time      `json:"paid_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentMethodFromLegacy maps the free-form legacy PmtType column.
func PaymentMethodFromLegacy(pmtType string) PaymentMethod {
	v := strings.ToLower(strings.TrimSpace(pmtType))
	switch {
	case v == "":
		return PaymentMethodOther
	case v == "1" || strings.Contains(v, "cash") || strings.Contains(v, "เงินสด"):
		return PaymentMethodCash
	case v == "2" || strings.Contains(v, "cheque") || strings.Contains(v, "check") || strings.Contains(v, "chq"):
		return PaymentMethodCheck
	case v == "3" || strings.Contains(v, "card") || strings.Contains(v, "visa") || strings.Contains(v, "master"):
		return PaymentMethodCard
	case v == "4" || strings.Contains(v, "transfer") || strings.Contains(v, "bank") || v == "tt" || strings.Contains(v, "โอน"):
		return PaymentMethodTransfer
	case strings.Contains(v, "scholar"):
		return PaymentMethodScholarship
	}
	return PaymentMethodOther
}
