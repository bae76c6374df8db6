package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the reconstructed bill for one legacy receipt.
// Natural keys: InvoiceNumber and LegacyIPK, both unique.
type Invoice struct {
	ID             int               `gorm:"primary_key" json:"id"`
	InvoiceNumber  string            `gorm:"size:128;not null;uniqueIndex" json:"invoice_number"`
	LegacyIPK      string            `gorm:"size:64;not null;uniqueIndex" json:"legacy_ipk"`
	ReceiptNo      string            `gorm:"size:64;index" json:"receipt_no"`
	StudentId      int               `gorm:"index;default:null" json:"student_id"`
	TermId         int               `gorm:"index;default:null" json:"term_id"`
	TermCode       string            `gorm:"size:64" json:"term_code"`
	InvoiceDate    *time.Time        `json:"invoice_date"`
	Subtotal       decimal.Decimal   `gorm:"type:decimal(15,2);default:0" json:"subtotal"`
	DiscountAmount decimal.Decimal   `gorm:"type:decimal(15,2);default:0" json:"discount_amount"`
	FeeAmount      decimal.Decimal   `gorm:"type:decimal(15,2);default:0" json:"fee_amount"`
	TotalAmount    decimal.Decimal   `gorm:"type:decimal(15,2);default:0" json:"total_amount"`
	PaidAmount     decimal.Decimal   `gorm:"type:decimal(15,2);default:0" json:"paid_amount"`
	Status         InvoiceStatus     `gorm:"size:20;not null" json:"status"`
	IsPlaceholder  bool              `gorm:"not null;default:false;index" json:"is_placeholder"`
	IsScholarship  bool              `gorm:"not null;default:false" json:"is_scholarship"`
	Notes          string            `gorm:"type:text" json:"notes"`
	LineItems      []InvoiceLineItem `gorm:"foreignKey:InvoiceId" json:"line_items"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type LineItemType string

const (
	LineItemTypeBase     LineItemType = "BASE"
	LineItemTypeDiscount LineItemType = "DISCOUNT"
	LineItemTypeFee      LineItemType = "FEE"
)

type InvoiceLineItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	LineNo      int             `gorm:"not null" json:"line_no"`
	ItemType    LineItemType    `gorm:"size:20;not null" json:"item_type"`
	GLType      GLType          `gorm:"size:40" json:"gl_type"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// InvoiceNumberFor derives the traceable invoice number of a legacy receipt.
// The IPK suffix keeps numbers unique when receipt numbers repeat within a term.
func InvoiceNumberFor(termCode, receiptNo, ipk string) string {
	return fmt.Sprintf("INV-%s-%s-%s", sanitizeNumberPart(termCode), sanitizeNumberPart(receiptNo), sanitizeNumberPart(ipk))
}

// PlaceholderInvoiceNumber is the number used when a receipt could not be reconstructed.
func PlaceholderInvoiceNumber(ipk string) string {
	return "LEGACY-" + sanitizeNumberPart(ipk)
}

func sanitizeNumberPart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
