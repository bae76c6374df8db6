package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LedgerMaterializer writes the invoice, line items and payment of one
// legacy receipt. Every write is a lookup on the natural key followed by an
// update or an insert, so re-running a receipt never duplicates rows.
type LedgerMaterializer struct {
	logger *logrus.Logger
}

func NewLedgerMaterializer(logger *logrus.Logger) *LedgerMaterializer {
	return &LedgerMaterializer{logger: logger}
}

// Materialize persists the ledger rows of a successfully reconciled receipt.
// Scholarship receipts are invoiced at the original amount and settled by a
// SCHOLARSHIP payment of the same amount.
func (m *LedgerMaterializer) Materialize(ctx context.Context, tx store.LedgerTx, record models.LegacyReceipt, student *models.Student, term *models.Term, rc models.ReconciliationResult, scholarship bool) (*models.Invoice, *models.Payment, error) {
	original := utils.RoundMoney(rc.OriginalAmount)
	reconciled := utils.RoundMoney(rc.ReconciledAmount)

	if !scholarship && !reconciled.IsPositive() {
		return nil, nil, models.NewProcessingError(models.FailureInvalidPaymentData,
			fmt.Sprintf("reconciled amount %s on a non-scholarship receipt", reconciled.StringFixed(2)), nil)
	}

	number := models.InvoiceNumberFor(term.Code, record.ReceiptNo, record.IPK)
	inv, err := findInvoice(ctx, tx, number, record.IPK)
	if err != nil {
		config.LogError(m.logger, "ledgerMaterializer.go", "Materialize", "findInvoice", record.IPK, err)
		return nil, nil, models.NewProcessingError(models.FailureProcessingError, "invoice lookup failed", err)
	}
	isNew := inv == nil
	if isNew {
		inv = &models.Invoice{}
	}

	inv.InvoiceNumber = number
	inv.LegacyIPK = record.IPK
	inv.ReceiptNo = record.ReceiptNo
	inv.StudentId = student.ID
	inv.TermId = term.ID
	inv.TermCode = term.Code
	inv.InvoiceDate = record.ParsedReceiptDate()
	inv.Status = models.InvoiceStatusPaid
	inv.IsPlaceholder = false
	inv.IsScholarship = scholarship
	inv.Notes = record.Notes
	inv.Subtotal = original

	var items []models.InvoiceLineItem
	if scholarship {
		inv.DiscountAmount = decimal.Zero
		inv.FeeAmount = decimal.Zero
		inv.TotalAmount = original
		items = []models.InvoiceLineItem{{
			ItemType:    models.LineItemTypeBase,
			GLType:      models.GLTypeScholarship,
			Description: fmt.Sprintf("Tuition %s receipt %s (scholarship funded)", term.Code, record.ReceiptNo),
			Amount:      original,
		}}
	} else {
		inv.DiscountAmount = utils.RoundMoney(rc.DiscountAmount)
		inv.FeeAmount = utils.RoundMoney(rc.FeeAmount)
		inv.TotalAmount = reconciled
		items = buildLineItems(record, term, rc, original, reconciled)
		for _, it := range items {
			// balancing lines from the legacy fallback count towards the totals
			if it.Description == legacyNetAdjustmentDescription {
				if it.ItemType == models.LineItemTypeDiscount {
					inv.DiscountAmount = inv.DiscountAmount.Add(it.Amount.Neg())
				} else {
					inv.FeeAmount = inv.FeeAmount.Add(it.Amount)
				}
			}
		}
	}
	inv.PaidAmount = inv.TotalAmount

	if err := saveInvoice(ctx, tx, inv, isNew); err != nil {
		config.LogError(m.logger, "ledgerMaterializer.go", "Materialize", "saveInvoice", number, err)
		return nil, nil, models.NewProcessingError(models.FailureProcessingError, "invoice write failed", err)
	}
	for i := range items {
		items[i].LineNo = i + 1
	}
	if err := tx.ReplaceLineItems(ctx, inv.ID, items); err != nil {
		config.LogError(m.logger, "ledgerMaterializer.go", "Materialize", "ReplaceLineItems", number, err)
		return nil, nil, models.NewProcessingError(models.FailureProcessingError, "line item write failed", err)
	}
	inv.LineItems = items

	method := models.PaymentMethodFromLegacy(record.PmtType)
	if scholarship {
		method = models.PaymentMethodScholarship
	}
	pay, err := m.upsertPayment(ctx, tx, record, inv, student.ID, method, models.PaymentStatusCompleted, false)
	if err != nil {
		config.LogError(m.logger, "ledgerMaterializer.go", "Materialize", "upsertPayment", record.IPK, err)
		return nil, nil, models.NewProcessingError(models.FailureProcessingError, "payment write failed", err)
	}
	return inv, pay, nil
}

// MaterializePlaceholder gives a failed receipt a cancelled, zero-amount
// invoice and payment carrying its legacy identifiers. A receipt that already
// has a real invoice from an earlier run keeps it untouched.
func (m *LedgerMaterializer) MaterializePlaceholder(ctx context.Context, tx store.LedgerTx, record models.LegacyReceipt, failure *models.ProcessingError) (*models.Invoice, *models.Payment, error) {
	number := models.PlaceholderInvoiceNumber(record.IPK)
	inv, err := findInvoice(ctx, tx, number, record.IPK)
	if err != nil {
		return nil, nil, fmt.Errorf("placeholder invoice lookup: %w", err)
	}
	if inv != nil && !inv.IsPlaceholder {
		pay, err := tx.FindPaymentByLegacyIPK(ctx, record.IPK)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil, fmt.Errorf("payment lookup: %w", err)
		}
		m.logger.WithFields(logrus.Fields{
			"ipk":      record.IPK,
			"invoice":  inv.InvoiceNumber,
			"category": failure.Category,
		}).Warn("receipt failed but keeps its reconstructed invoice from an earlier run")
		return inv, pay, nil
	}
	isNew := inv == nil
	if isNew {
		inv = &models.Invoice{}
	}
	inv.InvoiceNumber = number
	inv.LegacyIPK = record.IPK
	inv.ReceiptNo = record.ReceiptNo
	inv.StudentId = 0
	inv.TermId = 0
	inv.TermCode = record.TermID
	inv.InvoiceDate = record.ParsedReceiptDate()
	inv.Subtotal = decimal.Zero
	inv.DiscountAmount = decimal.Zero
	inv.FeeAmount = decimal.Zero
	inv.TotalAmount = decimal.Zero
	inv.PaidAmount = decimal.Zero
	inv.Status = models.InvoiceStatusCancelled
	inv.IsPlaceholder = true
	inv.IsScholarship = false
	inv.Notes = fmt.Sprintf("%s: %s", failure.Category, failure.Message)

	if err := saveInvoice(ctx, tx, inv, isNew); err != nil {
		return nil, nil, fmt.Errorf("placeholder invoice write: %w", err)
	}
	if err := tx.ReplaceLineItems(ctx, inv.ID, nil); err != nil {
		return nil, nil, fmt.Errorf("placeholder line items: %w", err)
	}
	pay, err := m.upsertPayment(ctx, tx, record, inv, 0, models.PaymentMethodFromLegacy(record.PmtType), models.PaymentStatusCancelled, true)
	if err != nil {
		return nil, nil, fmt.Errorf("placeholder payment write: %w", err)
	}
	return inv, pay, nil
}

const legacyNetAdjustmentDescription = "Legacy net adjustment"

// buildLineItems renders the base amount, the applied discount and each fee.
// When the reconciled figure came from the legacy net amount instead of the
// adjustments, a balancing line keeps the lines summing to the total.
func buildLineItems(record models.LegacyReceipt, term *models.Term, rc models.ReconciliationResult, original, total decimal.Decimal) []models.InvoiceLineItem {
	items := []models.InvoiceLineItem{{
		ItemType:    models.LineItemTypeBase,
		Description: fmt.Sprintf("Tuition %s receipt %s", term.Code, record.ReceiptNo),
		Amount:      original,
	}}
	running := original
	for _, adj := range rc.Applied {
		if adj.Reduces() {
			amount := utils.RoundMoney(rc.DiscountAmount)
			items = append(items, models.InvoiceLineItem{
				ItemType:    models.LineItemTypeDiscount,
				GLType:      adj.GLType,
				Description: adj.Describe(),
				Amount:      amount.Neg(),
			})
			running = running.Sub(amount)
		}
	}
	for _, fee := range feeAmounts(rc) {
		items = append(items, fee)
		running = running.Add(fee.Amount)
	}
	if diff := total.Sub(running); !diff.IsZero() {
		item := models.InvoiceLineItem{
			ItemType:    models.LineItemTypeFee,
			GLType:      models.GLTypeAdditionalFee,
			Description: legacyNetAdjustmentDescription,
			Amount:      diff,
		}
		if diff.IsNegative() {
			item.ItemType = models.LineItemTypeDiscount
			item.GLType = models.GLTypeGeneral
		}
		items = append(items, item)
	}
	return items
}

// feeAmounts recomputes the money value of each applied fee in order, the
// same way the calculator accumulated them, rounded per line.
func feeAmounts(rc models.ReconciliationResult) []models.InvoiceLineItem {
	var out []models.InvoiceLineItem
	running := rc.OriginalAmount.Sub(rc.DiscountAmount)
	for _, adj := range rc.Applied {
		if !adj.IsFee() {
			continue
		}
		amount := adj.AmountAgainst(running)
		running = utils.ClampZero(running.Add(amount))
		out = append(out, models.InvoiceLineItem{
			ItemType:    models.LineItemTypeFee,
			GLType:      adj.GLType,
			Description: adj.Describe(),
			Amount:      utils.RoundMoney(amount),
		})
	}
	return out
}

func findInvoice(ctx context.Context, tx store.LedgerTx, number, ipk string) (*models.Invoice, error) {
	inv, err := tx.FindInvoiceByNumber(ctx, number)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}
	inv, err = tx.FindInvoiceByLegacyIPK(ctx, ipk)
	if err == nil {
		return inv, nil
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// saveInvoice inserts or updates. An insert that loses a race on a unique key
// re-reads the row and updates it instead.
func saveInvoice(ctx context.Context, tx store.LedgerTx, inv *models.Invoice, isNew bool) error {
	if !isNew {
		return tx.UpdateInvoice(ctx, inv)
	}
	err := tx.CreateInvoice(ctx, inv)
	if !errors.Is(err, store.ErrDuplicateKey) {
		return err
	}
	existing, ferr := findInvoice(ctx, tx, inv.InvoiceNumber, inv.LegacyIPK)
	if ferr != nil {
		return ferr
	}
	if existing == nil {
		return err
	}
	inv.ID = existing.ID
	return tx.UpdateInvoice(ctx, inv)
}

func (m *LedgerMaterializer) upsertPayment(ctx context.Context, tx store.LedgerTx, record models.LegacyReceipt, inv *models.Invoice, studentId int, method models.PaymentMethod, status models.PaymentStatus, placeholder bool) (*models.Payment, error) {
	pay, err := tx.FindPaymentByLegacyIPK(ctx, record.IPK)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}
	isNew := pay == nil
	if isNew {
		pay = &models.Payment{}
	}
	pay.LegacyIPK = record.IPK
	pay.InvoiceId = inv.ID
	pay.ReceiptNo = record.ReceiptNo
	pay.StudentId = studentId
	pay.Amount = inv.PaidAmount
	pay.PaymentMethod = method
	pay.LegacyPaymentType = record.PmtType
	pay.Status = status
	pay.IsPlaceholder = placeholder
	pay.PaidAt = record.ParsedReceiptDate()

	if !isNew {
		return pay, tx.UpdatePayment(ctx, pay)
	}
	err = tx.CreatePayment(ctx, pay)
	if errors.Is(err, store.ErrDuplicateKey) {
		existing, ferr := tx.FindPaymentByLegacyIPK(ctx, record.IPK)
		if ferr != nil {
			return nil, ferr
		}
		pay.ID = existing.ID
		err = tx.UpdatePayment(ctx, pay)
	}
	if err != nil {
		return nil, err
	}
	return pay, nil
}
