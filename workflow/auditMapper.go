package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/appctx"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AuditMapper keeps exactly one LegacyReceiptMapping per legacy IPK.
type AuditMapper struct {
	logger *logrus.Logger
	now    func() time.Time
}

func NewAuditMapper(logger *logrus.Logger) *AuditMapper {
	return &AuditMapper{logger: logger, now: time.Now}
}

// RecordOutcome writes the audit row of one processed receipt. On success
// failure is nil and rc is set; on failure rc may still be set when the
// record got as far as reconciliation. invoice and payment may be nil for
// skipped records.
func (a *AuditMapper) RecordOutcome(ctx context.Context, tx store.LedgerTx, record models.LegacyReceipt, invoice *models.Invoice, payment *models.Payment, rc *models.ReconciliationResult, parserTrace []string, adjustments []models.FinancialAdjustment, failure *models.ProcessingError) (*models.LegacyReceiptMapping, error) {
	mapping, err := tx.FindMappingByLegacyIPK(ctx, record.IPK)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}
	isNew := mapping == nil
	if isNew {
		mapping = &models.LegacyReceiptMapping{}
	}

	mapping.LegacyIPK = record.IPK
	mapping.ReceiptNo = record.ReceiptNo
	mapping.LegacyStudentId = record.StudentID
	mapping.LegacyTermId = record.TermID
	mapping.Notes = record.Notes
	mapping.InvoiceId = nil
	mapping.InvoiceNumber = ""
	mapping.PaymentId = nil
	mapping.IsScholarship = false
	if invoice != nil {
		mapping.InvoiceId = utils.IntPtr(invoice.ID)
		mapping.InvoiceNumber = invoice.InvoiceNumber
		mapping.IsScholarship = invoice.IsScholarship && !invoice.IsPlaceholder
	}
	if payment != nil {
		mapping.PaymentId = utils.IntPtr(payment.ID)
	}

	mapping.OriginalAmount = legacyAmount(record.Amount)
	mapping.LegacyNetAmount = legacyAmount(record.NetAmount)
	mapping.LegacyDiscountAmount = legacyAmount(record.NetDiscount)
	mapping.ReconciledAmount = decimal.Zero
	mapping.VarianceAmount = decimal.Zero
	mapping.CalculationTraceJSON = nil
	if rc != nil {
		mapping.OriginalAmount = utils.RoundMoney(rc.OriginalAmount)
		mapping.ReconciledAmount = utils.RoundMoney(rc.ReconciledAmount)
		mapping.VarianceAmount = utils.RoundMoney(rc.VarianceAmount)
		mapping.CalculationTraceJSON = marshalJSON(rc.Trace)
	}
	mapping.ParserTraceJSON = marshalJSON(parserTrace)
	mapping.AdjustmentsJSON = marshalJSON(adjustments)

	if failure != nil {
		mapping.ValidationStatus = string(failure.Category)
		mapping.FailureReason = failure.Error()
	} else if rc != nil {
		mapping.ValidationStatus = string(rc.Status)
		mapping.FailureReason = ""
	} else {
		mapping.ValidationStatus = string(models.FailureProcessingError)
		mapping.FailureReason = "no reconciliation result recorded"
	}

	if runId, ok := appctx.GetString(ctx, appctx.ContextKeyRunId); ok {
		mapping.BatchRunId = runId
	}
	mapping.ProcessedAt = a.now()

	if !isNew {
		a.logger.WithFields(logrus.Fields{"ipk": record.IPK, "status": mapping.ValidationStatus}).Debug("audit mapping updated")
		return mapping, tx.UpdateMapping(ctx, mapping)
	}
	err = tx.CreateMapping(ctx, mapping)
	if errors.Is(err, store.ErrDuplicateKey) {
		existing, ferr := tx.FindMappingByLegacyIPK(ctx, record.IPK)
		if ferr != nil {
			return nil, ferr
		}
		mapping.ID = existing.ID
		mapping.CreatedAt = existing.CreatedAt
		err = tx.UpdateMapping(ctx, mapping)
	}
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// legacyAmount is the rounded value of a raw legacy column, zero when blank or malformed.
func legacyAmount(raw string) decimal.Decimal {
	d, ok, err := utils.ParseMoney(raw)
	if err != nil || !ok {
		return decimal.Zero
	}
	return utils.RoundMoney(d)
}

func marshalJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
