package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/ledger_rebuild/appctx"
	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/notes"
	"bitbucket.org/mmdatafocus/ledger_rebuild/reconcile"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/sirupsen/logrus"
)

// Outcome is what happened to one legacy receipt.
type Outcome struct {
	IPK      string
	Status   string
	Category models.FailureCategory
	Failure  *models.ProcessingError
	Mapping  *models.LegacyReceiptMapping
}

func (o Outcome) Succeeded() bool { return o.Failure == nil }

func (o Outcome) Skipped() bool { return o.Failure != nil && o.Category.IsSkip() }

func (o Outcome) Failed() bool { return o.Failure != nil && !o.Category.IsSkip() }

// ReceiptPipeline reconstructs one receipt per call: lookups, note parsing and
// reconciliation first, then ledger rows and the audit row in a single unit
// of work. A failing receipt is rolled back and recorded again as a
// placeholder pair plus audit row in a second unit of work.
type ReceiptPipeline struct {
	store        store.Store
	lookups      store.LookupRepository
	parser       *notes.Parser
	calculator   *reconcile.Calculator
	materializer *LedgerMaterializer
	auditor      *AuditMapper
	scholarship  *ScholarshipDetector
	logger       *logrus.Logger
}

func NewReceiptPipeline(st store.Store, lookups store.LookupRepository, logger *logrus.Logger, scholarshipKeywords ...string) *ReceiptPipeline {
	return &ReceiptPipeline{
		store:        st,
		lookups:      lookups,
		parser:       notes.NewParser(),
		calculator:   reconcile.NewCalculator(),
		materializer: NewLedgerMaterializer(logger),
		auditor:      NewAuditMapper(logger),
		scholarship:  NewScholarshipDetector(scholarshipKeywords...),
		logger:       logger,
	}
}

// prepared carries everything computed before the write transaction.
type prepared struct {
	student     *models.Student
	term        *models.Term
	rc          *models.ReconciliationResult
	adjustments []models.FinancialAdjustment
	parserTrace []string
	scholarship bool
}

// Process handles one receipt. The returned error is non-nil only when not
// even the failure could be recorded; the receipt's own problems are
// reported through Outcome.
func (p *ReceiptPipeline) Process(ctx context.Context, record models.LegacyReceipt) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = keyed(record)
			ctx = appctx.Set(ctx, appctx.ContextKeyLegacyIPK, record.IPK)
			out, err = p.recordFailure(ctx, record, prepared{},
				models.NewProcessingError(models.FailureProcessingError, fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	prep, perr := p.prepare(ctx, record)
	record = keyed(record)
	ctx = appctx.Set(ctx, appctx.ContextKeyLegacyIPK, record.IPK)
	if perr == nil {
		var mapping *models.LegacyReceiptMapping
		txErr := p.store.Transaction(ctx, func(tx store.LedgerTx) error {
			inv, pay, err := p.materializer.Materialize(ctx, tx, record, prep.student, prep.term, *prep.rc, prep.scholarship)
			if err != nil {
				return err
			}
			mapping, err = p.auditor.RecordOutcome(ctx, tx, record, inv, pay, prep.rc, prep.parserTrace, prep.adjustments, nil)
			if err != nil {
				return models.NewProcessingError(models.FailureProcessingError, "audit mapping write failed", err)
			}
			return nil
		})
		if txErr == nil {
			return Outcome{IPK: record.IPK, Status: string(prep.rc.Status), Mapping: mapping}, nil
		}
		perr = models.ClassifyError(txErr)
	}
	return p.recordFailure(ctx, record, prep, perr)
}

// keyed gives a record without an IPK a key derived from its extract row,
// so its audit row and placeholder are still written.
func keyed(record models.LegacyReceipt) models.LegacyReceipt {
	if models.IsNullLike(record.IPK) {
		record.IPK = fmt.Sprintf("ROW-%d", record.SourceRow)
	}
	return record
}

func (p *ReceiptPipeline) recordFailure(ctx context.Context, record models.LegacyReceipt, prep prepared, failure *models.ProcessingError) (Outcome, error) {
	out := Outcome{IPK: record.IPK, Status: string(failure.Category), Category: failure.Category, Failure: failure}

	fields := logrus.Fields(appctx.LogFields(ctx))
	fields["category"] = failure.Category
	if failure.Category.IsSkip() {
		p.logger.WithFields(fields).Debug(failure.Error())
	} else {
		p.logger.WithFields(fields).Warn(failure.Error())
	}

	err := p.store.Transaction(ctx, func(tx store.LedgerTx) error {
		var inv *models.Invoice
		var pay *models.Payment
		if !failure.Category.IsSkip() {
			var err error
			inv, pay, err = p.materializer.MaterializePlaceholder(ctx, tx, record, failure)
			if err != nil {
				return err
			}
		}
		mapping, err := p.auditor.RecordOutcome(ctx, tx, record, inv, pay, prep.rc, prep.parserTrace, prep.adjustments, failure)
		if err != nil {
			return err
		}
		out.Mapping = mapping
		return nil
	})
	if err != nil {
		config.LogError(p.logger, "receiptPipeline.go", "recordFailure", "persist failure", record.IPK, err)
		return out, fmt.Errorf("record failure of %s: %w", record.IPK, err)
	}
	return out, nil
}

// prepare runs every step that does not write: validation, amount parsing,
// lookups, note parsing, reconciliation and scholarship detection.
// Whatever was computed before a failure is returned alongside it.
func (p *ReceiptPipeline) prepare(ctx context.Context, record models.LegacyReceipt) (prepared, *models.ProcessingError) {
	var prep prepared

	if !record.HasTerm() {
		return prep, models.NewProcessingError(models.FailureNullTermDropped, "receipt has no term", nil)
	}
	if msg := missingFields(record); msg != "" {
		return prep, models.NewProcessingError(models.FailureMissingData, msg, nil)
	}

	original, ok, err := utils.ParseMoney(record.Amount)
	if err != nil {
		return prep, models.NewProcessingError(models.FailureInvalidFinancialData, "unparseable Amount", err)
	}
	if !ok {
		return prep, models.NewProcessingError(models.FailureMissingData, "Amount is blank", nil)
	}
	if original.IsNegative() {
		return prep, models.NewProcessingError(models.FailureInvalidFinancialData, fmt.Sprintf("negative Amount %s", original.String()), nil)
	}
	legacyNet, hasNet, err := utils.ParseMoney(record.NetAmount)
	if err != nil {
		return prep, models.NewProcessingError(models.FailureInvalidFinancialData, "unparseable NetAmount", err)
	}
	if _, _, err := utils.ParseMoney(record.NetDiscount); err != nil {
		return prep, models.NewProcessingError(models.FailureInvalidFinancialData, "unparseable NetDiscount", err)
	}

	student, err := p.lookups.FindStudentByLegacyID(ctx, record.StudentID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return prep, models.NewProcessingError(models.FailureMissingStudent, fmt.Sprintf("student %q not found", record.StudentID), nil)
	}
	if err != nil {
		return prep, models.NewProcessingError(models.FailureProcessingError, "student lookup failed", err)
	}
	prep.student = student

	term, err := p.lookups.FindTermByCode(ctx, record.TermID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return prep, models.NewProcessingError(models.FailureMissingTerm, fmt.Sprintf("term %q not found", record.TermID), nil)
	}
	if err != nil {
		return prep, models.NewProcessingError(models.FailureProcessingError, "term lookup failed", err)
	}
	prep.term = term

	prep.adjustments, prep.parserTrace = p.parser.Parse(record.Notes, original)

	var rc models.ReconciliationResult
	if hasNet {
		rc = p.calculator.Reconcile(original, legacyNet, prep.adjustments)
	} else {
		rc = p.calculator.ReconcileWithoutLegacyNet(original, prep.adjustments)
	}
	prep.rc = &rc

	if hit, why := p.scholarship.Detect(record.Notes); hit {
		prep.scholarship = true
		prep.parserTrace = append(prep.parserTrace, fmt.Sprintf("scholarship detected (%s)", why))
	} else if why != "" {
		prep.parserTrace = append(prep.parserTrace, fmt.Sprintf("scholarship keyword excluded by %q", why))
	}
	return prep, nil
}

func missingFields(record models.LegacyReceipt) string {
	fields, err := utils.ValidateStruct(record)
	if err != nil {
		return err.Error()
	}
	if fields == nil {
		fields = map[string]string{}
	}
	for name, v := range map[string]string{
		"IPK":       record.IPK,
		"ReceiptNo": record.ReceiptNo,
		"StudentID": record.StudentID,
		"Amount":    record.Amount,
	} {
		if _, seen := fields[name]; !seen && models.IsNullLike(v) {
			fields[name] = "required"
		}
	}
	if len(fields) == 0 {
		return ""
	}
	return "missing required fields: " + utils.FormatFieldErrors(fields)
}
