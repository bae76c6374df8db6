// Package store persists reconstructed ledger rows, audit mappings and batch
// run checkpoints, and resolves legacy student/term identifiers.
//
// Writes are always preceded by a lookup on the natural key (invoice number
// or legacy IPK). Unique indexes exist as a backstop only: a duplicate-key
// failure surfaces as ErrDuplicateKey so callers can re-read and update.
// Nothing here makes two writers on the same key safe; runs over the same
// key range must not execute concurrently.
package store

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
)

var ErrDuplicateKey = errors.New("duplicate key")

// LedgerTx is the write surface available inside one unit of work.
// Find* methods return utils.ErrorRecordNotFound when nothing matches.
type LedgerTx interface {
	FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error)
	FindInvoiceByLegacyIPK(ctx context.Context, ipk string) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	UpdateInvoice(ctx context.Context, inv *models.Invoice) error
	ReplaceLineItems(ctx context.Context, invoiceId int, items []models.InvoiceLineItem) error

	FindPaymentByLegacyIPK(ctx context.Context, ipk string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error

	FindMappingByLegacyIPK(ctx context.Context, ipk string) (*models.LegacyReceiptMapping, error)
	CreateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error
	UpdateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error
}

// Store is the full persistence surface of a rebuild run.
type Store interface {
	LedgerTx

	// Transaction runs fn as one atomic unit of work. Any error rolls back
	// every write fn made.
	Transaction(ctx context.Context, fn func(tx LedgerTx) error) error

	CreateBatchRun(ctx context.Context, run *models.BatchRun) error
	SaveBatchRun(ctx context.Context, run *models.BatchRun) error
	FindBatchRun(ctx context.Context, runId string) (*models.BatchRun, error)
	// FindResumableBatchRun returns the latest PAUSED, PROCESSING or FAILED run
	// over the same source and term filter.
	FindResumableBatchRun(ctx context.Context, sourcePath, termFilter string) (*models.BatchRun, error)

	ListMappingsByRun(ctx context.Context, runId string) ([]models.LegacyReceiptMapping, error)
	CountLedger(ctx context.Context) (LedgerCounts, error)
}

// LedgerCounts is a row-count snapshot of the ledger tables.
type LedgerCounts struct {
	Invoices            int64 `json:"invoices"`
	PlaceholderInvoices int64 `json:"placeholder_invoices"`
	LineItems           int64 `json:"line_items"`
	Payments            int64 `json:"payments"`
	Mappings            int64 `json:"mappings"`
}

// LookupRepository resolves legacy identifiers against enrollment-domain
// tables. Both methods return utils.ErrorRecordNotFound when absent.
type LookupRepository interface {
	FindStudentByLegacyID(ctx context.Context, legacyId string) (*models.Student, error)
	FindTermByCode(ctx context.Context, code string) (*models.Term, error)
}
