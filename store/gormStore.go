package store

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// GormStore is the MySQL-backed Store.
type GormStore struct {
	gormTx
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormTx{db: db}}
}

type gormTx struct {
	db *gorm.DB
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func translateCreateErr(err error) error {
	if err != nil && isDuplicateKeyErr(err) {
		return ErrDuplicateKey
	}
	return err
}

func takeOne[T any](ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var out T
	err := db.WithContext(ctx).Where(query, args...).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (t *gormTx) FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	return takeOne[models.Invoice](ctx, t.db, "invoice_number = ?", number)
}

func (t *gormTx) FindInvoiceByLegacyIPK(ctx context.Context, ipk string) (*models.Invoice, error) {
	return takeOne[models.Invoice](ctx, t.db, "legacy_ipk = ?", ipk)
}

func (t *gormTx) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return translateCreateErr(t.db.WithContext(ctx).Omit("LineItems").Create(inv).Error)
}

func (t *gormTx) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	return t.db.WithContext(ctx).Omit("LineItems", "CreatedAt").Save(inv).Error
}

func (t *gormTx) ReplaceLineItems(ctx context.Context, invoiceId int, items []models.InvoiceLineItem) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("invoice_id = ?", invoiceId).Delete(&models.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = 0
		items[i].InvoiceId = invoiceId
	}
	return db.Create(&items).Error
}

func (t *gormTx) FindPaymentByLegacyIPK(ctx context.Context, ipk string) (*models.Payment, error) {
	return takeOne[models.Payment](ctx, t.db, "legacy_ipk = ?", ipk)
}

func (t *gormTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	return translateCreateErr(t.db.WithContext(ctx).Create(p).Error)
}

func (t *gormTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return t.db.WithContext(ctx).Omit("CreatedAt").Save(p).Error
}

func (t *gormTx) FindMappingByLegacyIPK(ctx context.Context, ipk string) (*models.LegacyReceiptMapping, error) {
	return takeOne[models.LegacyReceiptMapping](ctx, t.db, "legacy_ipk = ?", ipk)
}

func (t *gormTx) CreateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error {
	return translateCreateErr(t.db.WithContext(ctx).Create(m).Error)
}

func (t *gormTx) UpdateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error {
	return t.db.WithContext(ctx).Omit("CreatedAt").Save(m).Error
}

func (s *GormStore) CreateBatchRun(ctx context.Context, run *models.BatchRun) error {
	return translateCreateErr(s.db.WithContext(ctx).Create(run).Error)
}

func (s *GormStore) SaveBatchRun(ctx context.Context, run *models.BatchRun) error {
	return s.db.WithContext(ctx).Omit("CreatedAt").Save(run).Error
}

func (s *GormStore) FindBatchRun(ctx context.Context, runId string) (*models.BatchRun, error) {
	return takeOne[models.BatchRun](ctx, s.db, "run_id = ?", runId)
}

func (s *GormStore) FindResumableBatchRun(ctx context.Context, sourcePath, termFilter string) (*models.BatchRun, error) {
	var run models.BatchRun
	err := s.db.WithContext(ctx).
		Where("source_path = ? AND term_filter = ?", sourcePath, termFilter).
		Where("status IN ?", []models.BatchRunStatus{
			models.BatchRunStatusPaused,
			models.BatchRunStatusProcessing,
			models.BatchRunStatusFailed,
		}).
		Order("id DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) ListMappingsByRun(ctx context.Context, runId string) ([]models.LegacyReceiptMapping, error) {
	var rows []models.LegacyReceiptMapping
	err := s.db.WithContext(ctx).
		Where("batch_run_id = ?", runId).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CountLedger(ctx context.Context) (LedgerCounts, error) {
	var c LedgerCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Invoice{}).Count(&c.Invoices).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.Invoice{}).Where("is_placeholder = ?", true).Count(&c.PlaceholderInvoices).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.InvoiceLineItem{}).Count(&c.LineItems).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.Payment{}).Count(&c.Payments).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.LegacyReceiptMapping{}).Count(&c.Mappings).Error; err != nil {
		return c, err
	}
	return c, nil
}
