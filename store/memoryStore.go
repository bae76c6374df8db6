package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
)

// MemoryStore is an in-process Store used for dry runs and tests. Unique
// indexes on the natural keys are emulated so duplicate inserts fail the
// same way they do against MySQL. Transactions are serialized and write in
// place; every overwritten entry is logged so a failed unit of work can put
// it back. IDs are not reused after a rollback, as with auto increment.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	seq             int
	invoices        map[int]models.Invoice
	invoiceByNumber map[string]int
	invoiceByIPK    map[string]int
	lineItems       map[int][]models.InvoiceLineItem
	payments        map[int]models.Payment
	paymentByIPK    map[string]int
	mappings        map[int]models.LegacyReceiptMapping
	mappingByIPK    map[string]int
	runs            map[string]models.BatchRun
}

func newMemState() *memState {
	return &memState{
		invoices:        map[int]models.Invoice{},
		invoiceByNumber: map[string]int{},
		invoiceByIPK:    map[string]int{},
		lineItems:       map[int][]models.InvoiceLineItem{},
		payments:        map[int]models.Payment{},
		paymentByIPK:    map[string]int{},
		mappings:        map[int]models.LegacyReceiptMapping{},
		mappingByIPK:    map[string]int{},
		runs:            map[string]models.BatchRun{},
	}
}

// undoLog restores, newest first, the map entries a transaction overwrote.
type undoLog []func()

func (u undoLog) rollback() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

// setKey writes m[k] = v, logging the previous entry when log is non-nil.
func setKey[K comparable, V any](log *undoLog, m map[K]V, k K, v V) {
	remember(log, m, k)
	m[k] = v
}

func deleteKey[K comparable, V any](log *undoLog, m map[K]V, k K) {
	remember(log, m, k)
	delete(m, k)
}

func remember[K comparable, V any](log *undoLog, m map[K]V, k K) {
	if log == nil {
		return
	}
	old, had := m[k]
	*log = append(*log, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (s *memState) nextID() int {
	s.seq++
	return s.seq
}

// memTx operates on a state the caller already holds the lock for. Writes
// are logged to undo when it is set.
type memTx struct {
	state *memState
	undo  *undoLog
}

func (t memTx) FindInvoiceByNumber(_ context.Context, number string) (*models.Invoice, error) {
	id, ok := t.state.invoiceByNumber[number]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	inv := t.state.invoices[id]
	return &inv, nil
}

func (t memTx) FindInvoiceByLegacyIPK(_ context.Context, ipk string) (*models.Invoice, error) {
	id, ok := t.state.invoiceByIPK[ipk]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	inv := t.state.invoices[id]
	return &inv, nil
}

func (t memTx) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	if _, ok := t.state.invoiceByNumber[inv.InvoiceNumber]; ok {
		return ErrDuplicateKey
	}
	if _, ok := t.state.invoiceByIPK[inv.LegacyIPK]; ok {
		return ErrDuplicateKey
	}
	now := time.Now()
	inv.ID = t.state.nextID()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	stored := *inv
	stored.LineItems = nil
	setKey(t.undo, t.state.invoices, inv.ID, stored)
	setKey(t.undo, t.state.invoiceByNumber, inv.InvoiceNumber, inv.ID)
	setKey(t.undo, t.state.invoiceByIPK, inv.LegacyIPK, inv.ID)
	return nil
}

func (t memTx) UpdateInvoice(_ context.Context, inv *models.Invoice) error {
	old, ok := t.state.invoices[inv.ID]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	if id, taken := t.state.invoiceByNumber[inv.InvoiceNumber]; taken && id != inv.ID {
		return ErrDuplicateKey
	}
	if id, taken := t.state.invoiceByIPK[inv.LegacyIPK]; taken && id != inv.ID {
		return ErrDuplicateKey
	}
	deleteKey(t.undo, t.state.invoiceByNumber, old.InvoiceNumber)
	deleteKey(t.undo, t.state.invoiceByIPK, old.LegacyIPK)
	inv.CreatedAt = old.CreatedAt
	inv.UpdatedAt = time.Now()
	stored := *inv
	stored.LineItems = nil
	setKey(t.undo, t.state.invoices, inv.ID, stored)
	setKey(t.undo, t.state.invoiceByNumber, inv.InvoiceNumber, inv.ID)
	setKey(t.undo, t.state.invoiceByIPK, inv.LegacyIPK, inv.ID)
	return nil
}

func (t memTx) ReplaceLineItems(_ context.Context, invoiceId int, items []models.InvoiceLineItem) error {
	if _, ok := t.state.invoices[invoiceId]; !ok {
		return utils.ErrorRecordNotFound
	}
	stored := make([]models.InvoiceLineItem, 0, len(items))
	for i := range items {
		items[i].ID = t.state.nextID()
		items[i].InvoiceId = invoiceId
		items[i].CreatedAt = time.Now()
		stored = append(stored, items[i])
	}
	setKey(t.undo, t.state.lineItems, invoiceId, stored)
	return nil
}

func (t memTx) FindPaymentByLegacyIPK(_ context.Context, ipk string) (*models.Payment, error) {
	id, ok := t.state.paymentByIPK[ipk]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	p := t.state.payments[id]
	return &p, nil
}

func (t memTx) CreatePayment(_ context.Context, p *models.Payment) error {
	if _, ok := t.state.paymentByIPK[p.LegacyIPK]; ok {
		return ErrDuplicateKey
	}
	now := time.Now()
	p.ID = t.state.nextID()
	p.CreatedAt = now
	p.UpdatedAt = now
	setKey(t.undo, t.state.payments, p.ID, *p)
	setKey(t.undo, t.state.paymentByIPK, p.LegacyIPK, p.ID)
	return nil
}

func (t memTx) UpdatePayment(_ context.Context, p *models.Payment) error {
	old, ok := t.state.payments[p.ID]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	if id, taken := t.state.paymentByIPK[p.LegacyIPK]; taken && id != p.ID {
		return ErrDuplicateKey
	}
	deleteKey(t.undo, t.state.paymentByIPK, old.LegacyIPK)
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now()
	setKey(t.undo, t.state.payments, p.ID, *p)
	setKey(t.undo, t.state.paymentByIPK, p.LegacyIPK, p.ID)
	return nil
}

func (t memTx) FindMappingByLegacyIPK(_ context.Context, ipk string) (*models.LegacyReceiptMapping, error) {
	id, ok := t.state.mappingByIPK[ipk]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	m := t.state.mappings[id]
	return &m, nil
}

func (t memTx) CreateMapping(_ context.Context, m *models.LegacyReceiptMapping) error {
	if _, ok := t.state.mappingByIPK[m.LegacyIPK]; ok {
		return ErrDuplicateKey
	}
	now := time.Now()
	m.ID = t.state.nextID()
	m.CreatedAt = now
	m.UpdatedAt = now
	setKey(t.undo, t.state.mappings, m.ID, *m)
	setKey(t.undo, t.state.mappingByIPK, m.LegacyIPK, m.ID)
	return nil
}

func (t memTx) UpdateMapping(_ context.Context, m *models.LegacyReceiptMapping) error {
	old, ok := t.state.mappings[m.ID]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	if id, taken := t.state.mappingByIPK[m.LegacyIPK]; taken && id != m.ID {
		return ErrDuplicateKey
	}
	deleteKey(t.undo, t.state.mappingByIPK, old.LegacyIPK)
	m.CreatedAt = old.CreatedAt
	m.UpdatedAt = time.Now()
	setKey(t.undo, t.state.mappings, m.ID, *m)
	setKey(t.undo, t.state.mappingByIPK, m.LegacyIPK, m.ID)
	return nil
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var undo undoLog
	defer func() {
		if r := recover(); r != nil {
			undo.rollback()
			panic(r)
		}
	}()
	if err := fn(memTx{state: s.state, undo: &undo}); err != nil {
		undo.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) locked() (memTx, func()) {
	s.mu.Lock()
	return memTx{state: s.state}, s.mu.Unlock
}

func (s *MemoryStore) FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	tx, unlock := s.locked()
	defer unlock()
	return tx.FindInvoiceByNumber(ctx, number)
}

func (s *MemoryStore) FindInvoiceByLegacyIPK(ctx context.Context, ipk string) (*models.Invoice, error) {
	tx, unlock := s.locked()
	defer unlock()
	return tx.FindInvoiceByLegacyIPK(ctx, ipk)
}

func (s *MemoryStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.CreateInvoice(ctx, inv)
}

func (s *MemoryStore) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.UpdateInvoice(ctx, inv)
}

func (s *MemoryStore) ReplaceLineItems(ctx context.Context, invoiceId int, items []models.InvoiceLineItem) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.ReplaceLineItems(ctx, invoiceId, items)
}

func (s *MemoryStore) FindPaymentByLegacyIPK(ctx context.Context, ipk string) (*models.Payment, error) {
	tx, unlock := s.locked()
	defer unlock()
	return tx.FindPaymentByLegacyIPK(ctx, ipk)
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.CreatePayment(ctx, p)
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.UpdatePayment(ctx, p)
}

func (s *MemoryStore) FindMappingByLegacyIPK(ctx context.Context, ipk string) (*models.LegacyReceiptMapping, error) {
	tx, unlock := s.locked()
	defer unlock()
	return tx.FindMappingByLegacyIPK(ctx, ipk)
}

func (s *MemoryStore) CreateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.CreateMapping(ctx, m)
}

func (s *MemoryStore) UpdateMapping(ctx context.Context, m *models.LegacyReceiptMapping) error {
	tx, unlock := s.locked()
	defer unlock()
	return tx.UpdateMapping(ctx, m)
}

func (s *MemoryStore) CreateBatchRun(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.runs[run.RunId]; ok {
		return ErrDuplicateKey
	}
	now := time.Now()
	run.ID = s.state.nextID()
	run.CreatedAt = now
	run.UpdatedAt = now
	s.state.runs[run.RunId] = *run
	return nil
}

func (s *MemoryStore) SaveBatchRun(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.state.runs[run.RunId]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	run.ID = old.ID
	run.CreatedAt = old.CreatedAt
	run.UpdatedAt = time.Now()
	s.state.runs[run.RunId] = *run
	return nil
}

func (s *MemoryStore) FindBatchRun(_ context.Context, runId string) (*models.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.state.runs[runId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &run, nil
}

func (s *MemoryStore) FindResumableBatchRun(_ context.Context, sourcePath, termFilter string) (*models.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.BatchRun
	for _, run := range s.state.runs {
		if run.SourcePath != sourcePath || run.TermFilter != termFilter || !run.Status.IsResumable() {
			continue
		}
		if best == nil || run.ID > best.ID {
			r := run
			best = &r
		}
	}
	if best == nil {
		return nil, utils.ErrorRecordNotFound
	}
	return best, nil
}

func (s *MemoryStore) ListMappingsByRun(_ context.Context, runId string) ([]models.LegacyReceiptMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.LegacyReceiptMapping
	for _, m := range s.state.mappings {
		if m.BatchRunId == runId {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *MemoryStore) CountLedger(_ context.Context) (LedgerCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := LedgerCounts{
		Invoices: int64(len(s.state.invoices)),
		Payments: int64(len(s.state.payments)),
		Mappings: int64(len(s.state.mappings)),
	}
	for _, inv := range s.state.invoices {
		if inv.IsPlaceholder {
			c.PlaceholderInvoices++
		}
	}
	for _, items := range s.state.lineItems {
		c.LineItems += int64(len(items))
	}
	return c, nil
}

// LineItems returns the stored line items of an invoice, ordered by line number.
func (s *MemoryStore) LineItems(invoiceId int) []models.InvoiceLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]models.InvoiceLineItem(nil), s.state.lineItems[invoiceId]...)
	sort.Slice(items, func(i, j int) bool { return items[i].LineNo < items[j].LineNo })
	return items
}
