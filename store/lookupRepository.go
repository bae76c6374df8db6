package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

// GormLookupRepository reads the students and terms tables.
type GormLookupRepository struct {
	db *gorm.DB
}

func NewGormLookupRepository(db *gorm.DB) *GormLookupRepository {
	return &GormLookupRepository{db: db}
}

func (r *GormLookupRepository) FindStudentByLegacyID(ctx context.Context, legacyId string) (*models.Student, error) {
	return takeOne[models.Student](ctx, r.db, "legacy_id = ?", strings.TrimSpace(legacyId))
}

func (r *GormLookupRepository) FindTermByCode(ctx context.Context, code string) (*models.Term, error) {
	return takeOne[models.Term](ctx, r.db, "code = ?", strings.TrimSpace(code))
}

// MemoryLookupRepository serves lookups from reference data loaded up front,
// either programmatically or from CSV exports of the enrollment tables.
type MemoryLookupRepository struct {
	mu       sync.RWMutex
	students map[string]models.Student
	terms    map[string]models.Term
}

func NewMemoryLookupRepository() *MemoryLookupRepository {
	return &MemoryLookupRepository{
		students: map[string]models.Student{},
		terms:    map[string]models.Term{},
	}
}

func (r *MemoryLookupRepository) AddStudent(s models.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[strings.TrimSpace(s.LegacyId)] = s
}

func (r *MemoryLookupRepository) AddTerm(t models.Term) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terms[strings.TrimSpace(t.Code)] = t
}

func (r *MemoryLookupRepository) FindStudentByLegacyID(_ context.Context, legacyId string) (*models.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.students[strings.TrimSpace(legacyId)]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &s, nil
}

func (r *MemoryLookupRepository) FindTermByCode(_ context.Context, code string) (*models.Term, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.terms[strings.TrimSpace(code)]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &t, nil
}

// LoadStudentsCSV loads rows with columns id,legacy_id[,name]. A header row is
// detected and skipped. Returns the number of students loaded.
func (r *MemoryLookupRepository) LoadStudentsCSV(path string) (int, error) {
	n := 0
	err := readReferenceCSV(path, func(id int, key, name string) {
		r.AddStudent(models.Student{ID: id, LegacyId: key, Name: name})
		n++
	})
	return n, err
}

// LoadTermsCSV loads rows with columns id,code[,name].
func (r *MemoryLookupRepository) LoadTermsCSV(path string) (int, error) {
	n := 0
	err := readReferenceCSV(path, func(id int, key, name string) {
		r.AddTerm(models.Term{ID: id, Code: key, Name: name})
		n++
	})
	return n, err
}

func readReferenceCSV(path string, add func(id int, key, name string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		line++
		if len(rec) < 2 {
			return fmt.Errorf("%s line %d: expected at least 2 columns", path, line)
		}
		id, convErr := strconv.Atoi(strings.TrimSpace(rec[0]))
		if convErr != nil {
			if line == 1 {
				continue
			}
			return fmt.Errorf("%s line %d: invalid id %q", path, line, rec[0])
		}
		name := ""
		if len(rec) > 2 {
			name = strings.TrimSpace(rec[2])
		}
		add(id, strings.TrimSpace(rec[1]), name)
	}
}

type cachedLookup[T any] struct {
	value *T
	err   error
}

// CachedLookupRepository memoizes another LookupRepository in bounded LRU
// caches. Not-found answers are cached too, since a missing student tends to
// appear on many receipts. Other errors are never cached.
type CachedLookupRepository struct {
	inner    LookupRepository
	students *lru.Cache[string, cachedLookup[models.Student]]
	terms    *lru.Cache[string, cachedLookup[models.Term]]
}

func NewCachedLookupRepository(inner LookupRepository, size int) (*CachedLookupRepository, error) {
	if size <= 0 {
		size = 1024
	}
	students, err := lru.New[string, cachedLookup[models.Student]](size)
	if err != nil {
		return nil, err
	}
	terms, err := lru.New[string, cachedLookup[models.Term]](size)
	if err != nil {
		return nil, err
	}
	return &CachedLookupRepository{inner: inner, students: students, terms: terms}, nil
}

func (r *CachedLookupRepository) FindStudentByLegacyID(ctx context.Context, legacyId string) (*models.Student, error) {
	key := strings.TrimSpace(legacyId)
	if hit, ok := r.students.Get(key); ok {
		return hit.value, hit.err
	}
	s, err := r.inner.FindStudentByLegacyID(ctx, key)
	if err == nil || errors.Is(err, utils.ErrorRecordNotFound) {
		r.students.Add(key, cachedLookup[models.Student]{value: s, err: err})
	}
	return s, err
}

func (r *CachedLookupRepository) FindTermByCode(ctx context.Context, code string) (*models.Term, error) {
	key := strings.TrimSpace(code)
	if hit, ok := r.terms.Get(key); ok {
		return hit.value, hit.err
	}
	t, err := r.inner.FindTermByCode(ctx, key)
	if err == nil || errors.Is(err, utils.ErrorRecordNotFound) {
		r.terms.Add(key, cachedLookup[models.Term]{value: t, err: err})
	}
	return t, err
}

// Len returns the number of cached student and term entries.
func (r *CachedLookupRepository) Len() (students, terms int) {
	return r.students.Len(), r.terms.Len()
}
