// Package extract reads the legacy receipts extract into ordered
// models.LegacyReceipt values, dropping soft-deleted rows and applying the
// optional term filter before anything downstream sees them.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"github.com/xuri/excelize/v2"
)

type Options struct {
	// Delimiter of text extracts. Zero means comma.
	Delimiter rune
	// TermFilter keeps only rows whose TermID equals it. Empty keeps all rows.
	TermFilter string
}

// Result is the filtered extract plus row statistics.
type Result struct {
	Records     []models.LegacyReceipt
	TotalRows   int
	DeletedRows int
	// FilteredRows counts rows dropped by the term filter.
	FilteredRows int
}

var ErrMissingColumns = errors.New("extract is missing required columns")

var requiredColumns = []string{"ipk", "receiptno", "id", "termid", "amount"}

// column aliases, compared after lower-casing and stripping spaces/underscores
var columnAliases = map[string]string{
	"ipk":         "ipk",
	"receiptno":   "receiptno",
	"receipt":     "receiptno",
	"id":          "id",
	"studentid":   "id",
	"termid":      "termid",
	"term":        "termid",
	"amount":      "amount",
	"netamount":   "netamount",
	"netdiscount": "netdiscount",
	"notes":       "notes",
	"note":        "notes",
	"pmttype":     "pmttype",
	"paymenttype": "pmttype",
	"deleted":     "deleted",
	"date":        "date",
	"receiptdate": "date",
}

// Load reads path as .xlsx when the extension says so, otherwise as delimited text.
func Load(path string, opts Options) (*Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open extract %s: %w", path, err)
		}
		defer f.Close()
		return readWorkbook(f, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open extract %s: %w", path, err)
	}
	defer f.Close()
	return ReadDelimited(f, opts)
}

// ReadDelimited parses a delimited text extract with a header row.
func ReadDelimited(r io.Reader, opts Options) (*Result, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read extract: %w", err)
		}
		rows = append(rows, rec)
	}
	return build(rows, opts)
}

// ReadWorkbook parses the first sheet of an .xlsx extract.
func ReadWorkbook(r io.Reader, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, opts)
}

func readWorkbook(f *excelize.File, opts Options) (*Result, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return build(rows, opts)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	return columnAliases[h]
}

func build(rows [][]string, opts Options) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty extract", ErrMissingColumns)
	}
	index := map[string]int{}
	for i, h := range rows[0] {
		if key := normalizeHeader(h); key != "" {
			if _, seen := index[key]; !seen {
				index[key] = i
			}
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(row []string, key string) string {
		i, ok := index[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	termFilter := strings.TrimSpace(opts.TermFilter)
	res := &Result{}
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		res.TotalRows++
		rec := models.LegacyReceipt{
			SourceRow:   i + 2,
			IPK:         cell(row, "ipk"),
			ReceiptNo:   cell(row, "receiptno"),
			StudentID:   cell(row, "id"),
			TermID:      cell(row, "termid"),
			Amount:      cell(row, "amount"),
			NetAmount:   cell(row, "netamount"),
			NetDiscount: cell(row, "netdiscount"),
			Notes:       cell(row, "notes"),
			PmtType:     cell(row, "pmttype"),
			Deleted:     cell(row, "deleted"),
			ReceiptDate: cell(row, "date"),
		}
		if rec.IsDeleted() {
			res.DeletedRows++
			continue
		}
		if termFilter != "" && rec.TermID != termFilter {
			res.FilteredRows++
			continue
		}
		rec.Position = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
