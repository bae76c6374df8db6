package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"github.com/xuri/excelize/v2"
)

// Artifacts are the local paths written for one run.
type Artifacts struct {
	ReportJSON      string
	MappingsCSV     string
	MissingEntities string
	Workbook        string
}

func (a Artifacts) Paths() []string {
	var out []string
	for _, p := range []string{a.ReportJSON, a.MappingsCSV, a.MissingEntities, a.Workbook} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var mappingHeader = []string{
	"legacy_ipk", "receipt_no", "legacy_student_id", "legacy_term_id",
	"invoice_number", "invoice_id", "payment_id",
	"original_amount", "legacy_net_amount", "legacy_discount_amount", "reconciled_amount", "variance_amount",
	"validation_status", "is_scholarship", "failure_reason", "notes", "processed_at",
}

func mappingRow(m models.LegacyReceiptMapping) []string {
	return []string{
		m.LegacyIPK, m.ReceiptNo, m.LegacyStudentId, m.LegacyTermId,
		m.InvoiceNumber, optionalInt(m.InvoiceId), optionalInt(m.PaymentId),
		m.OriginalAmount.StringFixed(2), m.LegacyNetAmount.StringFixed(2), m.LegacyDiscountAmount.StringFixed(2),
		m.ReconciledAmount.StringFixed(2), m.VarianceAmount.StringFixed(2),
		m.ValidationStatus, strconv.FormatBool(m.IsScholarship), m.FailureReason, m.Notes,
		m.ProcessedAt.UTC().Format(time.RFC3339),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// WriteAll writes every artifact for report into dir.
func WriteAll(dir string, report *Report, mappings []models.LegacyReceiptMapping) (Artifacts, error) {
	var a Artifacts
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return a, fmt.Errorf("create report dir: %w", err)
	}
	var err error
	if a.MappingsCSV, err = WriteMappingsCSV(filepath.Join(dir, fmt.Sprintf("mappings-%s.csv", report.RunId)), mappings); err != nil {
		return a, err
	}
	if a.MissingEntities, err = WriteMissingEntitiesCSV(filepath.Join(dir, fmt.Sprintf("missing-entities-%s.csv", report.RunId)), mappings); err != nil {
		return a, err
	}
	if a.Workbook, err = WriteWorkbook(filepath.Join(dir, fmt.Sprintf("mappings-%s.xlsx", report.RunId)), report, mappings); err != nil {
		return a, err
	}
	// the JSON report lists its siblings, so it goes last
	jsonPath := filepath.Join(dir, fmt.Sprintf("report-%s.json", report.RunId))
	report.Artifacts = append(report.Artifacts[:0], a.MappingsCSV, a.MissingEntities, a.Workbook, jsonPath)
	if a.ReportJSON, err = WriteJSON(jsonPath, report); err != nil {
		return a, err
	}
	return a, nil
}

func WriteJSON(path string, report *Report) (string, error) {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func WriteMappingsCSV(path string, mappings []models.LegacyReceiptMapping) (string, error) {
	rows := make([][]string, 0, len(mappings)+1)
	rows = append(rows, mappingHeader)
	for _, m := range mappings {
		rows = append(rows, mappingRow(m))
	}
	return path, writeCSV(path, rows)
}

// WriteMissingEntitiesCSV lists receipts that failed because a student or
// term is not loaded yet, for reference-data remediation.
func WriteMissingEntitiesCSV(path string, mappings []models.LegacyReceiptMapping) (string, error) {
	rows := [][]string{{"category", "missing_key", "legacy_ipk", "receipt_no", "legacy_student_id", "legacy_term_id", "failure_reason"}}
	for _, m := range mappings {
		cat := models.FailureCategory(m.ValidationStatus)
		if !cat.IsMissingEntity() {
			continue
		}
		key := m.LegacyStudentId
		if cat == models.FailureMissingTerm {
			key = m.LegacyTermId
		}
		rows = append(rows, []string{string(cat), key, m.LegacyIPK, m.ReceiptNo, m.LegacyStudentId, m.LegacyTermId, m.FailureReason})
	}
	return path, writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

const (
	summarySheet  = "Summary"
	mappingsSheet = "Mappings"
)

// WriteWorkbook writes a Summary sheet (run figures and category breakdown)
// and a Mappings sheet with one row per audit mapping.
func WriteWorkbook(path string, report *Report, mappings []models.LegacyReceiptMapping) (string, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", err
	}

	summary := [][]any{
		{"Run", report.RunId},
		{"Status", report.Status},
		{"Source", report.SourcePath},
		{"Term filter", report.TermFilter},
		{"Pause reason", report.PauseReason},
		{"Total records", report.Counts.Total},
		{"Processed", report.Counts.Processed},
		{"Successful", report.Counts.Successful},
		{"Failed", report.Counts.Failed},
		{"Skipped", report.Counts.Skipped},
		{"Success rate", report.SuccessRate},
		{"Scholarships", report.Counts.Scholarships},
		{"Variance rows", report.Variance.VarianceCount},
		{"Total variance", report.Variance.TotalAbsVariance.InexactFloat64()},
		{"Total reconciled", report.Variance.TotalReconciled.InexactFloat64()},
		{},
		{"Category", "Count", "Percent"},
	}
	for _, c := range report.Categories {
		summary = append(summary, []any{string(c.Category), c.Count, c.Percent})
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return "", err
		}
	}

	if _, err := f.NewSheet(mappingsSheet); err != nil {
		return "", err
	}
	header := make([]any, len(mappingHeader))
	for i, h := range mappingHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(mappingsSheet, "A1", &header); err != nil {
		return "", err
	}
	for i, m := range mappings {
		row := make([]any, 0, len(mappingHeader))
		for _, v := range mappingRow(m) {
			row = append(row, v)
		}
		// amounts as numbers so the sheet can be summed
		for col := 7; col <= 11; col++ {
			if d, err := strconv.ParseFloat(row[col].(string), 64); err == nil {
				row[col] = d
			}
		}
		if err := f.SetSheetRow(mappingsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return "", err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}
