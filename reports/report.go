// Package reports turns a finished rebuild run into its operator artifacts:
// the JSON summary, the mapping and missing-entity CSVs and an XLSX workbook.
package reports

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/batch"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"github.com/shopspring/decimal"
)

const samplesPerCategory = 5

type Report struct {
	RunId       string    `json:"run_id"`
	Status      string    `json:"status"`
	SourcePath  string    `json:"source_path"`
	TermFilter  string    `json:"term_filter"`
	PauseReason string    `json:"pause_reason,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Timing      Timing              `json:"timing"`
	Extract     *ExtractSummary     `json:"extract,omitempty"`
	Counts      Counts              `json:"counts"`
	SuccessRate float64             `json:"success_rate"`
	Categories  []CategoryBreakdown `json:"categories"`
	Statuses    map[string]int      `json:"statuses"`
	Variance    VarianceSummary     `json:"variance"`
	Ledger      *store.LedgerCounts `json:"ledger,omitempty"`

	Samples   map[models.FailureCategory][]batch.Sample `json:"samples"`
	Artifacts []string                                  `json:"artifacts,omitempty"`
}

type Timing struct {
	StartedAt        time.Time  `json:"started_at"`
	LastCheckpointAt *time.Time `json:"last_checkpoint_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	// DurationSeconds covers the latest invocation only when resumed.
	DurationSeconds float64 `json:"duration_seconds"`
	ResumeCount     int     `json:"resume_count"`
}

type ExtractSummary struct {
	TotalRows    int `json:"total_rows"`
	DeletedRows  int `json:"deleted_rows"`
	FilteredRows int `json:"filtered_rows"`
	Records      int `json:"records"`
}

type Counts struct {
	Total            int `json:"total"`
	Processed        int `json:"processed"`
	Successful       int `json:"successful"`
	Failed           int `json:"failed"`
	Skipped          int `json:"skipped"`
	BatchesCompleted int `json:"batches_completed"`
	Cursor           int `json:"cursor"`
	Scholarships     int `json:"scholarships"`
	Placeholders     int `json:"placeholders"`
}

type CategoryBreakdown struct {
	Category models.FailureCategory `json:"category"`
	Count    int                    `json:"count"`
	Percent  float64                `json:"percent"`
}

type VarianceSummary struct {
	TotalOriginal   decimal.Decimal `json:"total_original"`
	TotalLegacyNet  decimal.Decimal `json:"total_legacy_net"`
	TotalReconciled decimal.Decimal `json:"total_reconciled"`
	// TotalAbsVariance sums |reconciled - legacy net| over VARIANCE_DETECTED rows.
	TotalAbsVariance decimal.Decimal `json:"total_abs_variance"`
	VarianceCount    int             `json:"variance_count"`
	MaxVariance      decimal.Decimal `json:"max_variance"`
	MaxVarianceIPK   string          `json:"max_variance_ipk,omitempty"`
}

// Input is everything a report is built from. Result is nil when the report
// is regenerated from the database after the fact.
type Input struct {
	Run      *models.BatchRun
	Mappings []models.LegacyReceiptMapping
	Result   *batch.RunResult
	Ledger   *store.LedgerCounts
	Now      time.Time
}

func Build(in Input) *Report {
	run := in.Run
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	r := &Report{
		RunId:       run.RunId,
		Status:      string(run.Status),
		SourcePath:  run.SourcePath,
		TermFilter:  run.TermFilter,
		PauseReason: run.PauseReason,
		LastError:   run.LastError,
		GeneratedAt: now,
		Timing: Timing{
			StartedAt:        run.StartedAt,
			LastCheckpointAt: run.LastCheckpointAt,
			FinishedAt:       run.FinishedAt,
			ResumeCount:      run.ResumeCount,
		},
		Counts: Counts{
			Total:            run.TotalRecords,
			Processed:        run.ProcessedCount,
			Successful:       run.SuccessfulCount,
			Failed:           run.FailedCount,
			Skipped:          run.SkippedCount,
			BatchesCompleted: run.BatchesCompleted,
			Cursor:           run.CursorPosition,
		},
		SuccessRate: run.SuccessRate(),
		Statuses:    map[string]int{},
		Ledger:      in.Ledger,
	}
	if res := in.Result; res != nil {
		r.Timing.DurationSeconds = res.Duration.Seconds()
		r.Extract = &ExtractSummary{
			TotalRows:    res.TotalRows,
			DeletedRows:  res.DeletedRows,
			FilteredRows: res.FilteredRows,
			Records:      run.TotalRecords,
		}
		r.Samples = res.Samples
	} else if run.FinishedAt != nil {
		r.Timing.DurationSeconds = run.FinishedAt.Sub(run.StartedAt).Seconds()
	}
	if r.Samples == nil {
		r.Samples = samplesFromMappings(in.Mappings)
	}

	r.Categories = categoryBreakdown(run.ErrorCounts(), run.ProcessedCount)
	r.Variance.TotalOriginal = decimal.Zero
	r.Variance.TotalLegacyNet = decimal.Zero
	r.Variance.TotalReconciled = decimal.Zero
	r.Variance.TotalAbsVariance = decimal.Zero
	r.Variance.MaxVariance = decimal.Zero
	for _, m := range in.Mappings {
		r.Statuses[m.ValidationStatus]++
		if m.IsScholarship {
			r.Counts.Scholarships++
		}
		if m.IsFailure() {
			r.Counts.Placeholders++
			continue
		}
		if m.ValidationStatus == string(models.FailureNullTermDropped) {
			continue
		}
		r.Variance.TotalOriginal = r.Variance.TotalOriginal.Add(m.OriginalAmount)
		r.Variance.TotalLegacyNet = r.Variance.TotalLegacyNet.Add(m.LegacyNetAmount)
		r.Variance.TotalReconciled = r.Variance.TotalReconciled.Add(m.ReconciledAmount)
		if m.ValidationStatus == string(models.ValidationStatusVarianceDetected) {
			r.Variance.VarianceCount++
			r.Variance.TotalAbsVariance = r.Variance.TotalAbsVariance.Add(m.VarianceAmount.Abs())
			if m.VarianceAmount.Abs().GreaterThan(r.Variance.MaxVariance) {
				r.Variance.MaxVariance = m.VarianceAmount.Abs()
				r.Variance.MaxVarianceIPK = m.LegacyIPK
			}
		}
	}
	return r
}

func categoryBreakdown(counts map[string]int, processed int) []CategoryBreakdown {
	var out []CategoryBreakdown
	for _, c := range models.AllFailureCategories {
		n := counts[string(c)]
		if n == 0 {
			continue
		}
		b := CategoryBreakdown{Category: c, Count: n}
		if processed > 0 {
			b.Percent = float64(n) / float64(processed) * 100
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func samplesFromMappings(mappings []models.LegacyReceiptMapping) map[models.FailureCategory][]batch.Sample {
	out := map[models.FailureCategory][]batch.Sample{}
	for _, m := range mappings {
		if !m.IsFailure() && m.ValidationStatus != string(models.FailureNullTermDropped) {
			continue
		}
		cat := models.FailureCategory(m.ValidationStatus)
		if len(out[cat]) >= samplesPerCategory {
			continue
		}
		out[cat] = append(out[cat], batch.Sample{
			IPK:       m.LegacyIPK,
			ReceiptNo: m.ReceiptNo,
			Message:   m.FailureReason,
		})
	}
	return out
}
