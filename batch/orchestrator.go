// Package batch drives a rebuild run over the legacy extract: batching,
// checkpointing on the batch run row, resume, the quality gate, progress
// reporting and the optional run lock.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/appctx"
	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/extract"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"bitbucket.org/mmdatafocus/ledger_rebuild/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxSamplesPerCategory = 5
	etaAlpha              = 0.3

	PauseReasonInterrupted = "interrupted"
	PauseReasonMaxRecords  = "max records reached"
	PauseReasonLockLost    = "run lock lost"
)

var tracer = otel.Tracer("receipt-rebuild")

// RecordProcessor reconstructs a single legacy receipt.
type RecordProcessor interface {
	Process(ctx context.Context, record models.LegacyReceipt) (workflow.Outcome, error)
}

// Sample is one failed or skipped record kept for the report.
type Sample struct {
	Position  int    `json:"position"`
	IPK       string `json:"ipk"`
	ReceiptNo string `json:"receipt_no"`
	Message   string `json:"message"`
}

// BatchStats summarizes one batch.
type BatchStats struct {
	BatchNo     int
	StartCursor int
	EndCursor   int
	Processed   int
	Successful  int
	Failed      int
	Skipped     int
	ErrorCounts map[models.FailureCategory]int
	Duration    time.Duration
}

// RunResult is what a finished invocation hands to reporting.
type RunResult struct {
	Run          *models.BatchRun
	Batches      []BatchStats
	Samples      map[models.FailureCategory][]Sample
	TotalRows    int
	DeletedRows  int
	FilteredRows int
	Resumed      bool
	Duration     time.Duration
}

type ExtractLoader func(path string, opts extract.Options) (*extract.Result, error)

type Option func(*Orchestrator)

func WithRunLock(lock RunLock) Option {
	return func(o *Orchestrator) { o.lock = lock }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithExtractLoader(fn ExtractLoader) Option {
	return func(o *Orchestrator) { o.load = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type Orchestrator struct {
	cfg       config.RebuildConfig
	store     store.Store
	processor RecordProcessor
	logger    *logrus.Logger
	gate      QualityGate
	lock      RunLock
	tracer    trace.Tracer
	load      ExtractLoader
	now       func() time.Time
	callbacks []ProgressCallback
}

func NewOrchestrator(cfg config.RebuildConfig, st store.Store, processor RecordProcessor, logger *logrus.Logger, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultRebuildConfig().BatchSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 1
	}
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		processor: processor,
		logger:    logger,
		gate: QualityGate{
			Enabled:        cfg.QualityGateEnabled,
			Threshold:      cfg.SuccessRateThreshold,
			MaxConsecutive: cfg.MaxConsecutiveFailures,
		},
		lock:   NoopRunLock{},
		tracer: tracer,
		load:   extract.Load,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) AddProgressCallback(cb ProgressCallback) {
	o.callbacks = append(o.callbacks, cb)
}

// Run executes or resumes a rebuild run until it completes, pauses or fails.
// The returned result carries the run row in its terminal state; err is set
// only for FAILED runs or when the run could not be started at all.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	started := o.now()
	if err := o.lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx)); err != nil {
			config.LogError(o.logger, "orchestrator.go", "Run", "release run lock", o.cfg.TermFilter, err)
		}
	}()

	run, resumed, err := o.openRun(ctx)
	if err != nil {
		return nil, err
	}
	ctx = appctx.Set(ctx, appctx.ContextKeyRunId, run.RunId)
	ctx = appctx.Set(ctx, appctx.ContextKeyCorrelationId, uuid.NewString())
	result := &RunResult{Run: run, Resumed: resumed, Samples: map[models.FailureCategory][]Sample{}}
	defer func() { result.Duration = o.now().Sub(started) }()

	ext, err := o.load(o.cfg.SourcePath, extract.Options{Delimiter: o.cfg.Delimiter, TermFilter: o.cfg.TermFilter})
	if err != nil {
		return result, o.fail(ctx, run, fmt.Errorf("load extract: %w", err))
	}
	result.TotalRows, result.DeletedRows, result.FilteredRows = ext.TotalRows, ext.DeletedRows, ext.FilteredRows
	records := ext.Records
	run.TotalRecords = len(records)

	end := len(records)
	if o.cfg.MaxRecords > 0 && run.CursorPosition+o.cfg.MaxRecords < end {
		end = run.CursorPosition + o.cfg.MaxRecords
	}

	run.Status = models.BatchRunStatusProcessing
	if err := o.store.SaveBatchRun(ctx, run); err != nil {
		return result, o.fail(ctx, run, fmt.Errorf("save run: %w", err))
	}
	o.logger.WithFields(logrus.Fields{
		"run_id":  run.RunId,
		"resumed": resumed,
		"cursor":  run.CursorPosition,
		"end":     end,
		"total":   len(records),
	}).Info("rebuild run started")

	eta := newETAEstimator(etaAlpha)
	errorCounts := run.ErrorCounts()
	processedThisRun := 0

	for run.CursorPosition < end {
		if ctx.Err() != nil {
			return result, o.pause(ctx, run, PauseReasonInterrupted)
		}
		batchEnd := run.CursorPosition + o.cfg.BatchSize
		if batchEnd > end {
			batchEnd = end
		}
		stats := o.runBatch(ctx, run, records[run.CursorPosition:batchEnd], result.Samples)
		result.Batches = append(result.Batches, stats)
		eta.Observe(stats.Duration)
		processedThisRun += stats.Processed

		run.CursorPosition = stats.EndCursor
		run.BatchesCompleted++
		run.ProcessedCount += stats.Processed
		run.SuccessfulCount += stats.Successful
		run.FailedCount += stats.Failed
		run.SkippedCount += stats.Skipped
		for cat, n := range stats.ErrorCounts {
			errorCounts[string(cat)] += n
		}
		run.SetErrorCounts(errorCounts)

		decision := o.gate.Evaluate(stats, run.ConsecutiveFailures)
		run.ConsecutiveFailures = decision.Consecutive
		if decision.UnderThreshold {
			o.logger.WithFields(logrus.Fields{
				"run_id":      run.RunId,
				"batch":       stats.BatchNo,
				"rate":        decision.Rate,
				"consecutive": decision.Consecutive,
			}).Warn("batch below success threshold")
		}

		checkpoint := o.now()
		run.LastCheckpointAt = &checkpoint
		if err := o.store.SaveBatchRun(context.WithoutCancel(ctx), run); err != nil {
			return result, o.fail(ctx, run, fmt.Errorf("checkpoint batch %d: %w", stats.BatchNo, err))
		}

		if run.BatchesCompleted%o.cfg.ProgressInterval == 0 || run.CursorPosition >= end {
			o.reportProgress(run, stats.BatchNo, errorCounts, processedThisRun, o.now().Sub(started), eta.Remaining(end-run.CursorPosition, o.cfg.BatchSize))
		}

		if decision.Pause {
			return result, o.pause(ctx, run, decision.Reason)
		}
		if err := o.lock.Refresh(ctx); err != nil && ctx.Err() == nil {
			config.LogError(o.logger, "orchestrator.go", "Run", "refresh run lock", run.RunId, err)
			return result, o.pause(ctx, run, PauseReasonLockLost)
		}
	}

	if run.CursorPosition < len(records) {
		return result, o.pause(ctx, run, PauseReasonMaxRecords)
	}
	finished := o.now()
	run.Status = models.BatchRunStatusCompleted
	run.IsPaused = false
	run.PauseReason = ""
	run.FinishedAt = &finished
	if err := o.store.SaveBatchRun(context.WithoutCancel(ctx), run); err != nil {
		return result, o.fail(ctx, run, fmt.Errorf("save completed run: %w", err))
	}
	o.logger.WithFields(logrus.Fields{
		"run_id":     run.RunId,
		"processed":  run.ProcessedCount,
		"successful": run.SuccessfulCount,
		"failed":     run.FailedCount,
		"skipped":    run.SkippedCount,
	}).Info("rebuild run completed")
	return result, nil
}

// openRun reopens the latest resumable run when AutoResume is set and no
// explicit start position was given, otherwise creates a new run.
func (o *Orchestrator) openRun(ctx context.Context) (*models.BatchRun, bool, error) {
	if o.cfg.AutoResume && o.cfg.StartFrom <= 0 {
		run, err := o.store.FindResumableBatchRun(ctx, o.cfg.SourcePath, o.cfg.TermFilter)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, false, fmt.Errorf("find resumable run: %w", err)
		}
		if run != nil {
			run.ResumeCount++
			run.ConsecutiveFailures = 0
			run.IsPaused = false
			run.PauseReason = ""
			run.LastError = ""
			run.FinishedAt = nil
			run.BatchSize = o.cfg.BatchSize
			o.logger.WithFields(logrus.Fields{
				"run_id":  run.RunId,
				"cursor":  run.CursorPosition,
				"resumes": run.ResumeCount,
			}).Info("resuming rebuild run")
			return run, true, nil
		}
	}
	start := o.cfg.StartFrom
	if start < 0 {
		start = 0
	}
	run := &models.BatchRun{
		RunId:          uuid.NewString(),
		Status:         models.BatchRunStatusInitialized,
		SourcePath:     o.cfg.SourcePath,
		TermFilter:     o.cfg.TermFilter,
		BatchSize:      o.cfg.BatchSize,
		StartCursor:    start,
		CursorPosition: start,
		StartedAt:      o.now(),
	}
	run.SetErrorCounts(map[string]int{})
	if err := o.store.CreateBatchRun(ctx, run); err != nil {
		return nil, false, fmt.Errorf("create run: %w", err)
	}
	return run, false, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, run *models.BatchRun, records []models.LegacyReceipt, samples map[models.FailureCategory][]Sample) BatchStats {
	stats := BatchStats{
		BatchNo:     run.BatchesCompleted + 1,
		StartCursor: run.CursorPosition,
		EndCursor:   run.CursorPosition + len(records),
		ErrorCounts: map[models.FailureCategory]int{},
	}
	// records of a started batch always run to completion
	batchCtx := appctx.Set(context.WithoutCancel(ctx), appctx.ContextKeyBatchNo, stats.BatchNo)
	batchCtx, span := o.tracer.Start(batchCtx, "receipt-rebuild.batch", trace.WithAttributes(
		attribute.String("run_id", run.RunId),
		attribute.Int("batch_no", stats.BatchNo),
		attribute.Int("start_cursor", stats.StartCursor),
		attribute.Int("size", len(records)),
	))
	defer span.End()

	began := o.now()
	for _, rec := range records {
		outcome, err := o.processor.Process(batchCtx, rec)
		stats.Processed++
		if err != nil {
			config.LogError(o.logger, "orchestrator.go", "runBatch", "process record", rec.IPK, err)
			outcome.Category = models.FailureProcessingError
			outcome.Failure = models.NewProcessingError(models.FailureProcessingError, "record could not be persisted", err)
		}
		switch {
		case outcome.Succeeded():
			stats.Successful++
			continue
		case outcome.Skipped():
			stats.Skipped++
		default:
			stats.Failed++
		}
		stats.ErrorCounts[outcome.Category]++
		if len(samples[outcome.Category]) < maxSamplesPerCategory {
			samples[outcome.Category] = append(samples[outcome.Category], Sample{
				Position:  rec.Position,
				IPK:       outcome.IPK,
				ReceiptNo: rec.ReceiptNo,
				Message:   outcome.Failure.Message,
			})
		}
	}
	stats.Duration = o.now().Sub(began)

	span.SetAttributes(
		attribute.Int("successful", stats.Successful),
		attribute.Int("failed", stats.Failed),
		attribute.Int("skipped", stats.Skipped),
	)
	if stats.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d records failed", stats.Failed))
	}

	fields := logrus.Fields{
		"run_id":     run.RunId,
		"batch":      stats.BatchNo,
		"processed":  stats.Processed,
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
		"duration":   stats.Duration.String(),
	}
	for cat, n := range stats.ErrorCounts {
		fields[string(cat)] = n
	}
	o.logger.WithFields(fields).Debug("batch finished")
	return stats
}

func (o *Orchestrator) reportProgress(run *models.BatchRun, batchNo int, errorCounts map[string]int, processedThisRun int, elapsed, eta time.Duration) {
	p := Progress{
		RunId:      run.RunId,
		BatchNo:    batchNo,
		Processed:  run.ProcessedCount,
		Total:      run.TotalRecords,
		Successful: run.SuccessfulCount,
		Failed:     run.FailedCount,
		Skipped:    run.SkippedCount,
		Elapsed:    elapsed,
		ETA:        eta,
		TopErrors:  TopCategories(errorCounts, 3),
	}
	if run.TotalRecords > 0 {
		p.Percent = float64(run.CursorPosition) / float64(run.TotalRecords) * 100
	}
	if elapsed > 0 {
		p.Throughput = float64(processedThisRun) / elapsed.Seconds()
	}
	o.logger.WithFields(logrus.Fields{
		"run_id":     p.RunId,
		"batch":      p.BatchNo,
		"processed":  p.Processed,
		"total":      p.Total,
		"percent":    fmt.Sprintf("%.1f", p.Percent),
		"throughput": fmt.Sprintf("%.1f", p.Throughput),
		"eta":        p.ETA.Round(time.Second).String(),
		"top_errors": p.TopErrors,
	}).Info("rebuild progress")
	for _, cb := range o.callbacks {
		cb(p)
	}
}

func (o *Orchestrator) pause(ctx context.Context, run *models.BatchRun, reason string) error {
	run.Status = models.BatchRunStatusPaused
	run.IsPaused = true
	run.PauseReason = reason
	if err := o.store.SaveBatchRun(context.WithoutCancel(ctx), run); err != nil {
		return o.fail(ctx, run, fmt.Errorf("save paused run: %w", err))
	}
	o.logger.WithFields(logrus.Fields{
		"run_id": run.RunId,
		"cursor": run.CursorPosition,
		"reason": reason,
	}).Warn("rebuild run paused")
	return nil
}

// fail marks the run FAILED. The status write is best effort since the
// cause is often the store itself.
func (o *Orchestrator) fail(ctx context.Context, run *models.BatchRun, cause error) error {
	finished := o.now()
	run.Status = models.BatchRunStatusFailed
	run.LastError = cause.Error()
	run.FinishedAt = &finished
	config.LogError(o.logger, "orchestrator.go", "Run", "rebuild run failed", run.RunId, cause)
	if err := o.store.SaveBatchRun(context.WithoutCancel(ctx), run); err != nil {
		config.LogError(o.logger, "orchestrator.go", "fail", "save failed run", run.RunId, err)
	}
	return cause
}
