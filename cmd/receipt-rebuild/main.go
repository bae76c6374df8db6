package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/ledger_rebuild/appctx"
	"bitbucket.org/mmdatafocus/ledger_rebuild/batch"
	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/reports"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	exitCompleted = 0
	exitFailed    = 1
	exitPaused    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadRebuildConfig()
	delimiter := string(cfg.Delimiter)

	flag.StringVar(&cfg.SourcePath, "source", cfg.SourcePath, "Required: legacy receipts extract (.csv/.txt or .xlsx)")
	flag.StringVar(&delimiter, "delimiter", delimiter, "Field delimiter of text extracts (char, or tab/pipe/comma/semicolon)")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Records per batch")
	flag.IntVar(&cfg.StartFrom, "start-from", cfg.StartFrom, "Start a fresh run at this record position")
	flag.IntVar(&cfg.MaxRecords, "max-records", cfg.MaxRecords, "Stop after this many records (0 = all)")
	flag.Float64Var(&cfg.SuccessRateThreshold, "success-threshold", cfg.SuccessRateThreshold, "Minimum batch success rate (0..1)")
	flag.IntVar(&cfg.MaxConsecutiveFailures, "max-consecutive-failures", cfg.MaxConsecutiveFailures, "Pause after this many consecutive batches below threshold")
	flag.BoolVar(&cfg.QualityGateEnabled, "quality-gate", cfg.QualityGateEnabled, "Enable the quality gate")
	flag.BoolVar(&cfg.AutoResume, "auto-resume", cfg.AutoResume, "Resume the latest paused/failed run over the same source and term")
	flag.StringVar(&cfg.TermFilter, "term", cfg.TermFilter, "Optional: only rebuild receipts of this legacy term")
	flag.IntVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "Log progress every N batches")
	flag.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "Directory for report artifacts")
	dryRun := flag.Bool("dry-run", false, "Rebuild into an in-memory ledger; nothing is written to the database")
	studentsFile := flag.String("students-file", "", "Dry-run: CSV of id,legacy_id[,name]")
	termsFile := flag.String("terms-file", "", "Dry-run: CSV of id,code[,name]")
	useLock := flag.Bool("lock", false, "Hold a Redis run lock keyed by term (requires REDIS_ADDRESS)")
	flag.Parse()

	if strings.TrimSpace(cfg.SourcePath) == "" {
		fmt.Fprintln(os.Stderr, "--source is required")
		return exitFailed
	}
	cfg.Delimiter = config.ParseDelimiter(delimiter)
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	correlationId := uuid.NewString()
	ctx = appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)

	st, lookups, err := openStores(*dryRun, *studentsFile, *termsFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	cached, err := store.NewCachedLookupRepository(lookups, cfg.LookupCacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup cache: %v\n", err)
		return exitFailed
	}

	opts := []batch.Option{}
	if *useLock {
		locker, err := config.ConnectRedisWithRetry(ctx, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			return exitFailed
		}
		opts = append(opts, batch.WithRunLock(batch.NewRedisRunLock(locker, cfg.TermFilter, cfg.LockTTL)))
	}

	pipeline := workflow.NewReceiptPipeline(st, cached, logger, cfg.ScholarshipKeywords...)
	orchestrator := batch.NewOrchestrator(cfg, st, pipeline, logger, opts...)
	result, runErr := orchestrator.Run(ctx)
	if result == nil {
		fmt.Fprintf(os.Stderr, "rebuild could not start: %v\n", runErr)
		return exitFailed
	}
	students, terms := cached.Len()
	logger.WithFields(logrus.Fields{"run_id": result.Run.RunId, "cached_students": students, "cached_terms": terms}).Debug("lookup cache")

	// reporting must not be cut short by the interrupt that paused the run
	reportCtx := context.WithoutCancel(ctx)
	writeReports(reportCtx, st, result, cfg.ReportDir, correlationId, logger)

	fmt.Printf("run %s finished: status=%s processed=%d successful=%d failed=%d skipped=%d\n",
		result.Run.RunId, result.Run.Status, result.Run.ProcessedCount,
		result.Run.SuccessfulCount, result.Run.FailedCount, result.Run.SkippedCount)
	if result.Run.PauseReason != "" {
		fmt.Printf("paused: %s (rerun with --auto-resume to continue)\n", result.Run.PauseReason)
	}

	switch result.Run.Status {
	case models.BatchRunStatusCompleted:
		return exitCompleted
	case models.BatchRunStatusPaused:
		return exitPaused
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", runErr)
	}
	return exitFailed
}

func openStores(dryRun bool, studentsFile, termsFile string, logger *logrus.Logger) (store.Store, store.LookupRepository, error) {
	if dryRun {
		lookups := store.NewMemoryLookupRepository()
		if studentsFile != "" {
			n, err := lookups.LoadStudentsCSV(studentsFile)
			if err != nil {
				return nil, nil, fmt.Errorf("load students: %w", err)
			}
			logger.WithField("students", n).Info("dry-run students loaded")
		}
		if termsFile != "" {
			n, err := lookups.LoadTermsCSV(termsFile)
			if err != nil {
				return nil, nil, fmt.Errorf("load terms: %w", err)
			}
			logger.WithField("terms", n).Info("dry-run terms loaded")
		}
		return store.NewMemoryStore(), lookups, nil
	}

	db, err := config.ConnectDatabaseWithRetry(5)
	if err != nil {
		return nil, nil, err
	}
	if err := models.MigrateTables(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store.NewGormStore(db), store.NewGormLookupRepository(db), nil
}

func writeReports(ctx context.Context, st store.Store, result *batch.RunResult, dir, correlationId string, logger *logrus.Logger) {
	mappings, err := st.ListMappingsByRun(ctx, result.Run.RunId)
	if err != nil {
		config.LogError(logger, "main.go", "writeReports", "list mappings", result.Run.RunId, err)
		return
	}
	var ledger *store.LedgerCounts
	if counts, err := st.CountLedger(ctx); err == nil {
		ledger = &counts
	}
	report := reports.Build(reports.Input{Run: result.Run, Mappings: mappings, Result: result, Ledger: ledger})
	artifacts, err := reports.WriteAll(dir, report, mappings)
	if err != nil {
		config.LogError(logger, "main.go", "writeReports", "write artifacts", result.Run.RunId, err)
		return
	}
	logger.WithFields(logrus.Fields{"run_id": result.Run.RunId, "report": artifacts.ReportJSON}).Info("reports written")

	publisher := reports.NewPublisher(logger)
	if publisher.Enabled() {
		_, _ = publisher.Publish(ctx, report, artifacts, correlationId)
	}
}
