package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/reports"
	"bitbucket.org/mmdatafocus/ledger_rebuild/store"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
)

func main() {
	runID := flag.String("run-id", "", "Required: batch run id")
	reportDir := flag.String("report-dir", config.LoadRebuildConfig().ReportDir, "Directory for report artifacts")
	publish := flag.Bool("publish", false, "Upload artifacts to REPORT_GCS_BUCKET and publish the run event")
	flag.Parse()

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "--run-id is required")
		os.Exit(1)
	}

	db, err := config.ConnectDatabaseWithRetry(5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	logger := config.GetLogger()
	st := store.NewGormStore(db)
	ctx := context.Background()

	run, err := st.FindBatchRun(ctx, *runID)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		fmt.Fprintf(os.Stderr, "run %s not found\n", *runID)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load run: %v\n", err)
		os.Exit(1)
	}
	mappings, err := st.ListMappingsByRun(ctx, run.RunId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load mappings: %v\n", err)
		os.Exit(1)
	}
	counts, err := st.CountLedger(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count ledger: %v\n", err)
		os.Exit(1)
	}

	report := reports.Build(reports.Input{Run: run, Mappings: mappings, Ledger: &counts})
	artifacts, err := reports.WriteAll(*reportDir, report, mappings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "write reports: %v\n", err)
		os.Exit(1)
	}
	for _, p := range artifacts.Paths() {
		fmt.Println(p)
	}

	if *publish {
		if _, err := reports.NewPublisher(logger).Publish(ctx, report, artifacts, ""); err != nil {
			fmt.Fprintf(os.Stderr, "publish: %v\n", err)
			os.Exit(1)
		}
	}
}
