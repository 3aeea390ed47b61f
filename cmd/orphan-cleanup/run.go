package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orphan-cleanup/internal/catalog"
	"github.com/iota-uz/orphan-cleanup/internal/orphans"
	"github.com/iota-uz/orphan-cleanup/internal/report"
	"github.com/iota-uz/orphan-cleanup/internal/runmetrics"
	"github.com/iota-uz/orphan-cleanup/pkg/configuration"
)

type runOptions struct {
	BaseURL     string
	APIKey      string
	APIKeySet   bool
	DryRun      bool
	CSVOutput   bool
	XLSXOutput  bool
	MetricsFile string
	OutputDir   string
}

// now is replaced in tests.
var now = time.Now

func runCleanup(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	conf, err := configuration.Load(configuration.DefaultEnvFiles)
	if err != nil {
		return withCode(exitUsage, err)
	}
	logger := conf.Logger(stderr)

	baseURL := opts.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = conf.BaseURL
	}
	baseURL = catalog.NormalizeBaseURL(baseURL)
	apiKey := opts.APIKey
	if !opts.APIKeySet {
		apiKey = conf.APIKey
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		opts.OutputDir = "."
	}

	fmt.Fprintln(stdout, baseURL)

	client := catalog.NewClient(
		baseURL,
		catalog.BuildHeaders(apiKey),
		catalog.WithHTTPClient(&http.Client{Timeout: conf.HTTPTimeout}),
		catalog.WithRequestIDHeader(conf.RequestIDHeader),
	)
	recorder := runmetrics.NewRecorder()

	found, err := client.FetchOrphans(ctx)
	if err != nil {
		recorder.ObserveFetchFailure(opts.DryRun, now())
		writeMetrics(logger, recorder, opts.MetricsFile)
		return withCode(exitFailure, err)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Found %d orphaned entities\n", len(found))
	fmt.Fprintln(stdout)

	processor := orphans.NewProcessor(client, stdout, logger, orphans.Options{
		DryRun:      opts.DryRun,
		CollectRows: opts.CSVOutput || opts.XLSXOutput,
	})
	summary := processor.Process(ctx, found)
	logger.WithFields(summary.Fields()).Info("orphan cleanup finished")

	finishedAt := now()
	if opts.CSVOutput {
		path, err := report.WriteCSV(opts.OutputDir, summary.Rows, opts.DryRun, finishedAt)
		if err != nil {
			return withCode(exitFailure, err)
		}
		fmt.Fprintf(stdout, "Wrote CSV to %s\n", path)
	}
	if opts.XLSXOutput {
		path, err := report.WriteXLSX(opts.OutputDir, summary.Rows, opts.DryRun, finishedAt)
		if err != nil {
			return withCode(exitFailure, err)
		}
		fmt.Fprintf(stdout, "Wrote XLSX to %s\n", path)
	}

	recorder.Observe(summary, finishedAt)
	writeMetrics(logger, recorder, opts.MetricsFile)
	return nil
}

func writeMetrics(logger *logrus.Logger, recorder *runmetrics.Recorder, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		logger.WithError(err).Error("failed to write metrics")
		return
	}
	logger.WithField("path", path).Info("wrote metrics")
}
