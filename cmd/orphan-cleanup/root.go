package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:           "orphan-cleanup [base_url]",
		Short:         "Delete orphaned Backstage catalog entities",
		Long: `Delete orphaned Backstage catalog entities.

Environment:
  BACKSTAGE_URL       catalog base URL when no argument is given (default http://localhost:7007)
  BACKSTAGE_API_KEY   bearer token when --api-key is not given
  LOG_LEVEL           silent|error|warn|info|debug (default warn); skipped entities
                      and failed deletes are reported unless silent
  LOG_FORMAT          text|json (default text)
  REQUEST_ID_HEADER   header carrying a fresh uuid on every request
  HTTP_TIMEOUT        per-request timeout, e.g. 30s (default none)`,
		Args:          usageArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.BaseURL = args[0]
			}
			opts.APIKeySet = cmd.Flags().Changed("api-key")
			return runCleanup(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	cmd.Flags().StringVar(&opts.APIKey, "api-key", "", "API key or token passed as Bearer to Backstage requests (env BACKSTAGE_API_KEY)")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "show orphan entities without deleting them")
	cmd.Flags().BoolVar(&opts.CSVOutput, "csv-output", false, "write deleted (or would-be deleted) entities to CSV")
	cmd.Flags().BoolVar(&opts.XLSXOutput, "xlsx-output", false, "write deleted (or would-be deleted) entities to XLSX")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", ".", "directory for report files")

	return cmd
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withCode(exitUsage, fn(cmd, args))
	}
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
