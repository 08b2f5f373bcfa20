package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marstat/internal/format"
	"marstat/internal/metrics"
	"marstat/internal/pipeline"
	"marstat/internal/report"
	"marstat/internal/store"
)

var runFlags struct {
	data        string
	configPath  string
	out         string
	seed        uint64
	cacheDB     string
	noCache     bool
	refresh     bool
	metricsFile string
	format      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit the model, evaluate it and write the report",
	Long: `Run loads and cleans the dataset, splits it, fits the model (or reuses a
cached fit for the same dataset, model settings and seed), cross-validates
on the training rows, scores the held-out rows and writes report.md,
summary.json and figures into --out.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.data, "data", "", "Survey file (.csv, .dta, .sas7bdat) (required)")
	f.StringVar(&runFlags.configPath, "config", "", "Config file (YAML or JSON); empty = defaults")
	f.StringVar(&runFlags.out, "out", "report", "Output directory")
	f.Uint64Var(&runFlags.seed, "seed", 0, "Random seed (overrides config)")
	f.StringVar(&runFlags.cacheDB, "cache-db", store.DefaultDBPath, "Fit cache database path")
	f.BoolVar(&runFlags.noCache, "no-cache", false, "Do not read or write the fit cache")
	f.BoolVar(&runFlags.refresh, "refresh", false, "Refit and overwrite any cached fit")
	f.StringVar(&runFlags.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to path; empty = disabled")
	f.StringVar(&runFlags.format, "format", "ascii", "Console table format (ascii, markdown)")

	_ = runCmd.MarkFlagRequired("data")
	runCmd.MarkFlagsMutuallyExclusive("no-cache", "refresh")
}

func runRun(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(runFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(runFlags.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = runFlags.seed
	}

	opts := pipeline.Options{
		DataPath: runFlags.data,
		Config:   cfg,
		Refresh:  runFlags.refresh,
		Metrics:  metrics.New(),
	}
	if !runFlags.noCache {
		st, err := openStore(runFlags.cacheDB)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := pipeline.Run(ctx, opts)
	if runFlags.metricsFile != "" {
		if err := opts.Metrics.WriteTextfile(runFlags.metricsFile); err != nil && runErr == nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	written, err := report.Write(runFlags.out, res)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Console(res, mode))
	fmt.Fprintf(out, "Report: %s\n", written.Document)
	return nil
}
