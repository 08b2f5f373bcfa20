package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"marstat/internal/config"
	"marstat/internal/report"
)

// execute runs the root command in-process and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "survey.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"age", "marital_status", "income_respondent", "pop_center"})

	pops := []string{
		"Larger urban population centres (CMA/CA)",
		"Rural areas and small population centres (non CMA/CA)",
		"Prince Edward Island",
	}
	incomes := []string{
		"Less than $25,000",
		"$25,000 to $49,999",
		"$50,000 to $74,999",
		"$75,000 to $99,999",
		"$100,000 to $ 124,999",
		"$125,000 and more",
	}
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < n; i++ {
		age := 25 + rng.IntN(51)
		inc := rng.IntN(len(incomes))
		eta := -3.5 + 0.08*float64(age) + 0.1*float64(inc)
		status := "Single, never married"
		if rng.Float64() < 1/(1+math.Exp(-eta)) {
			status = "Married"
		}
		_ = w.Write([]string{strconv.Itoa(age), status, incomes[inc], pops[rng.IntN(len(pops))]})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
	return path
}

func fileHash(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestConfigDefault(t *testing.T) {
	out, err := execute(t, "config", "default")
	if err != nil {
		t.Fatalf("config default: %v", err)
	}
	got, err := config.Load([]byte(out), ".yaml")
	if err != nil {
		t.Fatalf("printed config does not load: %v\n%s", err, out)
	}
	if diff := cmp.Diff(config.Default(), got); diff != "" {
		t.Errorf("printed config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("split:\n  train_fraction: 1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "check", path); err == nil {
		t.Error("expected validation error")
	}
}

func TestUnknownLogFormat(t *testing.T) {
	_, err := execute(t, "config", "default", "--log-format", "xml")
	if err == nil || !strings.Contains(err.Error(), "log format") {
		t.Errorf("err = %v, want log format error", err)
	}
	rootFlags.logFormat = "text"
}

func TestDescribe(t *testing.T) {
	path := writeCSV(t, t.TempDir(), 200)
	out, err := execute(t, "describe", "--data", path, "--format", "ascii", "--log-level", "warn")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	for _, want := range []string{"Rows:    200 loaded", "Design matrix columns:", "age"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", "--data", filepath.Join(dir, "absent.csv"), "--out", dir,
		"--no-cache", "--log-level", "warn")
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
	runFlags.noCache = false
}

func TestRun_ReportAndCache(t *testing.T) {
	if testing.Short() {
		t.Skip("fits the model")
	}
	dir := t.TempDir()
	data := writeCSV(t, dir, 500)
	cfgPath := filepath.Join(dir, "fast.yaml")
	cfg := "sampler:\n  chains: 2\n  warmup: 200\n  draws: 250\n  target_accept: 0.8\nevaluation:\n  folds: 2\n  workers: 2\n  threshold: 0.5\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "cache", "fits.db")
	outDir := filepath.Join(dir, "out")
	metricsPath := filepath.Join(dir, "metrics.prom")

	out, err := execute(t, "run", "--data", data, "--config", cfgPath, "--out", outDir,
		"--cache-db", db, "--metrics-file", metricsPath, "--seed", "11", "--log-level", "warn")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Posterior (95% credible intervals)") {
		t.Errorf("console output missing posterior table:\n%s", out)
	}
	for _, name := range []string{report.DocumentFile, report.SummaryFile, report.ROCFile, report.IntervalsFile} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prom), "marstat_fits_total") {
		t.Errorf("metrics file missing fits counter:\n%s", prom)
	}

	out, err = execute(t, "cache", "list", "--cache-db", db)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(strings.ToLower(out), "1 entries") {
		t.Errorf("cache list:\n%s", out)
	}

	out, err = execute(t, "cache", "invalidate", "--cache-db", db, "--dataset-hash", fileHash(t, data))
	if err != nil {
		t.Fatalf("cache invalidate: %v", err)
	}
	if !strings.Contains(out, "Removed 1 cached fits") {
		t.Errorf("invalidate output: %s", out)
	}

	out, err = execute(t, "cache", "list", "--cache-db", db)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "No cached fits.") {
		t.Errorf("cache not empty after invalidate:\n%s", out)
	}
}

func TestRootCommands(t *testing.T) {
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, want := range []string{"cache", "config", "describe", "run"} {
		if !slices.Contains(got, want) {
			t.Errorf("root command missing %q (have %v)", want, got)
		}
	}
}

func TestConfigCheck_NonFinitePrior(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.yaml")
	if err := os.WriteFile(path, []byte("prior:\n  mean: .nan\n  sd: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "config", "check", path)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
