package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"marstat/internal/display"
	"marstat/internal/evaluate"
	"marstat/internal/logging"
	"marstat/internal/mcmc"
	"marstat/internal/model"
	"marstat/internal/pipeline"
	"marstat/internal/recode"
)

// Output file names inside the report directory.
const (
	DocumentFile  = "report.md"
	SummaryFile   = "summary.json"
	IntervalsFile = "intervals.png"
	ROCFile       = "roc.png"
)

// Summary is the machine-readable counterpart of the Markdown report.
type Summary struct {
	RunID       string               `json:"run_id"`
	FittedRunID string               `json:"fitted_run_id"`
	CacheHit    bool                 `json:"cache_hit"`
	CacheKey    string               `json:"cache_key"`
	Dataset     pipeline.DatasetInfo `json:"dataset"`
	Seed        uint64               `json:"seed"`
	Clean       recode.Stats         `json:"clean"`
	NTrain      int                  `json:"n_train"`
	NTest       int                  `json:"n_test"`

	ConvergenceWarnings bool `json:"convergence_warnings"`
	SeparationWarnings  bool `json:"separation_warnings"`

	Coefficients []model.Coefficient `json:"coefficients"`
	Warnings     []model.Warning     `json:"warnings"`
	Diagnostics  mcmc.Diagnostics    `json:"diagnostics"`
	CV           *evaluate.CVResult  `json:"cv"`
	TestRMSE     float64             `json:"test_rmse"`
	AUC          float64             `json:"auc"`
	Confusion    evaluate.Confusion  `json:"confusion"`
	Accuracy     float64             `json:"accuracy"`
	Figures      []Figure            `json:"figures"`
}

// Written lists the files produced by Write.
type Written struct {
	Dir      string
	Document string
	Summary  string
	Figures  []Figure
}

// NewSummary collects the reported numbers of res.
func NewSummary(res *pipeline.Result, figures []Figure) Summary {
	warnings := res.Posterior.Warnings
	if warnings == nil {
		warnings = []model.Warning{}
	}
	return Summary{
		RunID:               res.RunID,
		FittedRunID:         res.FittedRunID,
		CacheHit:            res.CacheHit,
		CacheKey:            res.CacheKey.ID(),
		Dataset:             res.Dataset,
		Seed:                res.Config.Seed,
		Clean:               res.Clean,
		NTrain:              res.NTrain,
		NTest:               res.NTest,
		ConvergenceWarnings: res.Posterior.HasWarnings(model.KindConvergence),
		SeparationWarnings:  res.Posterior.HasWarnings(model.KindSeparation),
		Coefficients:        res.Posterior.Coefficients,
		Warnings:            warnings,
		Diagnostics:         res.Posterior.Diagnostics,
		CV:                  res.CV,
		TestRMSE:            res.TestRMSE,
		AUC:                 res.ROC.AUC,
		Confusion:           res.Confusion,
		Accuracy:            res.Confusion.Accuracy(),
		Figures:             figures,
	}
}

// Write renders figures, report.md and summary.json into dir, creating it
// if needed. Existing files of the same name are overwritten.
func Write(dir string, res *pipeline.Result) (*Written, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	logger := logging.New("report")

	figures, err := renderFigures(dir, res)
	if err != nil {
		return nil, err
	}

	out := &Written{
		Dir:      dir,
		Document: filepath.Join(dir, DocumentFile),
		Summary:  filepath.Join(dir, SummaryFile),
		Figures:  figures,
	}
	if err := os.WriteFile(out.Document, []byte(Document(res, figures)), 0o644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	data, err := json.MarshalIndent(NewSummary(res, figures), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(out.Summary, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	logger.Info("report written", "dir", dir, "figures", len(figures))
	return out, nil
}

func renderFigures(dir string, res *pipeline.Result) ([]Figure, error) {
	var figures []Figure

	if err := IntervalPlot(res.Posterior.Coefficients, filepath.Join(dir, IntervalsFile)); err != nil {
		return nil, err
	}
	figures = append(figures, Figure{Title: "Posterior means and 95% credible intervals", Path: IntervalsFile})

	if err := ROCPlot(res.ROC, filepath.Join(dir, ROCFile)); err != nil {
		return nil, err
	}
	figures = append(figures, Figure{Title: "ROC curve on held-out rows", Path: ROCFile})

	for _, tr := range res.Traces {
		name := "trace_" + display.FileSlug(tr.Name) + ".png"
		if err := TracePlot(tr, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
		figures = append(figures, Figure{Title: "Trace: " + display.Coefficient(tr.Name), Path: name})
	}
	return figures, nil
}
