// Package evaluate scores a fitted model: K-fold cross-validated RMSE on
// the training rows, ROC and AUC on the held-out rows, a confusion matrix,
// and per-coefficient traces.
package evaluate

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"marstat/internal/logging"
	"marstat/internal/split"
)

// Fitter fits on the train rows and returns predicted probabilities for the
// test rows, in order. Fold is the fold index, for seeding.
type Fitter func(ctx context.Context, fold int, train, test []int) ([]float64, error)

// FoldResult is one fold's held-out score.
type FoldResult struct {
	Fold int     `json:"fold"`
	N    int     `json:"n"`
	RMSE float64 `json:"rmse"`
	SSE  float64 `json:"sse"`
}

// CVResult joins all folds. RMSE pools squared errors over every row.
type CVResult struct {
	K     int          `json:"k"`
	Folds []FoldResult `json:"folds"`
	RMSE  float64      `json:"rmse"`
}

// CrossValidate splits n rows into k seeded folds and fits them
// concurrently, at most workers at a time (zero means GOMAXPROCS). Any fold
// error cancels the rest and is returned.
func CrossValidate(ctx context.Context, y []float64, k int, seed uint64, workers int, fit Fitter) (*CVResult, error) {
	logger := logging.New("crossval")
	n := len(y)
	folds, err := split.Folds(n, k, seed)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger.Info("cross-validation started", "rows", n, "folds", k, "workers", workers)

	results := make([]FoldResult, k)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for f, test := range folds {
		g.Go(func() error {
			train := split.Complement(n, test)
			pred, err := fit(gctx, f, train, test)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			if len(pred) != len(test) {
				return fmt.Errorf("fold %d: %d predictions for %d rows", f, len(pred), len(test))
			}
			sse := 0.0
			for i, row := range test {
				d := pred[i] - y[row]
				sse += d * d
			}
			results[f] = FoldResult{Fold: f, N: len(test), SSE: sse, RMSE: math.Sqrt(sse / float64(len(test)))}
			logger.Debug("fold done", "fold", f, "rows", len(test), "rmse", results[f].RMSE)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	total := 0.0
	for _, r := range results {
		total += r.SSE
	}
	cv := &CVResult{K: k, Folds: results, RMSE: math.Sqrt(total / float64(n))}
	logger.Info("cross-validation done", "rmse", cv.RMSE)
	return cv, nil
}

// RMSE is the root mean squared difference between pred and y.
func RMSE(pred, y []float64) float64 {
	if len(pred) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range pred {
		d := pred[i] - y[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(pred)))
}
