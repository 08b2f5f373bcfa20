// Package pipeline runs the analysis end to end: load, filter/recode,
// split, fit (or reuse a cached fit), cross-validate and score the held-out
// rows.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"marstat/internal/config"
	"marstat/internal/dataset"
	"marstat/internal/display"
	"marstat/internal/evaluate"
	"marstat/internal/logging"
	"marstat/internal/mcmc"
	"marstat/internal/metrics"
	"marstat/internal/model"
	"marstat/internal/recode"
	"marstat/internal/split"
	"marstat/internal/store"
)

// Options configures one run.
type Options struct {
	DataPath string
	Config   *config.Config
	// Store is the fit cache. Nil disables caching.
	Store store.Store
	// Refresh refits and overwrites a cached entry.
	Refresh bool
	// Sampler defaults to HMC.
	Sampler mcmc.Sampler
	// Metrics defaults to a private recorder.
	Metrics *metrics.Recorder
}

// DatasetInfo identifies the input.
type DatasetInfo struct {
	Path   string         `json:"path"`
	Format dataset.Format `json:"format"`
	Hash   string         `json:"hash"`
	Rows   int            `json:"rows"`
}

// Artifact is what the fit cache stores: everything derived from the
// training rows.
type Artifact struct {
	Posterior *model.Posterior   `json:"posterior"`
	CV        *evaluate.CVResult `json:"cv"`
}

// Result is a completed run.
type Result struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
	Config    *config.Config `json:"config"`
	Dataset   DatasetInfo    `json:"dataset"`

	Clean  recode.Stats        `json:"clean"`
	Levels []recode.LevelCount `json:"levels"`
	NTrain int                 `json:"n_train"`
	NTest  int                 `json:"n_test"`

	// Stages lists the completed stage codes in order; "fit" is absent
	// when the fit came from the cache.
	Stages []string `json:"stages"`

	CacheKey    store.Key `json:"cache_key"`
	CacheHit    bool      `json:"cache_hit"`
	FittedRunID string    `json:"fitted_run_id"`

	Posterior *model.Posterior   `json:"posterior"`
	CV        *evaluate.CVResult `json:"cv"`
	TestPred  []float64          `json:"-"`
	TestY     []float64          `json:"-"`
	TestRMSE  float64            `json:"test_rmse"`
	ROC       evaluate.ROC       `json:"roc"`
	Confusion evaluate.Confusion `json:"confusion"`
	Traces    []evaluate.Trace   `json:"-"`
}

// Run executes the pipeline. Every error is fatal to the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Sampler == nil {
		opts.Sampler = mcmc.NewHMC()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New("pipeline")
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now(), Config: cfg}
	logger.Info("run started", "run_id", res.RunID, "data", opts.DataPath, "seed", cfg.Seed)

	prep, err := prepare(opts.DataPath, cfg)
	if err != nil {
		return nil, err
	}
	res.Dataset = prep.info
	res.Clean = prep.stats
	res.Levels = prep.levels
	opts.Metrics.Rows(RowsLoaded, prep.info.Rows)
	opts.Metrics.Rows(RowsCleaned, prep.stats.RowsOut)
	res.stageDone(StageLoad, StageClean)

	part, err := split.TrainTest(len(prep.y), cfg.Split.TrainFraction, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	xTrain, yTrain := subset(prep.x, prep.y, part.Train)
	xTest, yTest := subset(prep.x, prep.y, part.Test)
	res.NTrain, res.NTest = len(part.Train), len(part.Test)
	opts.Metrics.Rows(RowsTrain, res.NTrain)
	opts.Metrics.Rows(RowsTest, res.NTest)
	logger.Info("rows split", "train", res.NTrain, "test", res.NTest)
	res.stageDone(StageSplit)

	specHash, err := cfg.Fingerprint()
	if err != nil {
		return nil, err
	}
	res.CacheKey = store.Key{DatasetHash: prep.info.Hash, SpecHash: specHash, Seed: cfg.Seed}
	art, hit, fittedBy, err := lookup(opts, res.CacheKey)
	if err != nil {
		return nil, err
	}
	if !hit {
		art, err = fitAndValidate(ctx, opts, xTrain, yTrain, prep.names)
		if err != nil {
			return nil, err
		}
		fittedBy = res.RunID
		if err := save(opts, res.CacheKey, res.RunID, art); err != nil {
			return nil, err
		}
		res.stageDone(StageFit)
	}
	res.CacheHit = hit
	res.FittedRunID = fittedBy
	res.Posterior = art.Posterior
	res.CV = art.CV
	for _, w := range art.Posterior.Warnings {
		opts.Metrics.FitWarning(string(w.Kind))
	}

	res.TestPred = art.Posterior.Predict(xTest)
	res.TestY = yTest
	res.TestRMSE = evaluate.RMSE(res.TestPred, yTest)
	res.ROC, err = evaluate.ComputeROC(res.TestPred, yTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	res.Confusion = evaluate.Classify(res.TestPred, yTest, cfg.Evaluation.Threshold)
	res.Traces = evaluate.Traces(art.Posterior)
	res.stageDone(StageEvaluate)

	res.Elapsed = time.Since(res.StartedAt)
	opts.Metrics.Evaluation(res.ROC.AUC, res.CV.RMSE, art.Posterior.Diagnostics.Divergences)
	opts.Metrics.Succeeded(time.Now())
	logger.Info("run finished", "run_id", res.RunID, "stages", display.StagePath(res.Stages),
		"auc", res.ROC.AUC, "cv_rmse", res.CV.RMSE, "test_rmse", res.TestRMSE,
		"accuracy", res.Confusion.Accuracy(), "cache_hit", hit, "elapsed", res.Elapsed)
	return res, nil
}

// Stage codes recorded in Result.Stages.
const (
	StageLoad     = "load"
	StageClean    = "clean"
	StageSplit    = "split"
	StageFit      = "fit"
	StageEvaluate = "evaluate"
)

// Row-count stages reported to metrics and the report's data section.
const (
	RowsLoaded  = "loaded"
	RowsCleaned = "cleaned"
	RowsTrain   = "train"
	RowsTest    = "test"
)

func (r *Result) stageDone(codes ...string) {
	for _, c := range codes {
		r.Stages = append(r.Stages, c)
		logging.New("pipeline").Debug("stage done", "stage", display.Stage(c))
	}
}

// RowCounts returns the row count of every row stage, in pipeline order.
func (r *Result) RowCounts() []RowCount {
	return []RowCount{
		{Stage: RowsLoaded, N: r.Clean.RowsIn},
		{Stage: RowsCleaned, N: r.Clean.RowsOut},
		{Stage: RowsTrain, N: r.NTrain},
		{Stage: RowsTest, N: r.NTest},
	}
}

// RowCount is the number of rows at one stage.
type RowCount struct {
	Stage string `json:"stage"`
	N     int    `json:"n"`
}

// ModelSpec derives the fit settings from cfg with the given seed.
func ModelSpec(cfg *config.Config, seed uint64) model.Spec {
	return model.Spec{
		Prior: model.Prior{Mean: cfg.Prior.Mean, SD: cfg.Prior.SD},
		Sampler: mcmc.Config{
			Chains:       cfg.Sampler.Chains,
			Warmup:       cfg.Sampler.Warmup,
			Draws:        cfg.Sampler.Draws,
			Seed:         seed,
			TargetAccept: cfg.Sampler.TargetAccept,
		},
		Policy: mcmc.Policy{
			RhatMax:  cfg.Convergence.RhatMax,
			RhatWarn: cfg.Convergence.RhatWarn,
			ESSMin:   cfg.Convergence.ESSMin,
			ESSWarn:  cfg.Convergence.ESSWarn,
		},
	}
}

// FoldSeed is the sampler seed of cross-validation fold f. Folds never
// share the full fit's streams.
func FoldSeed(seed uint64, f int) uint64 { return seed + 1 + uint64(f) }

func fitAndValidate(ctx context.Context, opts Options, x *mat.Dense, y []float64, names []string) (*Artifact, error) {
	cfg := opts.Config
	logger := logging.New("pipeline")

	start := time.Now()
	post, err := model.Fit(ctx, opts.Sampler, x, y, names, ModelSpec(cfg, cfg.Seed))
	if err != nil {
		return nil, err
	}
	opts.Metrics.ObserveFit(metrics.FitFull, time.Since(start))
	logger.Info("model fitted", "elapsed", time.Since(start), "warnings", len(post.Warnings))

	fold := func(ctx context.Context, f int, train, test []int) ([]float64, error) {
		xf, yf := subset(x, y, train)
		xt, _ := subset(x, y, test)
		start := time.Now()
		p, err := model.Fit(ctx, opts.Sampler, xf, yf, names, ModelSpec(cfg, FoldSeed(cfg.Seed, f)))
		if err != nil {
			return nil, err
		}
		opts.Metrics.ObserveFit(metrics.FitFold, time.Since(start))
		return p.Predict(xt), nil
	}
	cv, err := evaluate.CrossValidate(ctx, y, cfg.Evaluation.Folds, cfg.Seed, cfg.Evaluation.Workers, fold)
	if err != nil {
		return nil, err
	}
	return &Artifact{Posterior: post, CV: cv}, nil
}

func lookup(opts Options, k store.Key) (*Artifact, bool, string, error) {
	logger := logging.New("cache")
	switch {
	case opts.Store == nil:
		opts.Metrics.CacheLookup(metrics.CacheDisabled)
		return nil, false, "", nil
	case opts.Refresh:
		opts.Metrics.CacheLookup(metrics.CacheMiss)
		logger.Info("cache refresh requested", "key", k.ID()[:12])
		return nil, false, "", nil
	}
	e, err := opts.Store.Get(k)
	if errors.Is(err, store.ErrNotFound) {
		opts.Metrics.CacheLookup(metrics.CacheMiss)
		logger.Info("cache miss", "key", k.ID()[:12])
		return nil, false, "", nil
	}
	if err != nil {
		return nil, false, "", fmt.Errorf("cache: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(e.Payload, &art); err != nil || art.Posterior == nil || art.CV == nil {
		// A corrupt entry is refitted and overwritten.
		opts.Metrics.CacheLookup(metrics.CacheMiss)
		logger.Warn("cache entry unreadable, refitting", "key", k.ID()[:12], "error", err)
		return nil, false, "", nil
	}
	opts.Metrics.CacheLookup(metrics.CacheHit)
	logger.Info("cache hit", "key", k.ID()[:12], "fitted_run_id", e.RunID, "created_at", e.CreatedAt)
	return &art, true, e.RunID, nil
}

func save(opts Options, k store.Key, runID string, art *Artifact) error {
	if opts.Store == nil {
		return nil
	}
	payload, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("cache: encode artifact: %w", err)
	}
	if err := opts.Store.Put(&store.Entry{Key: k, RunID: runID, Payload: payload}); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	logging.New("cache").Info("fit cached", "key", k.ID()[:12], "bytes", len(payload))
	return nil
}

// subset copies the rows idx of x and y.
func subset(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	if len(idx) == 0 {
		return &mat.Dense{}, nil
	}
	_, c := x.Dims()
	xs := mat.NewDense(len(idx), c, nil)
	ys := make([]float64, len(idx))
	for i, r := range idx {
		copy(xs.RawRowView(i), x.RawRowView(r))
		ys[i] = y[r]
	}
	return xs, ys
}
