package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"marstat/internal/config"
	"marstat/internal/dataset"
	"marstat/internal/recode"
	"marstat/internal/split"
)

// prepared is the cleaned, encoded dataset.
type prepared struct {
	info   DatasetInfo
	stats  recode.Stats
	levels []recode.LevelCount
	obs    []recode.Observation
	names  []string
	x      *mat.Dense
	y      []float64
}

func prepare(path string, cfg *config.Config) (*prepared, error) {
	tbl, err := dataset.Load(path, dataset.Options{
		Schema: dataset.Schema{
			Age:           cfg.Schema.Age,
			MaritalStatus: cfg.Schema.MaritalStatus,
			Income:        cfg.Schema.Income,
			PopCenter:     cfg.Schema.PopCenter,
		},
		MissingValues: cfg.MissingValues,
	})
	if err != nil {
		return nil, err
	}
	obs, stats, err := recode.Clean(tbl, recode.RulesFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("recode: %w", err)
	}
	enc := recode.NewEncoder(cfg.Factors.PopCenter, cfg.Factors.Income)
	x, y := enc.Encode(obs)
	return &prepared{
		info:   DatasetInfo{Path: tbl.Path, Format: tbl.Format, Hash: tbl.Hash, Rows: tbl.Len()},
		stats:  stats,
		levels: recode.Tabulate(obs, cfg.Factors.PopCenter, cfg.Factors.Income),
		obs:    obs,
		names:  enc.Names(),
		x:      x,
		y:      y,
	}, nil
}

// Description summarises the cleaned data without fitting.
type Description struct {
	Dataset      DatasetInfo         `json:"dataset"`
	Clean        recode.Stats        `json:"clean"`
	Levels       []recode.LevelCount `json:"levels"`
	Coefficients []string            `json:"coefficients"`
	OutcomeRate  float64             `json:"outcome_rate"`
	AgeMin       int                 `json:"age_min"`
	AgeMax       int                 `json:"age_max"`
	NTrain       int                 `json:"n_train"`
	NTest        int                 `json:"n_test"`
}

// Describe loads and cleans the dataset and tabulates it.
func Describe(path string, cfg *config.Config) (*Description, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prep, err := prepare(path, cfg)
	if err != nil {
		return nil, err
	}
	d := &Description{
		Dataset:      prep.info,
		Clean:        prep.stats,
		Levels:       prep.levels,
		Coefficients: prep.names,
		AgeMin:       prep.obs[0].Age,
		AgeMax:       prep.obs[0].Age,
	}
	pos := 0
	for _, o := range prep.obs {
		pos += o.Outcome
		d.AgeMin = min(d.AgeMin, o.Age)
		d.AgeMax = max(d.AgeMax, o.Age)
	}
	d.OutcomeRate = float64(pos) / float64(len(prep.obs))
	d.NTrain = split.TrainSize(len(prep.obs), cfg.Split.TrainFraction)
	d.NTest = len(prep.obs) - d.NTrain
	return d, nil
}
