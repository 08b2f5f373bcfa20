// Package config holds the typed run configuration: dataset schema, filter
// bounds, factor levels with explicit reference levels, prior, sampler,
// convergence thresholds and evaluation settings.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the full run configuration.
type Config struct {
	Seed          uint64      `json:"seed" yaml:"seed"`
	Schema        Schema      `json:"schema" yaml:"schema" validate:"required"`
	MissingValues []string    `json:"missing_values" yaml:"missing_values"`
	Filter        Filter      `json:"filter" yaml:"filter"`
	Outcome       Outcome     `json:"outcome" yaml:"outcome" validate:"required"`
	Factors       Factors     `json:"factors" yaml:"factors" validate:"required"`
	Split         Split       `json:"split" yaml:"split"`
	Prior         Prior       `json:"prior" yaml:"prior"`
	Sampler       Sampler     `json:"sampler" yaml:"sampler"`
	Convergence   Convergence `json:"convergence" yaml:"convergence"`
	Evaluation    Evaluation  `json:"evaluation" yaml:"evaluation"`
}

// Schema names the four input columns.
type Schema struct {
	Age           string `json:"age" yaml:"age" validate:"required"`
	MaritalStatus string `json:"marital_status" yaml:"marital_status" validate:"required"`
	Income        string `json:"income" yaml:"income" validate:"required"`
	PopCenter     string `json:"pop_center" yaml:"pop_center" validate:"required"`
}

// Filter bounds the respondent age, inclusive on both ends.
type Filter struct {
	AgeMin int `json:"age_min" yaml:"age_min" validate:"gte=0"`
	AgeMax int `json:"age_max" yaml:"age_max" validate:"gtefield=AgeMin"`
}

// Outcome names the marital_status level that maps to outcome 0.
type Outcome struct {
	NegativeLevel string `json:"negative_level" yaml:"negative_level" validate:"required"`
}

// Factors configures the two categorical predictors. PopCenter precedes
// Income in the design matrix.
type Factors struct {
	PopCenter Factor `json:"pop_center" yaml:"pop_center" validate:"required"`
	Income    Factor `json:"income" yaml:"income" validate:"required"`
}

// Factor lists the allowed levels of a categorical column. Reference is the
// level encoded as all-zero indicators. Aliases rename raw labels before the
// level check, so Levels and Reference use the aliased names.
type Factor struct {
	Levels    []string          `json:"levels" yaml:"levels" validate:"required,min=2,unique,dive,required"`
	Reference string            `json:"reference" yaml:"reference" validate:"required"`
	Aliases   map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Split configures the train/test partition.
type Split struct {
	TrainFraction float64 `json:"train_fraction" yaml:"train_fraction" validate:"gt=0,lt=1"`
}

// Prior is the independent Normal prior placed on every coefficient.
type Prior struct {
	Mean float64 `json:"mean" yaml:"mean"`
	SD   float64 `json:"sd" yaml:"sd" validate:"gt=0"`
}

// Sampler configures the MCMC run.
type Sampler struct {
	Chains       int     `json:"chains" yaml:"chains" validate:"gte=1"`
	Warmup       int     `json:"warmup" yaml:"warmup" validate:"gte=1"`
	Draws        int     `json:"draws" yaml:"draws" validate:"gte=4"`
	TargetAccept float64 `json:"target_accept" yaml:"target_accept" validate:"gt=0,lt=1"`
}

// Convergence holds the diagnostic thresholds. Crossing a Max/Min bound is
// fatal; crossing a Warn bound is reported.
type Convergence struct {
	RhatMax  float64 `json:"rhat_max" yaml:"rhat_max" validate:"gt=1"`
	RhatWarn float64 `json:"rhat_warn" yaml:"rhat_warn" validate:"gt=1,ltefield=RhatMax"`
	ESSMin   float64 `json:"ess_min" yaml:"ess_min" validate:"gte=0"`
	ESSWarn  float64 `json:"ess_warn" yaml:"ess_warn" validate:"gtefield=ESSMin"`
}

// Evaluation configures cross-validation and classification metrics.
type Evaluation struct {
	Folds     int     `json:"folds" yaml:"folds" validate:"gte=2"`
	Workers   int     `json:"workers" yaml:"workers" validate:"gte=0"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gt=0,lt=1"`
}

// Default returns the configuration of the reference analysis.
func Default() *Config {
	return &Config{
		Seed: 853,
		Schema: Schema{
			Age:           "age",
			MaritalStatus: "marital_status",
			Income:        "income_respondent",
			PopCenter:     "pop_center",
		},
		MissingValues: []string{"NA", ""},
		Filter:        Filter{AgeMin: 30, AgeMax: 70},
		Outcome:       Outcome{NegativeLevel: "Single, never married"},
		Factors: Factors{
			PopCenter: Factor{
				Levels: []string{
					"Larger urban population centres (CMA/CA)",
					"Rural areas",
					"Prince Edward Island",
				},
				Reference: "Larger urban population centres (CMA/CA)",
				Aliases: map[string]string{
					"Rural areas and small population centres (non CMA/CA)": "Rural areas",
				},
			},
			Income: Factor{
				Levels: []string{
					"Less than $25,000",
					"$25,000 to $49,999",
					"$50,000 to $74,999",
					"$75,000 to $99,999",
					"$100,000 to $ 124,999",
					"$125,000 and more",
				},
				Reference: "Less than $25,000",
			},
		},
		Split:       Split{TrainFraction: 0.8},
		Prior:       Prior{Mean: 0, SD: 10},
		Sampler:     Sampler{Chains: 4, Warmup: 1000, Draws: 1000, TargetAccept: 0.8},
		Convergence: Convergence{RhatMax: 1.1, RhatWarn: 1.01, ESSMin: 100, ESSWarn: 400},
		Evaluation:  Evaluation{Folds: 10, Workers: 0, Threshold: 0.5},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	for _, f := range c.floats() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s = %v, want a finite number", ErrInvalid, f.name, f.value)
		}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for name, f := range map[string]Factor{"pop_center": c.Factors.PopCenter, "income": c.Factors.Income} {
		if !slices.Contains(f.Levels, f.Reference) {
			return fmt.Errorf("%w: factor %s: reference %q is not one of its levels", ErrInvalid, name, f.Reference)
		}
	}
	if slices.Contains(c.MissingValues, c.Outcome.NegativeLevel) {
		return fmt.Errorf("%w: outcome level %q is also a missing-value token", ErrInvalid, c.Outcome.NegativeLevel)
	}
	return nil
}

type namedFloat struct {
	name  string
	value float64
}

func (c *Config) floats() []namedFloat {
	return []namedFloat{
		{"split.train_fraction", c.Split.TrainFraction},
		{"prior.mean", c.Prior.Mean},
		{"prior.sd", c.Prior.SD},
		{"sampler.target_accept", c.Sampler.TargetAccept},
		{"convergence.rhat_max", c.Convergence.RhatMax},
		{"convergence.rhat_warn", c.Convergence.RhatWarn},
		{"convergence.ess_min", c.Convergence.ESSMin},
		{"convergence.ess_warn", c.Convergence.ESSWarn},
		{"evaluation.threshold", c.Evaluation.Threshold},
	}
}

// Fingerprint hashes every setting that influences the fitted model and its
// evaluation. Two configs with the same fingerprint produce the same
// artifact for the same dataset. Worker count is excluded: it changes
// scheduling, not results.
func (c *Config) Fingerprint() (string, error) {
	spec := *c
	spec.Evaluation.Workers = 0
	data, err := json.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("config fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
