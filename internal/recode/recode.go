// Package recode turns loaded survey records into model-ready observations:
// age bounds, missing-value drop, the derived binary outcome, label aliases
// and level validation for the categorical predictors.
package recode

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"marstat/internal/config"
	"marstat/internal/dataset"
	"marstat/internal/logging"
)

var (
	// ErrEmptyDataset means filtering left no rows to fit.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrUnknownLevel means a categorical value is not one of the configured
	// levels of its factor.
	ErrUnknownLevel = errors.New("unknown factor level")
)

// Observation is a cleaned record with its derived outcome. Income and
// PopCenter hold aliased labels that are guaranteed to be configured levels.
type Observation struct {
	Age           int
	MaritalStatus string
	Income        string
	PopCenter     string
	// Outcome is 0 when MaritalStatus is the configured negative level
	// ("Single, never married"), 1 otherwise.
	Outcome int
}

// Stats counts what each filter step removed.
type Stats struct {
	RowsIn         int `json:"rows_in"`
	OutOfBounds    int `json:"out_of_bounds"`
	MissingDropped int `json:"missing_dropped"`
	RowsOut        int `json:"rows_out"`
}

// Rules is the subset of config the recoder applies.
type Rules struct {
	AgeMin, AgeMax int
	MissingValues  []string
	NegativeLevel  string
	PopCenter      config.Factor
	Income         config.Factor
}

// RulesFromConfig extracts recoding rules from a run config.
func RulesFromConfig(c *config.Config) Rules {
	return Rules{
		AgeMin:        c.Filter.AgeMin,
		AgeMax:        c.Filter.AgeMax,
		MissingValues: c.MissingValues,
		NegativeLevel: c.Outcome.NegativeLevel,
		PopCenter:     c.Factors.PopCenter,
		Income:        c.Factors.Income,
	}
}

func (r Rules) missing(v string) bool {
	return slices.Contains(r.MissingValues, strings.TrimSpace(v))
}

// Outcome derives the binary outcome from a marital status label.
func (r Rules) Outcome(maritalStatus string) int {
	if maritalStatus == r.NegativeLevel {
		return 0
	}
	return 1
}

// Clean applies, in order: the inclusive age bounds (a missing age fails
// them), the missing-value drop over the remaining retained columns, the
// outcome derivation, factor aliases and the level check. Input records are
// not modified.
func Clean(tbl *dataset.Table, r Rules) ([]Observation, Stats, error) {
	logger := logging.New("recode")
	st := Stats{RowsIn: tbl.Len()}

	out := make([]Observation, 0, tbl.Len())
	for i, rec := range tbl.Records {
		if rec.AgeMissing {
			st.MissingDropped++
			continue
		}
		if rec.Age < r.AgeMin || rec.Age > r.AgeMax {
			st.OutOfBounds++
			continue
		}
		if r.missing(rec.MaritalStatus) || r.missing(rec.Income) || r.missing(rec.PopCenter) {
			st.MissingDropped++
			continue
		}
		pop := alias(r.PopCenter, rec.PopCenter)
		if !slices.Contains(r.PopCenter.Levels, pop) {
			return nil, st, fmt.Errorf("%w: row %d: pop_center %q", ErrUnknownLevel, i+1, pop)
		}
		inc := alias(r.Income, rec.Income)
		if !slices.Contains(r.Income.Levels, inc) {
			return nil, st, fmt.Errorf("%w: row %d: income %q", ErrUnknownLevel, i+1, inc)
		}
		out = append(out, Observation{
			Age:           rec.Age,
			MaritalStatus: rec.MaritalStatus,
			Income:        inc,
			PopCenter:     pop,
			Outcome:       r.Outcome(rec.MaritalStatus),
		})
	}
	st.RowsOut = len(out)

	logger.Info("records cleaned",
		"rows_in", st.RowsIn, "out_of_bounds", st.OutOfBounds,
		"missing_dropped", st.MissingDropped, "rows_out", st.RowsOut)

	if len(out) == 0 {
		return nil, st, fmt.Errorf("%w: %d rows in, %d outside ages [%d, %d], %d with missing values",
			ErrEmptyDataset, st.RowsIn, st.OutOfBounds, r.AgeMin, r.AgeMax, st.MissingDropped)
	}
	return out, st, nil
}

func alias(f config.Factor, label string) string {
	label = strings.TrimSpace(label)
	if short, ok := f.Aliases[label]; ok {
		return short
	}
	return label
}
