package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSeparation means a predictor perfectly splits the outcomes, so the
// likelihood has no finite maximum and the posterior is driven by the prior.
var ErrSeparation = errors.New("complete separation")

// CheckSeparation inspects every non-intercept column of x. A constant
// outcome, or a column that splits the outcomes perfectly (a threshold on a
// continuous column, or an indicator equal to the outcome or its negation),
// is an ErrSeparation. An indicator whose rows all share one outcome, or
// that no row sets, yields a separation Warning.
func CheckSeparation(x *mat.Dense, y []float64, names []string) ([]Warning, error) {
	n, d := x.Dims()
	pos := 0
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return nil, fmt.Errorf("%w: all %d outcomes are %d", ErrSeparation, n, int(y[0]))
	}

	var warnings []Warning
	col := make([]float64, n)
	for j := 1; j < d; j++ {
		mat.Col(col, j, x)
		if !binary(col) {
			if thresholdSplits(col, y) {
				return nil, fmt.Errorf("%w: a threshold on %s splits the outcomes", ErrSeparation, names[j])
			}
			continue
		}
		var set, setPos int
		agree, disagree := true, true
		for i, v := range col {
			if v == 1 {
				set++
				setPos += int(y[i])
			}
			if v != y[i] {
				agree = false
			}
			if v == y[i] {
				disagree = false
			}
		}
		switch {
		case agree || disagree:
			return nil, fmt.Errorf("%w: indicator %s equals the outcome", ErrSeparation, names[j])
		case set == 0:
			warnings = append(warnings, Warning{Kind: KindSeparation,
				Message: fmt.Sprintf("%s: no rows at this level; coefficient is prior-only", names[j])})
		case setPos == 0 || setPos == set:
			warnings = append(warnings, Warning{Kind: KindSeparation,
				Message: fmt.Sprintf("%s: quasi-complete separation, all %d rows have outcome %d",
					names[j], set, min(setPos, 1))})
		}
	}
	return warnings, nil
}

func binary(col []float64) bool {
	for _, v := range col {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

// thresholdSplits reports whether the column ranges of the two outcome
// classes do not overlap.
func thresholdSplits(col, y []float64) bool {
	lo := [2]float64{math.Inf(1), math.Inf(1)}
	hi := [2]float64{math.Inf(-1), math.Inf(-1)}
	for i, v := range col {
		k := int(y[i])
		lo[k] = math.Min(lo[k], v)
		hi[k] = math.Max(hi[k], v)
	}
	return hi[0] < lo[1] || hi[1] < lo[0]
}
