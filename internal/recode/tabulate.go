package recode

import "marstat/internal/config"

// LevelCount summarises one factor level in the cleaned data.
type LevelCount struct {
	Factor    string  `json:"factor"`
	Level     string  `json:"level"`
	Reference bool    `json:"reference"`
	N         int     `json:"n"`
	Positive  int     `json:"positive"`
	Rate      float64 `json:"rate"` // share with outcome 1
}

// Tabulate counts observations and outcome-1 rates per configured level,
// in configured order. Levels with no observations are reported with N=0.
func Tabulate(obs []Observation, pop, income config.Factor) []LevelCount {
	var out []LevelCount
	for _, fc := range []struct {
		name  string
		f     config.Factor
		value func(Observation) string
	}{
		{PopCenterName, pop, func(o Observation) string { return o.PopCenter }},
		{IncomeName, income, func(o Observation) string { return o.Income }},
	} {
		idx := make(map[string]int, len(fc.f.Levels))
		for _, l := range fc.f.Levels {
			idx[l] = len(out)
			out = append(out, LevelCount{Factor: fc.name, Level: l, Reference: l == fc.f.Reference})
		}
		for _, o := range obs {
			j, ok := idx[fc.value(o)]
			if !ok {
				continue
			}
			out[j].N++
			out[j].Positive += o.Outcome
		}
	}
	for i := range out {
		if out[i].N > 0 {
			out[i].Rate = float64(out[i].Positive) / float64(out[i].N)
		}
	}
	return out
}
