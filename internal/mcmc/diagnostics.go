package mcmc

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ParamDiagnostics holds the convergence statistics of one parameter.
type ParamDiagnostics struct {
	Name string  `json:"name"`
	Rhat float64 `json:"rhat"`
	ESS  float64 `json:"ess"`
}

// Diagnostics summarises a sampling run.
type Diagnostics struct {
	Params      []ParamDiagnostics `json:"params"`
	Divergences int                `json:"divergences"`
	AcceptRate  []float64          `json:"accept_rate"`
	StepSize    []float64          `json:"step_size"`
}

// Diagnose computes split-R̂ and ESS for every parameter of res.
func Diagnose(names []string, res *Result) Diagnostics {
	var d Diagnostics
	for j, name := range names {
		chains := res.Param(j)
		d.Params = append(d.Params, ParamDiagnostics{
			Name: name,
			Rhat: SplitRhat(chains),
			ESS:  ESS(splitChains(chains)),
		})
	}
	for _, s := range res.Stats {
		d.Divergences += s.Divergences
		d.AcceptRate = append(d.AcceptRate, s.AcceptRate)
		d.StepSize = append(d.StepSize, s.StepSize)
	}
	return d
}

// splitChains halves every chain, dropping the middle draw of odd-length
// chains, so within-chain drift shows up as between-chain disagreement.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		h := len(c) / 2
		out = append(out, c[:h], c[len(c)-h:])
	}
	return out
}

// SplitRhat is the potential scale reduction factor over split chains.
// Identical constant chains give 1; constant chains that disagree give +Inf.
func SplitRhat(chains [][]float64) float64 {
	split := splitChains(chains)
	m := len(split)
	if m < 2 || len(split[0]) < 2 {
		return math.NaN()
	}
	n := float64(len(split[0]))

	means := make([]float64, m)
	w := 0.0
	for i, c := range split {
		mean, variance := stat.MeanVariance(c, nil)
		means[i] = mean
		w += variance
	}
	w /= float64(m)
	b := n * stat.Variance(means, nil)

	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// ESS is the multi-chain effective sample size using Geyer's initial
// monotone sequence over the combined autocorrelation estimate.
// Chains must have equal length.
func ESS(chains [][]float64) float64 {
	m := len(chains)
	if m == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	n := len(chains[0])

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	varPlus := w * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return math.NaN()
	}

	// mean over chains of the biased lag-t autocovariance
	acov := func(t int) float64 {
		s := 0.0
		for i, c := range chains {
			mu := means[i]
			a := 0.0
			for k := 0; k+t < n; k++ {
				a += (c[k] - mu) * (c[k+t] - mu)
			}
			s += a / float64(n)
		}
		return s / float64(m)
	}
	rho := func(t int) float64 { return 1 - (w-acov(t))/varPlus }

	rhoHat := make([]float64, n)
	rhoHat[0] = 1
	even, odd := 1.0, rho(1)
	rhoHat[1] = odd
	t := 1
	for t < n-5 && even+odd > 0 {
		even, odd = rho(t+1), rho(t+2)
		if even+odd >= 0 {
			rhoHat[t+1], rhoHat[t+2] = even, odd
		}
		t += 2
	}
	maxT := t
	if even > 0 && maxT+1 < n {
		rhoHat[maxT+1] = even
	}
	// enforce a monotone sequence of pair sums
	for t = 1; t <= maxT-3; t += 2 {
		if rhoHat[t+1]+rhoHat[t+2] > rhoHat[t-1]+rhoHat[t] {
			rhoHat[t+1] = (rhoHat[t-1] + rhoHat[t]) / 2
			rhoHat[t+2] = rhoHat[t+1]
		}
	}

	total := float64(m * n)
	tau := -1.0
	for k := 0; k < maxT; k++ {
		tau += 2 * rhoHat[k]
	}
	if maxT+1 < n {
		tau += rhoHat[maxT+1]
	}
	tau = math.Max(tau, 1/math.Log10(total))
	return total / tau
}

// Check is one diagnostic compared against its threshold.
type Check struct {
	Param     string  `json:"param"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

func (c Check) String() string {
	op := "≤"
	if c.Metric == "ess" {
		op = "≥"
	}
	return fmt.Sprintf("%s %s = %.3f (want %s %.3f)", c.Param, c.Metric, c.Value, op, c.Threshold)
}

// ConvergenceError is returned when any diagnostic crosses a fatal bound.
type ConvergenceError struct {
	Failures []Check
}

func (e *ConvergenceError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "sampler did not converge: " + strings.Join(parts, "; ")
}

// Policy holds fatal and warning thresholds for R̂ and ESS.
type Policy struct {
	RhatMax  float64
	RhatWarn float64
	ESSMin   float64
	ESSWarn  float64
}

// Evaluate returns the checks that crossed a warning bound, and a
// *ConvergenceError when any crossed a fatal bound. NaN statistics are
// fatal. Divergent transitions are a warning.
func (p Policy) Evaluate(d Diagnostics) ([]Check, error) {
	var warnings, failures []Check
	for _, pd := range d.Params {
		rhat := Check{Param: pd.Name, Metric: "rhat", Value: pd.Rhat}
		switch {
		case math.IsNaN(pd.Rhat) || pd.Rhat > p.RhatMax:
			rhat.Threshold = p.RhatMax
			failures = append(failures, rhat)
		case pd.Rhat > p.RhatWarn:
			rhat.Threshold = p.RhatWarn
			warnings = append(warnings, rhat)
		}
		ess := Check{Param: pd.Name, Metric: "ess", Value: pd.ESS}
		switch {
		case math.IsNaN(pd.ESS) || pd.ESS < p.ESSMin:
			ess.Threshold = p.ESSMin
			failures = append(failures, ess)
		case pd.ESS < p.ESSWarn:
			ess.Threshold = p.ESSWarn
			warnings = append(warnings, ess)
		}
	}
	if d.Divergences > 0 {
		warnings = append(warnings, Check{Param: "*", Metric: "divergences", Value: float64(d.Divergences)})
	}
	if len(failures) > 0 {
		return warnings, &ConvergenceError{Failures: failures}
	}
	return warnings, nil
}
