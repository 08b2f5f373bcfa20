// Package model fits the Bayesian logistic regression of ever-married status
// on age, population centre and income, and summarises its posterior.
package model

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"marstat/internal/logging"
	"marstat/internal/mcmc"
)

// Interval bounds of the reported credible interval.
const (
	LowerQuantile = 0.025
	UpperQuantile = 0.975
)

// WarningKind classifies a non-fatal fit diagnostic.
type WarningKind string

const (
	KindConvergence WarningKind = "convergence"
	KindSeparation  WarningKind = "separation"
)

// Warning is a diagnostic that did not abort the fit.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string { return string(w.Kind) + ": " + w.Message }

// Spec is everything besides the data that determines a fit.
type Spec struct {
	Prior   Prior
	Sampler mcmc.Config
	Policy  mcmc.Policy
}

// Coefficient summarises the marginal posterior of one coefficient.
type Coefficient struct {
	Name  string  `json:"name"`
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Rhat  float64 `json:"rhat"`
	ESS   float64 `json:"ess"`
}

// Posterior is a completed fit. It is read-only once returned.
type Posterior struct {
	Names        []string          `json:"names"`
	Coefficients []Coefficient     `json:"coefficients"`
	Diagnostics  mcmc.Diagnostics  `json:"diagnostics"`
	Warnings     []Warning         `json:"warnings,omitempty"`
	Prior        Prior             `json:"prior"`
	NTrain       int               `json:"n_train"`
	Draws        [][][]float64     `json:"draws"` // [chain][draw][coefficient]
	Chains       []mcmc.ChainStats `json:"chains"`
}

// Fit samples the posterior of a logistic regression on design x (first
// column the intercept) and 0/1 outcomes y. Complete separation and failed
// convergence are errors; quasi-separation and marginal diagnostics are
// recorded as warnings.
func Fit(ctx context.Context, s mcmc.Sampler, x *mat.Dense, y []float64, names []string, spec Spec) (*Posterior, error) {
	logger := logging.New("model")
	n, d := x.Dims()
	if n != len(y) || d != len(names) {
		return nil, fmt.Errorf("fit: design is %d×%d but have %d outcomes and %d names", n, d, len(y), len(names))
	}
	if n == 0 {
		return nil, fmt.Errorf("fit: no rows")
	}

	warnings, err := CheckSeparation(x, y, names)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	res, err := s.Sample(ctx, NewLogistic(x, y, spec.Prior), spec.Sampler)
	if err != nil {
		return nil, fmt.Errorf("fit: sample: %w", err)
	}
	diag := mcmc.Diagnose(names, res)
	checks, err := spec.Policy.Evaluate(diag)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	for _, c := range checks {
		warnings = append(warnings, Warning{Kind: KindConvergence, Message: c.String()})
	}
	for _, w := range warnings {
		logger.Warn("fit warning", "kind", w.Kind, "message", w.Message)
	}

	p := &Posterior{
		Names:       names,
		Diagnostics: diag,
		Warnings:    warnings,
		Prior:       spec.Prior,
		NTrain:      n,
		Draws:       res.Draws,
		Chains:      res.Stats,
	}
	p.Coefficients = make([]Coefficient, d)
	for j, name := range names {
		p.Coefficients[j] = summarise(name, p.Samples(j))
		p.Coefficients[j].Rhat = diag.Params[j].Rhat
		p.Coefficients[j].ESS = diag.Params[j].ESS
	}
	logger.Info("posterior sampled", "rows", n, "coefficients", d,
		"chains", len(res.Draws), "divergences", diag.Divergences, "warnings", len(warnings))
	return p, nil
}

func summarise(name string, draws []float64) Coefficient {
	mean, sd := stat.MeanStdDev(draws, nil)
	sorted := slices.Clone(draws)
	slices.Sort(sorted)
	return Coefficient{
		Name:  name,
		Mean:  mean,
		SD:    sd,
		Lower: stat.Quantile(LowerQuantile, stat.Empirical, sorted, nil),
		Upper: stat.Quantile(UpperQuantile, stat.Empirical, sorted, nil),
	}
}

// Trace returns the draws of coefficient j, one slice per chain.
func (p *Posterior) Trace(j int) [][]float64 {
	out := make([][]float64, len(p.Draws))
	for c, chain := range p.Draws {
		out[c] = make([]float64, len(chain))
		for i, d := range chain {
			out[c][i] = d[j]
		}
	}
	return out
}

// Samples returns the pooled draws of coefficient j across chains.
func (p *Posterior) Samples(j int) []float64 {
	var out []float64
	for _, c := range p.Trace(j) {
		out = append(out, c...)
	}
	return out
}

// Predict returns the posterior-mean probability of outcome 1 for every
// row of x, averaging σ(x·β) over all draws.
func (p *Posterior) Predict(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	out := make([]float64, n)
	total := 0
	for _, chain := range p.Draws {
		for _, beta := range chain {
			for i := 0; i < n; i++ {
				out[i] += sigmoid(floats.Dot(x.RawRowView(i), beta))
			}
			total++
		}
	}
	if total > 0 {
		floats.Scale(1/float64(total), out)
	}
	return out
}

// HasWarnings reports whether any warning of kind k was recorded.
func (p *Posterior) HasWarnings(k WarningKind) bool {
	return slices.ContainsFunc(p.Warnings, func(w Warning) bool { return w.Kind == k })
}
