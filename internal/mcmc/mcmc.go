// Package mcmc draws posterior samples from a differentiable log density.
//
// The sampler is Hamiltonian Monte Carlo run in a whitened space: when the
// target exposes its curvature, warm-up starts from a Newton–Raphson mode
// and the Cholesky factor of the Laplace covariance, so the chains see an
// approximately standard-normal density. Step size is tuned during warm-up
// by dual averaging. Chains are independent and run concurrently; each has
// its own random stream derived from the seed, so results do not depend on
// scheduling.
package mcmc

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrConfig is wrapped by sampler configuration errors.
var ErrConfig = errors.New("invalid sampler config")

// Target is an unnormalised log density over R^Dim.
// Implementations must be safe for concurrent use.
type Target interface {
	Dim() int
	// LogDensityGrad returns the log density at x and writes its gradient
	// into grad (len Dim).
	LogDensityGrad(x, grad []float64) float64
}

// Curvature is implemented by targets that can report the negative Hessian
// of the log density. The sampler uses it to whiten the parameter space.
type Curvature interface {
	NegHessian(x []float64, dst *mat.SymDense)
}

// Config controls one sampling run.
type Config struct {
	Chains int
	Warmup int
	Draws  int
	Seed   uint64
	// TargetAccept is the dual-averaging acceptance target (Stan's delta).
	TargetAccept float64
}

// Validate reports configuration errors wrapped in ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.Chains < 1:
		return fmt.Errorf("%w: chains = %d", ErrConfig, c.Chains)
	case c.Warmup < 1:
		return fmt.Errorf("%w: warmup = %d", ErrConfig, c.Warmup)
	case c.Draws < 4:
		return fmt.Errorf("%w: draws = %d, need at least 4 for split diagnostics", ErrConfig, c.Draws)
	case c.TargetAccept <= 0 || c.TargetAccept >= 1:
		return fmt.Errorf("%w: target accept %v outside (0, 1)", ErrConfig, c.TargetAccept)
	}
	return nil
}

// ChainStats describes one chain's post-warm-up behaviour.
type ChainStats struct {
	StepSize      float64 `json:"step_size"`
	AcceptRate    float64 `json:"accept_rate"`
	Divergences   int     `json:"divergences"`
	LeapfrogSteps int     `json:"leapfrog_steps"`
}

// Result holds post-warm-up draws indexed [chain][draw][param].
type Result struct {
	Draws [][][]float64 `json:"draws"`
	Stats []ChainStats  `json:"stats"`
	// Mode is the Laplace centre used for whitening (zero when the target
	// has no curvature).
	Mode []float64 `json:"mode"`
}

// Param returns the draws of parameter j, one slice per chain.
func (r *Result) Param(j int) [][]float64 {
	out := make([][]float64, len(r.Draws))
	for c, chain := range r.Draws {
		out[c] = make([]float64, len(chain))
		for i, d := range chain {
			out[c][i] = d[j]
		}
	}
	return out
}

// Sampler produces posterior draws for a target.
type Sampler interface {
	Sample(ctx context.Context, t Target, cfg Config) (*Result, error)
}
