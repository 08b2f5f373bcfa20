package mcmc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNotConcave means the negative Hessian was not positive definite, so no
// Laplace approximation exists at the current point.
var ErrNotConcave = errors.New("negative Hessian not positive definite")

// Laplace is a Gaussian approximation centred at the posterior mode.
type Laplace struct {
	Mode []float64
	// Cov is the inverse negative Hessian at Mode.
	Cov *mat.SymDense
	// L is the lower Cholesky factor of Cov.
	L          *mat.TriDense
	Iterations int
	Converged  bool
}

const (
	newtonMaxIter = 100
	newtonTol     = 1e-8
)

// FindLaplace runs damped Newton–Raphson from x0 to the mode of t, then
// factors the covariance there. Not converging within the iteration budget
// is reported through Converged rather than an error; the last iterate is
// still a usable whitening centre.
func FindLaplace(t Target, c Curvature, x0 []float64) (*Laplace, error) {
	d := t.Dim()
	x := append([]float64(nil), x0...)
	grad := make([]float64, d)
	trial := make([]float64, d)
	trialGrad := make([]float64, d)
	h := mat.NewSymDense(d, nil)
	step := mat.NewVecDense(d, nil)

	lp := t.LogDensityGrad(x, grad)
	lap := &Laplace{}
	for lap.Iterations = 0; lap.Iterations < newtonMaxIter; lap.Iterations++ {
		c.NegHessian(x, h)
		var chol mat.Cholesky
		if ok := chol.Factorize(h); !ok {
			return nil, fmt.Errorf("newton iteration %d: %w", lap.Iterations, ErrNotConcave)
		}
		if err := chol.SolveVecTo(step, mat.NewVecDense(d, grad)); err != nil {
			return nil, fmt.Errorf("newton iteration %d: solve: %w", lap.Iterations, err)
		}
		s := step.RawVector().Data

		// halve the step until the log density does not decrease
		scale := 1.0
		var trialLP float64
		for k := 0; k < 30; k++ {
			copy(trial, x)
			floats.AddScaled(trial, scale, s)
			trialLP = t.LogDensityGrad(trial, trialGrad)
			if !math.IsNaN(trialLP) && trialLP >= lp-1e-12 {
				break
			}
			scale /= 2
		}
		copy(x, trial)
		copy(grad, trialGrad)
		lp = trialLP

		if scale*floats.Norm(s, math.Inf(1)) < newtonTol {
			lap.Converged = true
			break
		}
	}

	c.NegHessian(x, h)
	var chol mat.Cholesky
	if ok := chol.Factorize(h); !ok {
		return nil, fmt.Errorf("laplace at mode: %w", ErrNotConcave)
	}
	cov := mat.NewSymDense(d, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, fmt.Errorf("laplace covariance: %w", err)
	}
	var covChol mat.Cholesky
	if ok := covChol.Factorize(cov); !ok {
		return nil, fmt.Errorf("laplace covariance factor: %w", ErrNotConcave)
	}
	l := mat.NewTriDense(d, mat.Lower, nil)
	covChol.LTo(l)

	lap.Mode = x
	lap.Cov = cov
	lap.L = l
	return lap, nil
}
