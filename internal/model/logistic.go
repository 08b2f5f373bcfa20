package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Prior is an independent Normal(Mean, SD²) prior on every coefficient,
// the intercept included.
type Prior struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
}

// Logistic is the log posterior density of a logistic regression under a
// Normal prior. It holds no scratch state and is safe for concurrent use.
type Logistic struct {
	x     *mat.Dense
	y     []float64
	prior Prior
}

// NewLogistic returns the posterior density for design x and 0/1 outcomes y.
func NewLogistic(x *mat.Dense, y []float64, prior Prior) *Logistic {
	return &Logistic{x: x, y: y, prior: prior}
}

// Dim is the number of coefficients.
func (l *Logistic) Dim() int {
	_, c := l.x.Dims()
	return c
}

// LogDensityGrad returns log p(β | y) up to a constant and writes its
// gradient Xᵀ(y − σ(Xβ)) − (β − μ)/σ₀² into grad.
func (l *Logistic) LogDensityGrad(beta, grad []float64) float64 {
	n, _ := l.x.Dims()
	prec := 1 / (l.prior.SD * l.prior.SD)
	lp := 0.0
	for j, b := range beta {
		d := b - l.prior.Mean
		lp -= 0.5 * prec * d * d
		grad[j] = -prec * d
	}
	for i := 0; i < n; i++ {
		row := l.x.RawRowView(i)
		eta := floats.Dot(row, beta)
		lp += l.y[i]*eta - softplus(eta)
		floats.AddScaled(grad, l.y[i]-sigmoid(eta), row)
	}
	return lp
}

// NegHessian writes XᵀWX + I/σ₀² into dst, W = diag(p(1−p)).
func (l *Logistic) NegHessian(beta []float64, dst *mat.SymDense) {
	n, d := l.x.Dims()
	prec := 1 / (l.prior.SD * l.prior.SD)
	h := make([]float64, d*d)
	for i := 0; i < n; i++ {
		row := l.x.RawRowView(i)
		p := sigmoid(floats.Dot(row, beta))
		w := p * (1 - p)
		for a := 0; a < d; a++ {
			if row[a] == 0 {
				continue
			}
			wa := w * row[a]
			for b := a; b < d; b++ {
				h[a*d+b] += wa * row[b]
			}
		}
	}
	for a := 0; a < d; a++ {
		dst.SetSym(a, a, h[a*d+a]+prec)
		for b := a + 1; b < d; b++ {
			dst.SetSym(a, b, h[a*d+b])
		}
	}
}

func sigmoid(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}

// softplus is log(1 + e^eta) without overflow.
func softplus(eta float64) float64 {
	return math.Max(eta, 0) + math.Log1p(math.Exp(-math.Abs(eta)))
}
