package model

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"marstat/internal/mcmc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNames = []string{"(Intercept)", "age", "pop_center:Rural areas"}

// simulate draws n rows of (1, age, rural) and outcomes from beta.
func simulate(n int, beta []float64, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, 0))
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := []float64{1, float64(30 + rng.IntN(41)), 0}
		if rng.Float64() < 0.4 {
			row[2] = 1
		}
		x.SetRow(i, row)
		eta := beta[0] + beta[1]*row[1] + beta[2]*row[2]
		if rng.Float64() < sigmoid(eta) {
			y[i] = 1
		}
	}
	return x, y
}

func testSpec() Spec {
	return Spec{
		Prior:   Prior{Mean: 0, SD: 10},
		Sampler: mcmc.Config{Chains: 2, Warmup: 300, Draws: 300, Seed: 853, TargetAccept: 0.8},
		Policy:  mcmc.Policy{RhatMax: 1.1, RhatWarn: 1.01, ESSMin: 100, ESSWarn: 400},
	}
}

func TestLogistic_GradientMatchesFiniteDifference(t *testing.T) {
	x, y := simulate(200, []float64{-3, 0.08, -0.7}, 1)
	l := NewLogistic(x, y, Prior{Mean: 0.5, SD: 2})
	beta := []float64{-2.5, 0.05, 0.3}
	grad := make([]float64, 3)
	l.LogDensityGrad(beta, grad)

	scratch := make([]float64, 3)
	for j := range beta {
		h := 1e-5
		up := append([]float64(nil), beta...)
		dn := append([]float64(nil), beta...)
		up[j] += h
		dn[j] -= h
		fd := (l.LogDensityGrad(up, scratch) - l.LogDensityGrad(dn, scratch)) / (2 * h)
		if math.Abs(fd-grad[j]) > 1e-4*math.Max(1, math.Abs(fd)) {
			t.Errorf("grad[%d] = %v, finite difference %v", j, grad[j], fd)
		}
	}
}

func TestLogistic_NegHessianMatchesFiniteDifference(t *testing.T) {
	x, y := simulate(200, []float64{-3, 0.08, -0.7}, 2)
	l := NewLogistic(x, y, Prior{Mean: 0, SD: 10})
	beta := []float64{-2.5, 0.05, 0.3}
	h := mat.NewSymDense(3, nil)
	l.NegHessian(beta, h)

	gu, gd := make([]float64, 3), make([]float64, 3)
	for j := range beta {
		eps := 1e-6
		up := append([]float64(nil), beta...)
		dn := append([]float64(nil), beta...)
		up[j] += eps
		dn[j] -= eps
		l.LogDensityGrad(up, gu)
		l.LogDensityGrad(dn, gd)
		for i := range beta {
			fd := -(gu[i] - gd[i]) / (2 * eps)
			if math.Abs(fd-h.At(i, j)) > 1e-3*math.Max(1, math.Abs(fd)) {
				t.Errorf("H[%d][%d] = %v, finite difference %v", i, j, h.At(i, j), fd)
			}
		}
	}
}

func TestSoftplusStable(t *testing.T) {
	for _, eta := range []float64{-800, -30, 0, 30, 800} {
		got := softplus(eta)
		if math.IsInf(got, 0) || math.IsNaN(got) {
			t.Errorf("softplus(%v) = %v", eta, got)
		}
	}
	if got := sigmoid(-800); got != 0 {
		t.Errorf("sigmoid(-800) = %v, want 0", got)
	}
	if got := sigmoid(800); got != 1 {
		t.Errorf("sigmoid(800) = %v, want 1", got)
	}
}

func TestFit_RecoversCoefficients(t *testing.T) {
	truth := []float64{-3, 0.08, -0.7}
	x, y := simulate(1500, truth, 3)

	p, err := Fit(context.Background(), mcmc.NewHMC(), x, y, testNames, testSpec())
	if err != nil {
		t.Fatal(err)
	}
	if p.NTrain != 1500 {
		t.Errorf("NTrain = %d", p.NTrain)
	}
	for j, c := range p.Coefficients {
		if c.Name != testNames[j] {
			t.Errorf("coefficient %d name = %q", j, c.Name)
		}
		if math.Abs(c.Mean-truth[j]) > 4*c.SD {
			t.Errorf("%s mean = %.3f ± %.3f, truth %.3f", c.Name, c.Mean, c.SD, truth[j])
		}
		if !(c.Lower < c.Mean && c.Mean < c.Upper) {
			t.Errorf("%s interval [%.3f, %.3f] does not contain mean %.3f", c.Name, c.Lower, c.Upper, c.Mean)
		}
		if c.Rhat > 1.1 || c.ESS < 100 {
			t.Errorf("%s rhat = %.3f ess = %.0f", c.Name, c.Rhat, c.ESS)
		}
	}
	if got := len(p.Samples(0)); got != 600 {
		t.Errorf("pooled samples = %d, want 600", got)
	}
	if got := p.Trace(1); len(got) != 2 || len(got[0]) != 300 {
		t.Errorf("trace shape = %d×%d, want 2×300", len(got), len(got[0]))
	}
}

func TestFit_ShapeMismatch(t *testing.T) {
	x, y := simulate(10, []float64{0, 0, 0}, 4)
	if _, err := Fit(context.Background(), mcmc.NewHMC(), x, y[:5], testNames, testSpec()); err == nil {
		t.Error("Fit() with short outcome vector succeeded")
	}
}

// stuckSampler returns chains parked at different constants.
type stuckSampler struct{}

func (stuckSampler) Sample(_ context.Context, t mcmc.Target, cfg mcmc.Config) (*mcmc.Result, error) {
	res := &mcmc.Result{Draws: make([][][]float64, cfg.Chains), Stats: make([]mcmc.ChainStats, cfg.Chains)}
	for c := range res.Draws {
		for i := 0; i < cfg.Draws; i++ {
			d := make([]float64, t.Dim())
			for j := range d {
				d[j] = float64(c)
			}
			res.Draws[c] = append(res.Draws[c], d)
		}
	}
	return res, nil
}

func TestFit_ConvergenceError(t *testing.T) {
	x, y := simulate(300, []float64{-3, 0.08, -0.7}, 5)
	_, err := Fit(context.Background(), stuckSampler{}, x, y, testNames, testSpec())
	var ce *mcmc.ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("Fit() error = %v, want *mcmc.ConvergenceError", err)
	}
	if len(ce.Failures) == 0 {
		t.Error("ConvergenceError has no failures")
	}
}

func TestCheckSeparation(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]float64
		y        []float64
		wantErr  bool
		wantWarn int
	}{
		{
			name: "overlapping",
			rows: [][]float64{{1, 30, 0}, {1, 40, 1}, {1, 50, 0}, {1, 60, 1}, {1, 35, 1}, {1, 45, 0}},
			y:    []float64{0, 1, 1, 0, 0, 1},
		},
		{
			name:    "constant outcome",
			rows:    [][]float64{{1, 30, 0}, {1, 40, 1}},
			y:       []float64{1, 1},
			wantErr: true,
		},
		{
			name:    "age threshold",
			rows:    [][]float64{{1, 30, 0}, {1, 35, 1}, {1, 50, 0}, {1, 60, 1}},
			y:       []float64{0, 0, 1, 1},
			wantErr: true,
		},
		{
			name:    "indicator equals outcome",
			rows:    [][]float64{{1, 30, 1}, {1, 60, 0}, {1, 50, 1}, {1, 35, 0}},
			y:       []float64{1, 0, 1, 0},
			wantErr: true,
		},
		{
			name:     "quasi separation",
			rows:     [][]float64{{1, 30, 1}, {1, 60, 1}, {1, 50, 0}, {1, 35, 0}, {1, 40, 0}},
			y:        []float64{1, 1, 0, 1, 0},
			wantWarn: 1,
		},
		{
			name:     "empty level",
			rows:     [][]float64{{1, 30, 0}, {1, 60, 0}, {1, 50, 0}, {1, 35, 0}},
			y:        []float64{1, 0, 1, 0},
			wantWarn: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := mat.NewDense(len(tt.rows), 3, nil)
			for i, r := range tt.rows {
				x.SetRow(i, r)
			}
			warns, err := CheckSeparation(x, tt.y, testNames)
			if tt.wantErr {
				if !errors.Is(err, ErrSeparation) {
					t.Fatalf("CheckSeparation() error = %v, want ErrSeparation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckSeparation() error = %v", err)
			}
			if len(warns) != tt.wantWarn {
				t.Errorf("warnings = %v, want %d", warns, tt.wantWarn)
			}
			for _, w := range warns {
				if w.Kind != KindSeparation {
					t.Errorf("warning kind = %q", w.Kind)
				}
			}
		})
	}
}

func TestFit_SeparationIsFatal(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1, 30, 0,
		1, 35, 1,
		1, 50, 0,
		1, 60, 1,
	})
	_, err := Fit(context.Background(), stuckSampler{}, x, []float64{0, 0, 1, 1}, testNames, testSpec())
	if !errors.Is(err, ErrSeparation) {
		t.Errorf("Fit() error = %v, want ErrSeparation", err)
	}
}

func TestPosterior_PredictAndSummaries(t *testing.T) {
	p := &Posterior{
		Names: []string{"(Intercept)", "age"},
		Draws: [][][]float64{
			{{0, 0}, {1, 0}},
			{{-1, 0}, {0, 0}},
		},
	}
	x := mat.NewDense(1, 2, []float64{1, 45})
	got := p.Predict(x)
	want := (sigmoid(0)*2 + sigmoid(1) + sigmoid(-1)) / 4
	if diff := cmp.Diff([]float64{want}, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Predict() mismatch (-want +got):\n%s", diff)
	}

	c := summarise("b", []float64{4, 1, 3, 2})
	if c.Mean != 2.5 {
		t.Errorf("mean = %v, want 2.5", c.Mean)
	}
	if c.Lower != 1 || c.Upper != 4 {
		t.Errorf("interval = [%v, %v], want [1, 4]", c.Lower, c.Upper)
	}
}
