package mcmc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"marstat/internal/logging"
)

// Dual-averaging constants (Hoffman & Gelman 2014, as used by Stan).
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// divergenceThreshold is the energy error beyond which a trajectory is
// counted as divergent and rejected.
const divergenceThreshold = 1000.0

// HMC is a Hamiltonian Monte Carlo sampler with jittered integration time.
type HMC struct {
	// MaxSteps caps leapfrog steps per iteration. Zero means 256.
	MaxSteps int
	// InitRadius bounds the uniform initialisation in whitened space.
	// Zero means 2.
	InitRadius float64
}

// NewHMC returns an HMC sampler with default settings.
func NewHMC() *HMC { return &HMC{} }

// Sample runs cfg.Chains chains concurrently. The returned draws are in the
// target's own parameterisation.
func (h *HMC) Sample(ctx context.Context, t Target, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New("sampler")

	space, err := newWhitening(t)
	if err != nil {
		return nil, err
	}
	logger.Debug("whitening ready", "dim", space.dim, "laplace", space.laplace)

	res := &Result{
		Draws: make([][][]float64, cfg.Chains),
		Stats: make([]ChainStats, cfg.Chains),
		Mode:  append([]float64(nil), space.mode...),
	}
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.Chains; c++ {
		g.Go(func() error {
			ch := h.newChain(space, cfg, c)
			draws, stats, err := ch.run(gctx)
			if err != nil {
				return fmt.Errorf("chain %d: %w", c, err)
			}
			res.Draws[c] = draws
			res.Stats[c] = stats
			logger.Debug("chain done", "chain", c, "step_size", stats.StepSize,
				"accept_rate", stats.AcceptRate, "divergences", stats.Divergences)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// whitening maps z ∈ R^d to x = mode + L·z. It is read-only after
// construction and shared by all chains.
type whitening struct {
	target  Target
	dim     int
	mode    []float64
	l       []float64 // row-major lower triangle, d×d
	laplace bool
}

func newWhitening(t Target) (*whitening, error) {
	d := t.Dim()
	w := &whitening{target: t, dim: d, mode: make([]float64, d), l: make([]float64, d*d)}
	c, ok := t.(Curvature)
	if !ok {
		for i := 0; i < d; i++ {
			w.l[i*d+i] = 1
		}
		return w, nil
	}
	lap, err := FindLaplace(t, c, make([]float64, d))
	if err != nil {
		return nil, fmt.Errorf("laplace warm start: %w", err)
	}
	copy(w.mode, lap.Mode)
	for i := 0; i < d; i++ {
		for j := 0; j <= i; j++ {
			w.l[i*d+j] = lap.L.At(i, j)
		}
	}
	w.laplace = true
	return w, nil
}

// toX writes mode + L·z into x.
func (w *whitening) toX(z, x []float64) {
	d := w.dim
	for i := 0; i < d; i++ {
		s := w.mode[i]
		row := w.l[i*d : i*d+i+1]
		for j, lij := range row {
			s += lij * z[j]
		}
		x[i] = s
	}
}

// chain holds per-chain state and scratch buffers.
type chain struct {
	w        *whitening
	cfg      Config
	rng      *rand.Rand
	maxSteps int
	radius   float64

	x, gx []float64 // scratch in target space
}

func (h *HMC) newChain(w *whitening, cfg Config, id int) *chain {
	maxSteps := h.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 256
	}
	radius := h.InitRadius
	if radius <= 0 {
		radius = 2
	}
	return &chain{
		w:        w,
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(cfg.Seed, uint64(id)+1)),
		maxSteps: maxSteps,
		radius:   radius,
		x:        make([]float64, w.dim),
		gx:       make([]float64, w.dim),
	}
}

// logp evaluates the whitened log density at z and writes its gradient
// Lᵀ·∇x into gz.
func (c *chain) logp(z, gz []float64) float64 {
	d := c.w.dim
	c.w.toX(z, c.x)
	lp := c.w.target.LogDensityGrad(c.x, c.gx)
	for j := 0; j < d; j++ {
		s := 0.0
		for i := j; i < d; i++ {
			s += c.w.l[i*d+j] * c.gx[i]
		}
		gz[j] = s
	}
	return lp
}

type state struct {
	z, g []float64
	lp   float64
}

func (c *chain) newState() state {
	d := c.w.dim
	return state{z: make([]float64, d), g: make([]float64, d)}
}

func (s *state) copyFrom(o state) {
	copy(s.z, o.z)
	copy(s.g, o.g)
	s.lp = o.lp
}

// trajectory integrates n leapfrog steps of size eps from cur with momentum
// p (modified in place), leaving the end point in prop. It returns the
// acceptance probability and whether the trajectory diverged.
func (c *chain) trajectory(cur state, prop *state, p []float64, eps float64, n int) (float64, bool) {
	h0 := -cur.lp + 0.5*floats.Dot(p, p)
	prop.copyFrom(cur)
	for s := 0; s < n; s++ {
		floats.AddScaled(p, eps/2, prop.g)
		floats.AddScaled(prop.z, eps, p)
		prop.lp = c.logp(prop.z, prop.g)
		floats.AddScaled(p, eps/2, prop.g)
		if math.IsNaN(prop.lp) || math.IsInf(prop.lp, 0) {
			return 0, true
		}
	}
	h1 := -prop.lp + 0.5*floats.Dot(p, p)
	dh := h1 - h0
	if math.IsNaN(dh) || dh > divergenceThreshold {
		return 0, true
	}
	return math.Min(1, math.Exp(-dh)), false
}

func (c *chain) momentum(p []float64) {
	for i := range p {
		p[i] = c.rng.NormFloat64()
	}
}

// initialStepSize doubles or halves eps until the one-step acceptance
// probability crosses 0.5.
func (c *chain) initialStepSize(cur state) float64 {
	eps := 1.0
	p := make([]float64, c.w.dim)
	prop := c.newState()
	c.momentum(p)
	a, _ := c.trajectory(cur, &prop, append([]float64(nil), p...), eps, 1)
	dir := -1.0
	if a > 0.5 {
		dir = 1
	}
	for k := 0; k < 50; k++ {
		if (dir > 0 && a <= 0.5) || (dir < 0 && a > 0.5) {
			break
		}
		eps *= math.Pow(2, dir)
		a, _ = c.trajectory(cur, &prop, append([]float64(nil), p...), eps, 1)
	}
	return eps
}

func (c *chain) run(ctx context.Context) ([][]float64, ChainStats, error) {
	d := c.w.dim
	cur := c.newState()
	for i := range cur.z {
		cur.z[i] = c.radius * (2*c.rng.Float64() - 1)
	}
	cur.lp = c.logp(cur.z, cur.g)
	if math.IsNaN(cur.lp) || math.IsInf(cur.lp, 0) {
		return nil, ChainStats{}, fmt.Errorf("log density not finite at initial point")
	}

	eps := c.initialStepSize(cur)
	mu := math.Log(10 * eps)
	hbar, logEpsBar := 0.0, 0.0

	prop := c.newState()
	p := make([]float64, d)
	draws := make([][]float64, 0, c.cfg.Draws)
	var stats ChainStats
	acceptSum := 0.0

	total := c.cfg.Warmup + c.cfg.Draws
	for it := 0; it < total; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, ChainStats{}, err
			}
		}
		warm := it < c.cfg.Warmup

		// integration time jittered around π/2, a quarter period of a
		// standard normal
		T := math.Pi / 2 * (0.8 + 0.4*c.rng.Float64())
		n := int(math.Ceil(T / eps))
		n = max(1, min(n, c.maxSteps))

		c.momentum(p)
		a, divergent := c.trajectory(cur, &prop, p, eps, n)
		if c.rng.Float64() < a {
			cur.copyFrom(prop)
		}

		if warm {
			m := float64(it + 1)
			eta := 1 / (m + daT0)
			hbar = (1-eta)*hbar + eta*(c.cfg.TargetAccept-a)
			logEps := mu - math.Sqrt(m)/daGamma*hbar
			xeta := math.Pow(m, -daKappa)
			logEpsBar = xeta*logEps + (1-xeta)*logEpsBar
			eps = math.Exp(logEps)
			if it == c.cfg.Warmup-1 {
				eps = math.Exp(logEpsBar)
			}
			continue
		}

		acceptSum += a
		stats.LeapfrogSteps += n
		if divergent {
			stats.Divergences++
		}
		x := make([]float64, d)
		c.w.toX(cur.z, x)
		draws = append(draws, x)
	}
	stats.StepSize = eps
	stats.AcceptRate = acceptSum / float64(c.cfg.Draws)
	return draws, stats, nil
}
