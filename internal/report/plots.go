package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"marstat/internal/display"
	"marstat/internal/evaluate"
	"marstat/internal/model"
	"marstat/internal/recode"
)

// Figure is a rendered image linked from the report.
type Figure struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

var (
	traceWidth  = 8 * vg.Inch
	traceHeight = 3 * vg.Inch
	squareSide  = 5 * vg.Inch
)

// TracePlot draws one line per chain of a coefficient's draws.
func TracePlot(tr evaluate.Trace, path string) error {
	p := plot.New()
	p.Title.Text = "Trace: " + display.Coefficient(tr.Name)
	p.X.Label.Text = "Iteration (post-warm-up)"
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	for c, chain := range tr.Chains {
		pts := make(plotter.XYs, len(chain))
		for i, v := range chain {
			pts[i].X = float64(i + 1)
			pts[i].Y = v
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("trace %s chain %d: %w", tr.Name, c, err)
		}
		l.LineStyle.Color = plotutil.Color(c)
		l.LineStyle.Width = vg.Points(0.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("chain %d", c+1), l)
	}
	p.Legend.Top = true
	return save(p, traceWidth, traceHeight, path)
}

// intervals is the posterior mean of each coefficient with its 95% credible
// interval as an asymmetric horizontal error bar.
type intervals struct {
	plotter.XYs
	plotter.XErrors
}

// IntervalPlot draws posterior means and 95% credible intervals, one row
// per coefficient, with a reference line at zero. The intercept is left
// out so the remaining effects share a readable scale.
func IntervalPlot(coefs []model.Coefficient, path string) error {
	var shown []model.Coefficient
	for _, c := range coefs {
		if c.Name != recode.InterceptName {
			shown = append(shown, c)
		}
	}
	if len(shown) == 0 {
		return fmt.Errorf("interval plot: no coefficients")
	}

	p := plot.New()
	p.Title.Text = "Posterior means and 95% credible intervals"
	p.X.Label.Text = "Log-odds"
	p.Add(plotter.NewGrid())

	data := intervals{XYs: make(plotter.XYs, len(shown)), XErrors: make(plotter.XErrors, len(shown))}
	labels := make([]string, len(shown))
	for i, c := range shown {
		data.XYs[i].X, data.XYs[i].Y = c.Mean, float64(i)
		data.XErrors[i].Low = c.Mean - c.Lower
		data.XErrors[i].High = c.Upper - c.Mean
		labels[i] = display.Coefficient(c.Name)
	}
	bars, err := plotter.NewXErrorBars(data)
	if err != nil {
		return fmt.Errorf("interval plot: %w", err)
	}
	means, err := plotter.NewScatter(data.XYs)
	if err != nil {
		return fmt.Errorf("interval plot: %w", err)
	}
	ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: -0.5}, {X: 0, Y: float64(len(shown)) - 0.5}})
	if err != nil {
		return fmt.Errorf("interval plot: %w", err)
	}
	ref.LineStyle.Color = color.Gray{Y: 128}
	ref.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}

	p.Add(ref, bars, means)
	p.NominalY(labels...)
	return save(p, squareSide+3*vg.Inch, vg.Length(len(shown))*0.45*vg.Inch+vg.Inch, path)
}

// ROCPlot draws the ROC curve against the chance diagonal.
func ROCPlot(roc evaluate.ROC, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC on held-out rows (AUC %.3f)", roc.AUC)
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(roc.FPR))
	for i := range roc.FPR {
		pts[i].X, pts[i].Y = roc.FPR[i], roc.TPR[i]
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("roc plot: %w", err)
	}
	curve.LineStyle.Color = plotutil.Color(0)
	curve.LineStyle.Width = vg.Points(1.5)

	chance := plotter.NewFunction(func(x float64) float64 { return x })
	chance.LineStyle.Color = color.Gray{Y: 128}
	chance.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}

	p.Add(chance, curve)
	p.Legend.Add("model", curve)
	p.Legend.Add("chance", chance)
	p.Legend.Left = false
	p.Legend.Top = false
	return save(p, squareSide, squareSide, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
