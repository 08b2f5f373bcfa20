// Package report renders a completed run as a Markdown document, a
// machine-readable summary and PNG figures.
package report

import (
	"fmt"
	"slices"
	"strings"

	"marstat/internal/display"
	"marstat/internal/format"
	"marstat/internal/model"
	"marstat/internal/pipeline"
)

// Document renders the full Markdown report, linking figures in order.
// Figure paths are relative to the document.
func Document(res *pipeline.Result, figures []Figure) string {
	var b strings.Builder
	writeHeader(&b, res)
	writeData(&b, res)
	writeCoefficients(&b, res.Posterior)
	writeWarnings(&b, res.Posterior)
	writeEvaluation(&b, res)
	writeFigures(&b, figures)
	return b.String()
}

// Console renders the coefficient and evaluation tables for a terminal.
func Console(res *pipeline.Result, mode format.Mode) string {
	var b strings.Builder
	b.WriteString(coefficientTable(res.Posterior, mode, "Posterior (95% credible intervals)"))
	b.WriteString("\n")
	b.WriteString(scoreTable(res, mode, "Evaluation"))
	b.WriteString("\n")
	for _, w := range res.Posterior.Warnings {
		b.WriteString("warning: " + w.String() + "\n")
	}
	return b.String()
}

func writeHeader(b *strings.Builder, res *pipeline.Result) {
	b.WriteString("# Ever-married status by age, population centre and income\n\n")

	tbl := format.NewTable(format.Markdown)
	tbl.Header("Field", "Value")
	tbl.Row("Run", res.RunID)
	tbl.Row("Started", res.StartedAt.UTC().Format("2006-01-02 15:04 UTC"))
	tbl.Row("Dataset", fmt.Sprintf("`%s` (%s)", res.Dataset.Path, res.Dataset.Format))
	tbl.Row("Dataset SHA-256", "`"+format.Truncate(res.Dataset.Hash, 19)+"`")
	tbl.Row("Seed", res.Config.Seed)
	if res.CacheHit {
		tbl.Row("Fit", "reused from run "+res.FittedRunID)
	} else {
		tbl.Row("Fit", "fitted in this run")
	}
	tbl.Row("Stages", display.StagePath(append(slices.Clone(res.Stages), "report")))
	tbl.Row("Elapsed", format.Duration(res.Elapsed))
	b.WriteString(tbl.String())
	b.WriteString("\n\n")
}

func writeData(b *strings.Builder, res *pipeline.Result) {
	cfg := res.Config
	b.WriteString("## Data\n\n")
	b.WriteString(fmt.Sprintf("- **%d** rows loaded; **%d** outside ages %d–%d; **%d** dropped for missing values\n",
		res.Clean.RowsIn, res.Clean.OutOfBounds, cfg.Filter.AgeMin, cfg.Filter.AgeMax, res.Clean.MissingDropped))
	b.WriteString(fmt.Sprintf("- **%d** rows analysed: %d training, %d held out (%.0f/%.0f split)\n",
		res.Clean.RowsOut, res.NTrain, res.NTest, 100*cfg.Split.TrainFraction, 100*(1-cfg.Split.TrainFraction)))
	b.WriteString(fmt.Sprintf("- Outcome is 0 for \"%s\", 1 otherwise\n\n", cfg.Outcome.NegativeLevel))

	rows := format.NewTable(format.Markdown)
	rows.Header("Stage", "Rows")
	for _, rc := range res.RowCounts() {
		rows.Row(display.RowStage(rc.Stage), rc.N)
	}
	rows.RightAlignFrom(2, 2)
	b.WriteString(rows.String())
	b.WriteString("\n\n")

	tbl := format.NewTable(format.Markdown)
	tbl.Header("Factor", "Level", "Reference", "Rows", "Ever married")
	for _, l := range res.Levels {
		ref := ""
		if l.Reference {
			ref = format.BoolMark(true)
		}
		tbl.Row(display.Factor(l.Factor), l.Level, ref, l.N, format.Percent(l.Rate))
	}
	tbl.RightAlignFrom(4, 5)
	b.WriteString(tbl.String())
	b.WriteString("\n\n")
}

func coefficientTable(p *model.Posterior, mode format.Mode, title string) string {
	tbl := format.NewTable(mode)
	tbl.Title(title)
	tbl.Header("Coefficient", "Mean", "SE", "95% CI", "R̂", "ESS")
	for _, c := range p.Coefficients {
		tbl.Row(display.Coefficient(c.Name), format.Float(c.Mean, 3), format.Float(c.SD, 3),
			format.Interval(c.Lower, c.Upper, 3), format.Float(c.Rhat, 3), format.Float(c.ESS, 0))
	}
	tbl.RightAlignFrom(2, 6)
	return tbl.String() + "\n"
}

func writeCoefficients(b *strings.Builder, p *model.Posterior) {
	b.WriteString("## Posterior\n\n")
	b.WriteString(fmt.Sprintf("Logistic regression with independent Normal(%g, %g²) priors, fitted on %d rows. ",
		p.Prior.Mean, p.Prior.SD, p.NTrain))
	b.WriteString(fmt.Sprintf("%d chains × %d post-warm-up draws.\n\n", len(p.Draws), drawsPerChain(p)))
	b.WriteString(coefficientTable(p, format.Markdown, ""))
	b.WriteString("\n")

	tbl := format.NewTable(format.Markdown)
	tbl.Header("Chain", "Step size", "Acceptance", "Divergences", "Leapfrog steps")
	for i, s := range p.Chains {
		tbl.Row(i+1, format.Float(s.StepSize, 3), format.Percent(s.AcceptRate), s.Divergences, s.LeapfrogSteps)
	}
	tbl.RightAlignFrom(2, 5)
	b.WriteString(tbl.String())
	b.WriteString("\n\n")
}

func drawsPerChain(p *model.Posterior) int {
	if len(p.Draws) == 0 {
		return 0
	}
	return len(p.Draws[0])
}

func writeWarnings(b *strings.Builder, p *model.Posterior) {
	if len(p.Warnings) == 0 {
		return
	}
	b.WriteString("## Warnings\n\n")
	for _, w := range p.Warnings {
		b.WriteString(fmt.Sprintf("- **%s**: %s\n", w.Kind, w.Message))
	}
	b.WriteString("\n")
}

func scoreTable(res *pipeline.Result, mode format.Mode, title string) string {
	tbl := format.NewTable(mode)
	tbl.Title(title)
	tbl.Header("Metric", "Value")
	tbl.Row(fmt.Sprintf("CV RMSE (%d-fold, training rows)", res.CV.K), format.Float(res.CV.RMSE, 4))
	tbl.Row("Test RMSE (held-out rows)", format.Float(res.TestRMSE, 4))
	tbl.Row("Test AUC", format.Float(res.ROC.AUC, 4))
	tbl.Row(fmt.Sprintf("Test accuracy at %.2f", res.Confusion.Threshold), format.Percent(res.Confusion.Accuracy()))
	tbl.Row(display.Diagnostic("divergences"), res.Posterior.Diagnostics.Divergences)
	tbl.RightAlignFrom(2, 2)
	return tbl.String() + "\n"
}

func writeEvaluation(b *strings.Builder, res *pipeline.Result) {
	b.WriteString("## Evaluation\n\n")
	b.WriteString(scoreTable(res, format.Markdown, ""))
	b.WriteString("\n")

	folds := format.NewTable(format.Markdown)
	folds.Header("Fold", "Rows", "RMSE")
	for _, f := range res.CV.Folds {
		folds.Row(f.Fold+1, f.N, format.Float(f.RMSE, 4))
	}
	folds.Footer("pooled", res.NTrain, format.Float(res.CV.RMSE, 4))
	folds.RightAlignFrom(2, 3)
	b.WriteString(folds.String())
	b.WriteString("\n\n")

	c := res.Confusion
	conf := format.NewTable(format.Markdown)
	conf.Header("", "Predicted 1", "Predicted 0")
	conf.Row("Observed 1", c.TP, c.FN)
	conf.Row("Observed 0", c.FP, c.TN)
	conf.RightAlignFrom(2, 3)
	b.WriteString(conf.String())
	b.WriteString("\n\n")
}

func writeFigures(b *strings.Builder, figures []Figure) {
	if len(figures) == 0 {
		return
	}
	b.WriteString("## Figures\n\n")
	for _, f := range figures {
		b.WriteString(fmt.Sprintf("![%s](%s)\n\n", f.Title, f.Path))
	}
}
