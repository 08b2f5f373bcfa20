package evaluate

import (
	"errors"
	"slices"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"marstat/internal/model"
)

// ErrOneClass means the held-out outcomes contain a single class, so the
// ROC is undefined.
var ErrOneClass = errors.New("held-out outcomes contain one class only")

// ROC is the receiver operating characteristic over every distinct
// predicted probability. TPR[i] and FPR[i] are the rates for pred ≥
// Thresholds[i]; FPR is non-decreasing.
type ROC struct {
	Thresholds []float64 `json:"thresholds"`
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	AUC        float64   `json:"auc"`
}

// ComputeROC sweeps all thresholds of pred against 0/1 outcomes y.
func ComputeROC(pred, y []float64) (ROC, error) {
	var pos, neg int
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return ROC{}, ErrOneClass
	}

	scores := slices.Clone(pred)
	classes := make([]bool, len(y))
	for i, v := range y {
		classes[i] = v == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, thresh := stat.ROC(nil, scores, classes, nil)
	return ROC{
		Thresholds: thresh,
		FPR:        fpr,
		TPR:        tpr,
		AUC:        integrate.Trapezoidal(fpr, tpr),
	}, nil
}

// Confusion counts classifications at a probability threshold.
type Confusion struct {
	Threshold float64 `json:"threshold"`
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	TN        int     `json:"tn"`
	FN        int     `json:"fn"`
}

// Classify predicts 1 when pred ≥ threshold.
func Classify(pred, y []float64, threshold float64) Confusion {
	c := Confusion{Threshold: threshold}
	for i, p := range pred {
		switch hit := p >= threshold; {
		case hit && y[i] == 1:
			c.TP++
		case hit:
			c.FP++
		case y[i] == 1:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Accuracy is the share of correct classifications.
func (c Confusion) Accuracy() float64 {
	n := c.TP + c.FP + c.TN + c.FN
	if n == 0 {
		return 0
	}
	return float64(c.TP+c.TN) / float64(n)
}

// Trace is the per-chain draw sequence of one coefficient.
type Trace struct {
	Name   string      `json:"name"`
	Chains [][]float64 `json:"chains"`
}

// Traces returns one trace per coefficient of p.
func Traces(p *model.Posterior) []Trace {
	out := make([]Trace, len(p.Names))
	for j, name := range p.Names {
		out[j] = Trace{Name: name, Chains: p.Trace(j)}
	}
	return out
}
