package recode

import (
	"gonum.org/v1/gonum/mat"

	"marstat/internal/config"
)

// Coefficient name parts. Indicator columns are named "<factor>:<level>".
const (
	InterceptName  = "(Intercept)"
	AgeName        = "age"
	PopCenterName  = "pop_center"
	IncomeName     = "income"
	levelSeparator = ":"
)

// Group is the half-open column range [Start, End) holding one factor's
// indicators in the design matrix.
type Group struct {
	Factor     string
	Start, End int
}

type encodedFactor struct {
	name   string
	levels []string // non-reference levels, in configured order
}

func newEncodedFactor(name string, f config.Factor) encodedFactor {
	ef := encodedFactor{name: name}
	for _, l := range f.Levels {
		if l != f.Reference {
			ef.levels = append(ef.levels, l)
		}
	}
	return ef
}

// Encoder builds design rows: intercept, age, then one indicator per
// non-reference level of pop_center followed by income. The reference level
// of each factor is the row whose indicators are all zero.
type Encoder struct {
	factors []encodedFactor
}

// NewEncoder returns an encoder for the two configured factors.
func NewEncoder(pop, income config.Factor) *Encoder {
	return &Encoder{factors: []encodedFactor{
		newEncodedFactor(PopCenterName, pop),
		newEncodedFactor(IncomeName, income),
	}}
}

// Width is the number of design columns, intercept included.
func (e *Encoder) Width() int {
	w := 2
	for _, f := range e.factors {
		w += len(f.levels)
	}
	return w
}

// Names returns the coefficient name of every design column.
func (e *Encoder) Names() []string {
	names := []string{InterceptName, AgeName}
	for _, f := range e.factors {
		for _, l := range f.levels {
			names = append(names, f.name+levelSeparator+l)
		}
	}
	return names
}

// Groups returns the indicator column range of each factor.
func (e *Encoder) Groups() []Group {
	var gs []Group
	start := 2
	for _, f := range e.factors {
		gs = append(gs, Group{Factor: f.name, Start: start, End: start + len(f.levels)})
		start += len(f.levels)
	}
	return gs
}

// Row writes the design row of o into dst, which must have length Width.
func (e *Encoder) Row(o Observation, dst []float64) {
	clear(dst)
	dst[0] = 1
	dst[1] = float64(o.Age)
	col := 2
	for _, f := range e.factors {
		v := o.PopCenter
		if f.name == IncomeName {
			v = o.Income
		}
		for _, l := range f.levels {
			if v == l {
				dst[col] = 1
			}
			col++
		}
	}
}

// Encode builds the design matrix and outcome vector for obs.
func (e *Encoder) Encode(obs []Observation) (*mat.Dense, []float64) {
	w := e.Width()
	x := mat.NewDense(len(obs), w, nil)
	y := make([]float64, len(obs))
	for i, o := range obs {
		e.Row(o, x.RawRowView(i))
		y[i] = float64(o.Outcome)
	}
	return x, y
}
