package format_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"marstat/internal/format"
)

func TestASCII_CoefficientTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Title("Posterior")
	tb.Header("Coefficient", "Mean", "95% CI")
	tb.Row("Age (years)", format.Float(0.0812, 3), format.Interval(0.07, 0.09, 3))
	tb.RightAlignFrom(2, 3)
	out := tb.String()

	for _, want := range []string{"Posterior", "Coefficient", "Age (years)", "0.081", "[0.070, 0.090]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "───") {
		t.Errorf("expected box-drawing characters in ASCII output:\n%s", out)
	}
}

func TestMarkdown_Table(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Title("ignored in markdown")
	tb.Header("Fold", "RMSE")
	tb.Row(1, "0.441")
	tb.Footer("pooled", "0.440")
	out := tb.String()

	if !strings.Contains(out, "| Fold") || !strings.Contains(out, "---") {
		t.Errorf("expected markdown table:\n%s", out)
	}
	if !strings.Contains(out, "pooled") {
		t.Errorf("expected footer in output:\n%s", out)
	}
	if strings.Contains(out, "ignored in markdown") {
		t.Errorf("title rendered in markdown:\n%s", out)
	}
}

func TestSameData_DualFormat(t *testing.T) {
	build := func(m format.Mode) string {
		tb := format.NewTable(m)
		tb.Header("A", "B")
		tb.Row("x", "y")
		return tb.String()
	}
	ascii, md := build(format.ASCII), build(format.Markdown)
	if ascii == md {
		t.Error("ASCII and Markdown output should differ")
	}
	for _, out := range []string{ascii, md} {
		if !strings.Contains(out, "x") || !strings.Contains(out, "y") {
			t.Errorf("expected data in output:\n%s", out)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    format.Mode
		wantErr bool
	}{
		{"ascii", format.ASCII, false},
		{"", format.ASCII, false},
		{"Markdown", format.Markdown, false},
		{"md", format.Markdown, false},
		{"html", format.ASCII, true},
	}
	for _, tc := range tests {
		got, err := format.ParseMode(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseMode(%q) = %v, %v", tc.in, got, err)
		}
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		in   float64
		prec int
		want string
	}{
		{1.23456, 2, "1.23"},
		{-0.5, 3, "-0.500"},
		{math.NaN(), 2, "n/a"},
		{math.Inf(1), 2, "∞"},
	}
	for _, tc := range tests {
		if got := format.Float(tc.in, tc.prec); got != tc.want {
			t.Errorf("Float(%v, %d) = %q, want %q", tc.in, tc.prec, got, tc.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := format.Percent(0.4567); got != "45.7%" {
		t.Errorf("Percent = %q", got)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tc := range tests {
		if got := format.Duration(tc.in); got != tc.want {
			t.Errorf("Duration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"Larger urban population centres (CMA/CA)", 20, "Larger urban popu..."},
		{"abcdef", 3, "abc"},
		{"Île-du-Prince", 5, "Îl..."},
	}
	for _, tc := range tests {
		if got := format.Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestBoolMark(t *testing.T) {
	if format.BoolMark(true) != "✓" || format.BoolMark(false) != "✗" {
		t.Error("BoolMark mismatch")
	}
}

func TestWrap(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Level", "Rows")
	tb.Row("Rural areas and small population centres (non CMA/CA)", 12)
	tb.Wrap(1, 20)
	out := tb.String()

	for _, line := range strings.Split(out, "\n") {
		if n := len([]rune(line)); n > 40 {
			t.Errorf("line wider than wrapped table (%d runes): %q", n, line)
		}
	}
	if !strings.Contains(out, "Rural areas") {
		t.Errorf("expected wrapped cell content:\n%s", out)
	}
}

func TestHeaderCasePreserved(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("R̂", "ESS")
	tb.Row("1.001", "812")
	tb.Footer("pooled", "")
	out := tb.String()
	if !strings.Contains(out, "ESS") || !strings.Contains(out, "pooled") {
		t.Errorf("header or footer case changed:\n%s", out)
	}
}

func TestTitle_PercentIsLiteral(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Title("Posterior (95% credible intervals)")
	tb.Header("Coefficient", "Mean")
	tb.Row("Intercept", "-1.900")
	out := tb.String()

	if !strings.Contains(out, "Posterior (95% credible intervals)") {
		t.Errorf("title altered:\n%s", out)
	}
	if strings.Contains(out, "%!") {
		t.Errorf("title treated as a format string:\n%s", out)
	}
}
