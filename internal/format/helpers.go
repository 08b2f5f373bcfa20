package format

import (
	"fmt"
	"math"
	"time"
)

// Float formats v with prec decimals; NaN and infinities print as "n/a" and
// "∞".
func Float(v float64, prec int) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

// Interval formats a credible interval as "[lo, hi]".
func Interval(lo, hi float64, prec int) string {
	return "[" + Float(lo, prec) + ", " + Float(hi, prec) + "]"
}

// Percent formats a share in [0, 1] as a percentage with one decimal.
func Percent(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*v)
}

// Duration formats a duration as "Xm Ys", "Ys" or "Xms" below a second.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
