// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, logs, and docs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "strings"

// --- Coefficients ---

var factors = map[string]string{
	"pop_center": "Population centre",
	"income":     "Respondent income",
}

var fixedCoefficients = map[string]string{
	"(Intercept)": "Intercept",
	"age":         "Age (years)",
}

// Factor returns the human-readable name of a factor code.
// Unknown codes are returned as-is.
func Factor(code string) string {
	if name, ok := factors[code]; ok {
		return name
	}
	return code
}

// Coefficient returns the human-readable name of a coefficient code.
// "age" -> "Age (years)", "income:$25,000 to $49,999" ->
// "Respondent income: $25,000 to $49,999".
func Coefficient(code string) string {
	if name, ok := fixedCoefficients[code]; ok {
		return name
	}
	if f, level, ok := strings.Cut(code, ":"); ok {
		return Factor(f) + ": " + level
	}
	return code
}

// CoefficientWithCode returns "Age (years) (age)" format for dual-audience
// contexts. Codes without a distinct name are returned as-is.
func CoefficientWithCode(code string) string {
	name := Coefficient(code)
	if name == code {
		return code
	}
	return name + " (" + code + ")"
}

// FileSlug turns a coefficient code into a file-name-safe slug.
// "income:$25,000 to $49,999" -> "income_25000_to_49999".
func FileSlug(code string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(code) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
		case r == ',' || r == '$':
			// dropped without separating digits
		default:
			sep = true
		}
	}
	return b.String()
}

// --- Diagnostics ---

var diagnostics = map[string]string{
	"rhat":        "R̂",
	"ess":         "Effective sample size",
	"divergences": "Divergent transitions",
}

// Diagnostic returns the human-readable name of a convergence metric code.
func Diagnostic(code string) string {
	if name, ok := diagnostics[code]; ok {
		return name
	}
	return code
}

// --- Pipeline stages ---

var stages = map[string]string{
	"load":     "Load",
	"clean":    "Filter/recode",
	"split":    "Split",
	"fit":      "Fit",
	"evaluate": "Evaluate",
	"report":   "Report",
}

// Stage returns the human-readable name of a pipeline stage code.
func Stage(code string) string {
	if name, ok := stages[code]; ok {
		return name
	}
	return code
}

// StagePath converts a slice of stage codes to a human-readable path.
// ["load", "clean", "fit"] -> "Load → Filter/recode → Fit"
func StagePath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Stage(c)
	}
	return strings.Join(names, " → ")
}

// --- Row counts ---

var rowStages = map[string]string{
	"loaded":  "Rows loaded",
	"cleaned": "Rows after filter/recode",
	"train":   "Training rows",
	"test":    "Held-out rows",
}

// RowStage returns the human-readable label of a row-count stage.
func RowStage(code string) string {
	if name, ok := rowStages[code]; ok {
		return name
	}
	return code
}
