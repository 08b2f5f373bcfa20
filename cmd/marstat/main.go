// marstat fits a Bayesian logistic regression of ever-married status on
// age, population centre and income, and writes a report.
//
// Usage:
//
//	marstat run --data <file> [--config cfg.yaml] [--out dir] [--seed n]
//	marstat describe --data <file> [--config cfg.yaml]
//	marstat cache list|clear|invalidate [--cache-db path]
//	marstat config default
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
