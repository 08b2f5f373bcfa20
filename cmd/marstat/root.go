package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marstat/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "marstat",
	Short: "Bayesian logistic regression of ever-married status on survey data",
	Long: `marstat loads a survey extract, keeps respondents in the configured age
range, recodes marital status to a binary outcome and fits a Bayesian
logistic regression by Hamiltonian Monte Carlo. It reports posterior
summaries, cross-validated RMSE and held-out ROC/AUC.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		switch rootFlags.logFormat {
		case "text", "json":
		default:
			return fmt.Errorf("unknown log format %q (want text or json)", rootFlags.logFormat)
		}
		logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.Version = version
}
