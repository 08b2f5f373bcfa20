package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marstat/internal/display"
	"marstat/internal/format"
	"marstat/internal/pipeline"
)

var describeFlags struct {
	data       string
	configPath string
	format     string
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Tabulate the cleaned dataset without fitting",
	RunE:  runDescribe,
}

func init() {
	f := describeCmd.Flags()
	f.StringVar(&describeFlags.data, "data", "", "Survey file (.csv, .dta, .sas7bdat) (required)")
	f.StringVar(&describeFlags.configPath, "config", "", "Config file (YAML or JSON); empty = defaults")
	f.StringVar(&describeFlags.format, "format", "ascii", "Table format (ascii, markdown)")

	_ = describeCmd.MarkFlagRequired("data")
}

func runDescribe(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(describeFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(describeFlags.configPath)
	if err != nil {
		return err
	}
	d, err := pipeline.Describe(describeFlags.data, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dataset: %s (%s)\n", d.Dataset.Path, d.Dataset.Format)
	fmt.Fprintf(out, "SHA-256: %s\n", d.Dataset.Hash)
	fmt.Fprintf(out, "Rows:    %d loaded, %d out of age range, %d missing, %d kept\n",
		d.Clean.RowsIn, d.Clean.OutOfBounds, d.Clean.MissingDropped, d.Clean.RowsOut)
	fmt.Fprintf(out, "Ages:    %d–%d\n", d.AgeMin, d.AgeMax)
	fmt.Fprintf(out, "Split:   %d train, %d test\n", d.NTrain, d.NTest)
	fmt.Fprintf(out, "Ever married: %s\n\n", format.Percent(d.OutcomeRate))

	tbl := format.NewTable(mode)
	tbl.Title("Levels")
	tbl.Header("Factor", "Level", "Ref", "Rows", "Ever married")
	for _, l := range d.Levels {
		tbl.Row(display.Factor(l.Factor), l.Level, format.BoolMark(l.Reference), l.N, format.Percent(l.Rate))
	}
	tbl.RightAlignFrom(4, 5)
	tbl.Wrap(2, 40)
	fmt.Fprintln(out, tbl.String())

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Design matrix columns:")
	for _, name := range d.Coefficients {
		fmt.Fprintf(out, "  %s\n", display.CoefficientWithCode(name))
	}
	return nil
}
