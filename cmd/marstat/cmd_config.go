package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marstat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := config.Marshal(config.Default())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Load and validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromPath(args[0])
		if err != nil {
			return err
		}
		fp, err := cfg.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (fingerprint %s)\n", args[0], fp[:12])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDefaultCmd, configCheckCmd)
}
