package main

import (
	"github.com/spf13/cobra"

	"github.com/shravanasati/hearth/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration hearth would run with after applying the config
file and HEARTH_* environment variables. Passwords are masked.

Examples:
  hearth config
  hearth config --format toml > hearth.toml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return err
		}
		return cfg.Encode(cmd.OutOrStdout(), configFormat)
	},
}

func init() {
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, toml)")
	rootCmd.AddCommand(configCmd)
}
