package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// configPath is the --config flag shared by every subcommand.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "hearth - a small static file server",
	Long: `hearth serves the files below a public root directory over HTTP/1.1.
Large files are streamed in fixed size chunks so memory use stays flat no
matter how big the file or how slow the client.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("hearth version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default: hearth.yaml or hearth.toml in the working directory)")
}
