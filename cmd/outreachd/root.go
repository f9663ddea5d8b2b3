package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "outreachd",
	Short: "outreachd - scheduled discovery and outreach action tracking",
	Long: `outreachd runs recurring discovery jobs against external event sources,
surfaces each entity at most once, and keeps a durable ledger of every
outbound action for auditing and daily reporting.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}
