// Package cmd implements the evctl operator CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	natsURL     string
	reporterURL string
)

var rootCmd = &cobra.Command{
	Use:   "evctl",
	Short: "admetry operations CLI",
	Long: `evctl is the operator command-line interface for the admetry
event pipeline.

Inspect and purge quarantined messages, and query the reporter for
aggregate statistics.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&reporterURL, "reporter-url", "http://localhost:3020", "reporter base URL")
}
