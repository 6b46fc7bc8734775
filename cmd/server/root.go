package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Payment provider proxy",
	Long: `Forwards payment API calls to PayPal, Bango and named reference providers,
adding the credentials each provider requires so callers never hold them.

With no subcommand the proxy is started, as with "serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/providers.yaml", "config file path")
}
