package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NamanArora/pay-proxy/internal/config"
	"github.com/NamanArora/pay-proxy/internal/router"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and list registered providers",
	Long: `Load the configuration file, apply defaults, validate it and print the
providers the proxy would register. Nothing is contacted.

Examples:
  server check-config --config configs/providers.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return printProviders(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func printProviders(out io.Writer, cfg *config.Config) error {
	r, err := router.New(cfg, router.Options{})
	if err != nil {
		return fmt.Errorf("invalid provider table: %w", err)
	}

	fmt.Fprintf(out, "proxy enabled: %t (prefix %s)\n", cfg.Proxy.Enabled, cfg.Proxy.RoutePrefix)
	fmt.Fprintf(out, "storage: %s\n\n", cfg.Storage.Type)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFAMILY\tENABLED")
	for _, p := range r.Providers() {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", p.Name, p.Family, p.Enabled)
	}
	return tw.Flush()
}
