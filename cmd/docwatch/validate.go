package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/docwatch/config"
)

// newValidateCmd validates a config file without starting the server.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a docwatch configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  docwatch validate -c config.yaml
  docwatch validate --config /etc/docwatch/config.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// building the source catches anything only the SDK checks
	if _, err := config.BuildSource(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sync := "disabled"
	if d := cfg.SyncInterval.Duration(); d > 0 {
		sync = d.String()
	}
	b := cfg.Backoff.Policy()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  API:           %s\n", cfg.API.BaseURL)
	fmt.Fprintf(out, "  Sync interval: %s\n", sync)
	fmt.Fprintf(out, "  Backoff:       %s x%g up to %s\n", b.Base, b.Multiplier, b.Cap)
	fmt.Fprintf(out, "  Documents:     %d\n", len(cfg.Documents))

	return nil
}
