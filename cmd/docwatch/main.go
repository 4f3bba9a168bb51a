// Package main is the entry point for the docwatch CLI.
//
// docwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	docwatch serve -c config.yaml              # Start the dashboard
//	docwatch poll -c config.yaml --id 42       # Wait for document text
//	docwatch list -c config.yaml               # Show the document list
//	docwatch validate -c config.yaml           # Validate configuration
//	docwatch version                           # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docwatch",
		Short: "Watch a document service until derived text is available",
		Long: `docwatch polls a document service for OCR text and summaries.

Each document without derived text gets one background loop that queries
the service with growing delays until the text appears. States are shown
in a web UI with Server-Sent Events for live updates.

Quick start:
  1. Create a config file (docwatch.yaml)
  2. Run: docwatch serve -c docwatch.yaml
  3. Open http://localhost:8090 in your browser

Example config:
  api:
    base_url: http://localhost:8080
    extractor: default
  documents: ["42"]`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newPollCmd(),
		newListCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this docwatch binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docwatch %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newLogger creates a JSON logger on the command's stderr at the level
// selected by --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
