package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/docwatch"
	"github.com/jpalmerr/docwatch/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newServeCmd starts the docwatch dashboard server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Long: `Start the docwatch dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Watch the configured documents and sync the document list
  - Serve the dashboard UI and REST API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  docwatch serve -c config.yaml
  docwatch serve --config /etc/docwatch/config.yaml --log-level debug`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"base_url", cfg.API.BaseURL,
		"documents", len(cfg.Documents),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"sync_interval", cfg.SyncInterval.Duration().String(),
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, docwatch.WithLogger(logger))

	w, err := docwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
