package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/docwatch"
	"github.com/jpalmerr/docwatch/config"
)

const defaultPollTimeout = 5 * time.Minute

// newPollCmd watches documents from the terminal until their text resolves.
func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll documents until their text is available",
		Long: `Poll one or more documents until their derived text is available.

Every state transition is printed as it happens. The command exits once
all documents resolve, or fails when --timeout elapses first.

Without --id, the documents listed in the config file are polled.

Example:
  docwatch poll -c config.yaml --id 42 --id 43
  docwatch poll -c config.yaml --timeout 30s`,
		RunE: runPoll,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().StringSlice("id", nil, "document id to poll (repeatable)")
	cmd.Flags().Duration("timeout", defaultPollTimeout, "give up after this long")
	cmd.Flags().Bool("no-progress", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runPoll(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ids, _ := cmd.Flags().GetStringSlice("id")
	if len(ids) == 0 {
		ids = cfg.Documents
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return errors.New("no documents to poll: pass --id or list documents in the config")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return errors.New("--timeout must be positive")
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts,
		docwatch.WithSyncInterval(0),
		docwatch.WithLogger(logger),
	)

	w, err := docwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bar *progressbar.ProgressBar
	if hide, _ := cmd.Flags().GetBool("no-progress"); !hide {
		bar = progressbar.NewOptions(len(ids),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("resolving"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
		)
	}

	results, err := pollDocuments(ctx, w, ids, cmd.OutOrStdout(), bar)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	out := cmd.OutOrStdout()
	_, _ = bold.Fprintf(out, "\n%d of %d documents resolved\n", len(results), len(ids))
	for _, s := range results {
		printState(out, s)
	}
	return err
}

// documentWatcher is the part of [docwatch.Watcher] polling needs.
type documentWatcher interface {
	Watch(id string) bool
	State(id string) docwatch.State
	Subscribe(fn func(docwatch.State)) (unsubscribe func())
}

// pollDocuments watches ids until each resolves or ctx ends.
//
// Transitions are printed to out as they happen. Resolved states are
// returned sorted by id, together with an error naming the documents still
// unresolved when ctx ended.
func pollDocuments(ctx context.Context, w documentWatcher, ids []string, out io.Writer, bar *progressbar.ProgressBar) ([]docwatch.State, error) {
	resolved := make(map[string]chan docwatch.State, len(ids))
	for _, id := range ids {
		resolved[id] = make(chan docwatch.State, 1)
	}

	var (
		mu       sync.Mutex
		done     = make(map[string]bool, len(ids))
		finished bool
	)

	unsubscribe := w.Subscribe(func(s docwatch.State) {
		ch, ok := resolved[s.ID]
		if !ok {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if finished || done[s.ID] {
			return
		}
		printState(out, s)
		if s.Resolved() {
			done[s.ID] = true
			ch <- s
		}
	})
	defer unsubscribe()

	for _, id := range ids {
		w.Watch(id)
	}

	var (
		resultsMu sync.Mutex
		results   []docwatch.State
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		ch := resolved[id]
		g.Go(func() error {
			select {
			case s := <-ch:
				resultsMu.Lock()
				results = append(results, s)
				resultsMu.Unlock()
				if bar != nil {
					_ = bar.Add(1)
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()

	// loops for unresolved documents keep running until the watcher closes
	mu.Lock()
	finished = true
	mu.Unlock()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	if err != nil {
		var pending []string
		for _, id := range ids {
			if !w.State(id).Resolved() {
				pending = append(pending, id)
			}
		}
		if len(pending) > 0 {
			return results, fmt.Errorf("documents not resolved (%s): %w", strings.Join(pending, ", "), err)
		}
	}
	return results, nil
}

// uniqueIDs trims ids and drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
