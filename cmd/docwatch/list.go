package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/docwatch"
	"github.com/jpalmerr/docwatch/config"
)

// newListCmd prints the service's document list as a table.
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents and whether their text is available",
		Long: `Fetch the document list once and print it as a table.

The Text column shows whether the listing already carries OCR text or a
summary, or whether the document would still need polling.

Example:
  docwatch list -c config.yaml`,
		RunE: runList,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	src, err := config.BuildSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to build source: %w", err)
	}

	w, err := docwatch.New(
		docwatch.WithSource(src),
		docwatch.WithSyncInterval(0),
		docwatch.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	docs, err := w.Documents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	return renderDocuments(cmd.OutOrStdout(), docs)
}

// renderDocuments writes docs as a table.
func renderDocuments(out io.Writer, docs []docwatch.Document) error {
	if len(docs) == 0 {
		_, _ = yellow.Fprintln(out, "no documents")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("ID", "Title", "Type", "Size", "Uploaded", "Text")

	ready := 0
	for _, d := range docs {
		text := "pending"
		if d.HasText() {
			text = fmt.Sprintf("ready (%d chars)", len([]rune(d.Text())))
			ready++
		}
		_ = table.Append(
			string(d.ID),
			d.Title,
			d.ContentType,
			formatSize(d.FileSize),
			d.UploadedAt,
			text,
		)
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, _ = bold.Fprintf(out, "%d documents, %d with text\n", len(docs), ready)
	return nil
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
