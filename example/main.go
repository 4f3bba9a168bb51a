package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/docwatch"
	"github.com/jpalmerr/docwatch/example/mockdms"
)

func main() {
	// start the mock document service
	svc := mockdms.New(mockdms.WithFailureRate(0.2))
	for _, title := range []string{"Invoice 2024-001", "Lease agreement", "Passport scan", "Utility bill"} {
		svc.Add(title, "application/pdf", 250_000)
	}
	go func() {
		if err := http.ListenAndServe(":9999", svc.Handler()); err != nil {
			slog.Error("mock service error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	src, err := docwatch.NewSource("http://localhost:9999",
		docwatch.WithTimeout(5*time.Second),
		docwatch.WithRateLimit(10, 5),
	)
	if err != nil {
		slog.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	// list sync picks up documents, polling those without text
	w, err := docwatch.New(
		docwatch.WithSource(src),
		docwatch.WithSyncInterval(10*time.Second),
		docwatch.WithPort(8090),
		docwatch.WithStateCallback(func(s docwatch.State) {
			if s.Resolved() {
				slog.Info("text ready", "id", s.ID, "text", s.Text)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	// a later upload is found by the next sync
	go func() {
		time.Sleep(15 * time.Second)
		svc.Add("Late upload", "image/png", 90_000)
	}()

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   docwatch Demo                                       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8090 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   • 4 documents, text ready after 3-15s               ║")
	fmt.Println("  ║   • 20% of text queries fail and are retried          ║")
	fmt.Println("  ║   • 1 more upload after 15s                           ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		slog.Error("docwatch error", "error", err)
		os.Exit(1)
	}
}
