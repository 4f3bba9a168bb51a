// Standalone mock document service for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/docwatch serve -c example/config.yaml
//	curl -X POST localhost:9999/api/documents -d '{"title":"receipt"}'
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/docwatch/example/mockdms"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := mockdms.New(
		mockdms.WithProcessingDelay(3*time.Second, 20*time.Second),
		mockdms.WithFailureRate(0.1),
		mockdms.WithLogger(logger),
	)
	for _, title := range []string{"Invoice 2024-001", "Lease agreement", "Passport scan"} {
		svc.Add(title, "application/pdf", 180_000)
	}

	fmt.Println("Mock document service starting on :9999")
	fmt.Println("Documents get their text 3-20 seconds after upload")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(":9999", svc.Handler()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
