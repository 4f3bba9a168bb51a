package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{BaseURL: "http://localhost:8080"}},
		{name: "https with prefix", cfg: Config{BaseURL: "https://dms.example.com/v1/"}},
		{name: "empty base URL", cfg: Config{}, wantErr: "base URL is required"},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://host"}, wantErr: "http or https"},
		{name: "missing host", cfg: Config{BaseURL: "http://"}, wantErr: "host"},
		{name: "text path without id", cfg: Config{BaseURL: "http://h", TextPath: "/text"}, wantErr: "{id}"},
		{name: "negative timeout", cfg: Config{BaseURL: "http://h", Timeout: -time.Second}, wantErr: "timeout"},
		{name: "negative rate", cfg: Config{BaseURL: "http://h", RateLimit: -1}, wantErr: "rate limit"},
		{name: "negative burst", cfg: Config{BaseURL: "http://h", Burst: -1}, wantErr: "burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				c.Close()
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestClient_URLs(t *testing.T) {
	c := newTestClient(t, Config{
		BaseURL:  "http://dms.local/v1/",
		ListPath: "docs",
		TextPath: "/docs/{id}/text",
	})

	if got, want := c.ListURL(), "http://dms.local/v1/docs"; got != want {
		t.Errorf("ListURL() = %q, want %q", got, want)
	}
	if got, want := c.TextURL("42"), "http://dms.local/v1/docs/42/text"; got != want {
		t.Errorf("TextURL() = %q, want %q", got, want)
	}
	if got, want := c.TextURL("a/b c"), "http://dms.local/v1/docs/a%2Fb%20c/text"; got != want {
		t.Errorf("TextURL() = %q, want %q", got, want)
	}
}

func TestClient_FetchText(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		extractor TextExtractor
		want      string
		wantErr   bool
	}{
		{name: "plain body is trimmed", status: 200, body: "  hello world \n", want: "hello world"},
		{name: "empty body", status: 200, body: "", want: ""},
		{name: "not found is an error", status: 404, body: "missing", wantErr: true},
		{name: "server error is an error", status: 500, wantErr: true},
		{
			name:      "custom extractor",
			status:    200,
			body:      `{"summary":"short"}`,
			extractor: func(b []byte) string { return strings.ToUpper(string(b)) },
			want:      `{"SUMMARY":"SHORT"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, Config{BaseURL: server.URL, Extractor: tt.extractor})

			got, err := c.FetchText(context.Background(), "42")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FetchText() = %q, want %q", got, tt.want)
			}
			if gotPath != "/api/documents/42/summary" {
				t.Errorf("request path = %q, want /api/documents/42/summary", gotPath)
			}
		})
	}
}

// TestClient_FetchText_Coalesces verifies concurrent queries for one id share a request.
func TestClient_FetchText_Coalesces(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("shared"))
	}))
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.FetchText(context.Background(), "7")
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// give the remaining callers time to join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("result[%d] = %q, want %q", i, r, "shared")
		}
	}
}

// TestClient_FetchText_CallerCancel verifies a cancelled caller returns
// promptly without failing the shared request.
func TestClient_FetchText_CallerCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, Config{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchText(ctx, "1")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("FetchText() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("FetchText() did not return after cancellation")
	}
}

func TestClient_RateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	// 20 req/s with burst 1: three sequential requests need ~100ms
	c := newTestClient(t, Config{BaseURL: server.URL, RateLimit: 20, Burst: 1})

	start := time.Now()
	for _, id := range []string{"1", "2", "3"} {
		if _, err := c.FetchText(context.Background(), id); err != nil {
			t.Fatalf("FetchText(%s) error = %v", id, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, want rate limited to at least 80ms", elapsed)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestClient_ListDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultListPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 42, "title": "Invoice", "contentType": "application/pdf", "fileSize": 1024},
			{"id": "a7", "title": "Scan", "ocrText": "raw text", "ocrSummaryText": "summary"},
			{"id": 3, "title": "Letter", "ocrText": "  only ocr  "}
		]`))
	}))
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL})

	docs, err := c.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}

	if docs[0].ID != "42" || docs[0].HasText() || docs[0].FileSize != 1024 {
		t.Errorf("docs[0] = %+v, want id 42 without text", docs[0])
	}
	if docs[1].ID != "a7" || docs[1].Text() != "summary" {
		t.Errorf("docs[1] = %+v, want id a7 with summary text", docs[1])
	}
	if docs[2].Text() != "only ocr" {
		t.Errorf("docs[2].Text() = %q, want %q", docs[2].Text(), "only ocr")
	}
}

func TestClient_ListDocuments_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "bad status", status: 502, wantErr: "unexpected status 502"},
		{name: "not JSON", status: 200, body: "<html>", wantErr: "decode"},
		{name: "bad id", status: 200, body: `[{"id": true}]`, wantErr: "document id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, Config{BaseURL: server.URL})

			_, err := c.ListDocuments(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ListDocuments() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDocumentID_MarshalsAsString(t *testing.T) {
	data, err := json.Marshal(Document{ID: "42", Title: "x"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"id":"42"`) {
		t.Errorf("Marshal() = %s, want string id", data)
	}
}
