package config

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/docwatch"
)

func minimalConfig() *Config {
	sync := Duration(defaultSyncInterval)
	return &Config{
		Port:         defaultPort,
		SyncInterval: &sync,
		API:          APIConfig{BaseURL: "http://dms.example.com"},
	}
}

func TestBuildSource_Minimal(t *testing.T) {
	src, err := BuildSource(minimalConfig())
	if err != nil {
		t.Fatalf("BuildSource() error = %v", err)
	}

	if src.BaseURL() != "http://dms.example.com" {
		t.Errorf("BaseURL() = %q, want %q", src.BaseURL(), "http://dms.example.com")
	}
	if src.ListPath() != "/api/documents" {
		t.Errorf("ListPath() = %q, want /api/documents", src.ListPath())
	}
	if src.TextPath() != "/api/documents/{id}/summary" {
		t.Errorf("TextPath() = %q, want /api/documents/{id}/summary", src.TextPath())
	}
	if src.Extractor() == nil {
		t.Error("Extractor() = nil, want default extractor")
	}
}

func TestBuildSource_AllOptions(t *testing.T) {
	cfg := minimalConfig()
	cfg.API = APIConfig{
		BaseURL:   "https://dms.example.com",
		ListPath:  "/v2/docs",
		TextPath:  "/v2/docs/{id}/ocr",
		Timeout:   Duration(3 * time.Second),
		RateLimit: 5,
		Burst:     2,
		Headers: map[string]string{
			"Authorization": "Bearer token",
			"X-Custom":      "value",
		},
		Extractor: ExtractorConfig{Type: "json", Path: "data.text"},
	}

	src, err := BuildSource(cfg)
	if err != nil {
		t.Fatalf("BuildSource() error = %v", err)
	}

	if src.ListPath() != "/v2/docs" {
		t.Errorf("ListPath() = %q, want /v2/docs", src.ListPath())
	}
	if src.TextPath() != "/v2/docs/{id}/ocr" {
		t.Errorf("TextPath() = %q, want /v2/docs/{id}/ocr", src.TextPath())
	}
	if src.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", src.Timeout())
	}
	perSecond, burst := src.RateLimit()
	if perSecond != 5 || burst != 2 {
		t.Errorf("RateLimit() = (%g, %d), want (5, 2)", perSecond, burst)
	}
	wantHeaders := map[string]string{"Authorization": "Bearer token", "X-Custom": "value"}
	if !reflect.DeepEqual(src.Headers(), wantHeaders) {
		t.Errorf("Headers() = %v, want %v", src.Headers(), wantHeaders)
	}
	if got := src.Extractor()([]byte(`{"data":{"text":"scanned"}}`)); got != "scanned" {
		t.Errorf("Extractor() result = %q, want %q", got, "scanned")
	}
}

func TestBuildSource_RateLimitDefaultBurst(t *testing.T) {
	cfg := minimalConfig()
	cfg.API.RateLimit = 2

	src, err := BuildSource(cfg)
	if err != nil {
		t.Fatalf("BuildSource() error = %v", err)
	}

	if _, burst := src.RateLimit(); burst != 1 {
		t.Errorf("burst = %d, want 1", burst)
	}
}

func TestBuildSource_ExtractorBehavior(t *testing.T) {
	tests := []struct {
		name      string
		extractor ExtractorConfig
		body      string
		want      string
	}{
		{
			name:      "default prefers summary",
			extractor: ExtractorConfig{},
			body:      `{"ocrText":"raw","ocrSummaryText":"short"}`,
			want:      "short",
		},
		{
			name:      "default falls back to ocr text",
			extractor: ExtractorConfig{Type: "default"},
			body:      `{"ocrText":"raw"}`,
			want:      "raw",
		},
		{
			name:      "default pending document",
			extractor: ExtractorConfig{Type: "default"},
			body:      `{"status":"processing"}`,
			want:      "",
		},
		{
			name:      "text returns body",
			extractor: ExtractorConfig{Type: "text"},
			body:      "  plain summary \n",
			want:      "plain summary",
		},
		{
			name:      "json nested path",
			extractor: ExtractorConfig{Type: "json", Path: "result.summary"},
			body:      `{"result":{"summary":"done"}}`,
			want:      "done",
		},
		{
			name:      "regex capture",
			extractor: ExtractorConfig{Type: "regex", Pattern: `summary=(\w+)`},
			body:      "id=42 summary=ready",
			want:      "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			cfg.API.Extractor = tt.extractor

			src, err := BuildSource(cfg)
			if err != nil {
				t.Fatalf("BuildSource() error = %v", err)
			}

			if got := src.Extractor()([]byte(tt.body)); got != tt.want {
				t.Errorf("extractor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildSource_InvalidExtractor(t *testing.T) {
	cfg := minimalConfig()
	cfg.API.Extractor = ExtractorConfig{Type: "regex", Pattern: "no-group"}

	_, err := BuildSource(cfg)
	if err == nil {
		t.Fatal("BuildSource() expected error for pattern without capture group")
	}
	if !strings.Contains(err.Error(), "capture group") {
		t.Errorf("error = %v, want mention of capture group", err)
	}
}

func TestBuildSource_InvalidBaseURL(t *testing.T) {
	cfg := minimalConfig()
	cfg.API.BaseURL = "ftp://dms.example.com"

	if _, err := BuildSource(cfg); err == nil {
		t.Fatal("BuildSource() expected error for ftp scheme")
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := minimalConfig()
	cfg.Title = "Invoices"
	cfg.Port = 9191
	sync := Duration(time.Minute)
	cfg.SyncInterval = &sync
	cfg.Documents = []string{"42", "7"}
	cfg.Backoff = BackoffConfig{Base: Duration(time.Second), Multiplier: 2, Cap: Duration(8 * time.Second)}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := docwatch.New(append(opts, docwatch.WithLogger(logger))...)
	if err != nil {
		t.Fatalf("docwatch.New() error = %v", err)
	}
	defer w.Close()

	if w.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", w.Port())
	}
	if w.SyncInterval() != time.Minute {
		t.Errorf("SyncInterval() = %v, want 1m", w.SyncInterval())
	}
	if got := w.StaticDocuments(); !reflect.DeepEqual(got, []string{"42", "7"}) {
		t.Errorf("StaticDocuments() = %v, want [42 7]", got)
	}
	src, ok := w.Source()
	if !ok {
		t.Fatal("Source() ok = false, want true")
	}
	if src.BaseURL() != "http://dms.example.com" {
		t.Errorf("Source().BaseURL() = %q", src.BaseURL())
	}
}

func TestBuildOptions_SyncDisabled(t *testing.T) {
	cfg := minimalConfig()
	off := Duration(0)
	cfg.SyncInterval = &off

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := docwatch.New(append(opts, docwatch.WithLogger(logger))...)
	if err != nil {
		t.Fatalf("docwatch.New() error = %v", err)
	}
	defer w.Close()

	if w.SyncInterval() != 0 {
		t.Errorf("SyncInterval() = %v, want 0", w.SyncInterval())
	}
}

func TestBuildOptions_FromParsedYAML(t *testing.T) {
	cfg, err := Parse([]byte(`
api:
  base_url: http://localhost:8080
  extractor: json:ocrText
documents: ["1"]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	// source, backoff, port, sync interval, documents
	if len(opts) != 5 {
		t.Errorf("len(opts) = %d, want 5", len(opts))
	}
}

func TestMapToKeyValuePairs_DeterministicOrder(t *testing.T) {
	m := map[string]string{"b": "2", "a": "1", "c": "3"}
	want := []string{"a", "1", "b", "2", "c", "3"}

	for i := 0; i < 10; i++ {
		if got := mapToKeyValuePairs(m); !reflect.DeepEqual(got, want) {
			t.Fatalf("mapToKeyValuePairs() = %v, want %v", got, want)
		}
	}
}
