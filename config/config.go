// Package config provides YAML configuration parsing for docwatch.
//
// This package enables running docwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Documents
//	port: 8090
//	sync_interval: 30s
//
//	api:
//	  base_url: ${DMS_URL:-http://localhost:8080}
//	  text_path: /api/documents/{id}/summary
//	  timeout: 10s
//	  headers:
//	    Authorization: "Bearer ${DMS_TOKEN}"
//	  extractor: json:ocrSummaryText
//
//	backoff:
//	  base: 1500ms
//	  multiplier: 1.25
//	  cap: 5s
//
//	documents: ["42"]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/docwatch"
	"github.com/jpalmerr/docwatch/internal/backoff"
)

const (
	defaultPort         = 8090
	defaultSyncInterval = 30 * time.Second

	// minSyncInterval keeps a config file from listing the service in a
	// tight loop. Zero still disables sync.
	minSyncInterval = 1 * time.Second

	// minTimeout is the smallest request timeout accepted from a file.
	minTimeout = 100 * time.Millisecond
)

// Config is the root configuration structure for docwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "docwatch" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8090.
	Port int `yaml:"port"`

	// SyncInterval is the time between document list syncs.
	// Accepts duration strings like "30s" or "1m"; "0s" disables sync.
	// Defaults to 30s when omitted.
	SyncInterval *Duration `yaml:"sync_interval"`

	// API describes the document service being watched.
	API APIConfig `yaml:"api"`

	// Backoff is the delay policy between failed attempts.
	Backoff BackoffConfig `yaml:"backoff"`

	// Documents are ids watched from startup regardless of list sync.
	Documents []string `yaml:"documents"`
}

// APIConfig describes the remote document service.
type APIConfig struct {
	// BaseURL is the service root, e.g. "http://localhost:8080".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// ListPath is the document list path. Defaults to "/api/documents".
	ListPath string `yaml:"list_path"`

	// TextPath is the derived text path and must contain "{id}".
	// Defaults to "/api/documents/{id}/summary".
	TextPath string `yaml:"text_path"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// RateLimit caps requests per second across all documents.
	// Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the number of requests allowed at once when RateLimit is set.
	// Defaults to 1.
	Burst int `yaml:"burst"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Extractor determines how derived text is read from a response.
	// Can be shorthand ("json:ocrText", "regex:...") or structured.
	Extractor ExtractorConfig `yaml:"extractor"`
}

// BackoffConfig is the YAML form of [docwatch.Backoff].
//
// Omitted fields take the default policy's value.
type BackoffConfig struct {
	Base       Duration `yaml:"base"`
	Multiplier float64  `yaml:"multiplier"`
	Cap        Duration `yaml:"cap"`
}

// Policy returns the configured policy with defaults filled in.
func (b BackoffConfig) Policy() docwatch.Backoff {
	p := docwatch.DefaultBackoff()
	if b.Base != 0 {
		p.Base = b.Base.Duration()
	}
	if b.Multiplier != 0 {
		p.Multiplier = b.Multiplier
	}
	if b.Cap != 0 {
		p.Cap = b.Cap.Duration()
	}
	return p
}

// Validate reports whether the effective policy is usable.
func (b BackoffConfig) Validate() error {
	p := b.Policy()
	return backoff.Policy{Base: p.Base, Multiplier: p.Multiplier, Cap: p.Cap}.Validate()
}

// ExtractorConfig specifies how to read derived text from a response.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json:ocrSummaryText
//	extractor: 'regex:summary=(\w+)'
//	extractor: text
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: json
//	  path: data.summary
type ExtractorConfig struct {
	// Type is the extractor type: "default", "text", "json", "regex".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Pattern is a regular expression with one capture group (for type: regex).
	Pattern string
}

// Name returns the shorthand form understood by [docwatch.ExtractorByName].
func (e ExtractorConfig) Name() string {
	switch e.Type {
	case "json":
		return "json:" + e.Path
	case "regex":
		return "regex:" + e.Pattern
	default:
		return e.Type
	}
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		e.Pattern = raw.Pattern
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "default" → summary, then OCR text, then plain body
//   - "text" → whole body
//   - "json:path" → extract from JSON field
//   - "regex:pattern" → first capture group of pattern
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		e.Type = s[:idx]
		value := s[idx+1:]

		switch e.Type {
		case "json":
			e.Path = value
		case "regex":
			e.Pattern = value
		default:
			return fmt.Errorf("unknown extractor type %q", e.Type)
		}
		return nil
	}

	switch s {
	case "default", "text":
		e.Type = s
	default:
		return fmt.Errorf("unknown extractor %q (expected 'default', 'text', 'json:path', or 'regex:pattern')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the base URL and header values.
// Defaults are applied for Port (8090) and SyncInterval (30s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.SyncInterval == nil {
		d := Duration(defaultSyncInterval)
		cfg.SyncInterval = &d
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if sync := c.SyncInterval.Duration(); sync < 0 || (sync != 0 && sync < minSyncInterval) {
		return fmt.Errorf("sync_interval must be 0 or at least %s, got %s", minSyncInterval, sync)
	}

	if err := c.API.expandAndValidate(); err != nil {
		return err
	}

	if err := c.Backoff.Validate(); err != nil {
		return fmt.Errorf("backoff: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Documents))
	for i, id := range c.Documents {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("documents[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("documents[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		c.Documents[i] = id
	}

	return nil
}

func (a *APIConfig) expandAndValidate() error {
	if a.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	expanded, err := expandEnvVars(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	a.BaseURL = expanded

	parsedURL, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("api.base_url: url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api.base_url: url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("api.base_url: url must include a host")
	}

	if a.TextPath != "" && !strings.Contains(a.TextPath, "{id}") {
		return fmt.Errorf("api.text_path: must contain {id}, got %q", a.TextPath)
	}

	for k, v := range a.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("api.headers[%s]: %w", k, err)
		}
		a.Headers[k] = expanded
	}

	if a.Timeout != 0 {
		if a.Timeout.Duration() < 0 {
			return fmt.Errorf("api.timeout: cannot be negative, got %s", a.Timeout.Duration())
		}
		if a.Timeout.Duration() < minTimeout {
			return fmt.Errorf("api.timeout: must be at least %s if specified, got %s", minTimeout, a.Timeout.Duration())
		}
	}

	if a.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit: cannot be negative, got %g", a.RateLimit)
	}
	if a.Burst < 0 {
		return fmt.Errorf("api.burst: cannot be negative, got %d", a.Burst)
	}
	if a.Burst > 0 && a.RateLimit == 0 {
		return errors.New("api.burst: requires rate_limit")
	}

	return validateExtractor(&a.Extractor, "api.extractor")
}

// validateExtractor validates an extractor configuration.
func validateExtractor(e *ExtractorConfig, context string) error {
	switch e.Type {
	case "", "default", "text":
		return nil
	case "json":
		if e.Path == "" {
			return fmt.Errorf("%s: extractor type 'json' requires a path", context)
		}
	case "regex":
		if e.Pattern == "" {
			return fmt.Errorf("%s: extractor type 'regex' requires a pattern", context)
		}
		if _, err := docwatch.ExtractorByName(e.Name()); err != nil {
			return fmt.Errorf("%s: %w", context, err)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", context, e.Type)
	}

	return nil
}
