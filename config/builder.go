package config

import (
	"sort"

	"github.com/jpalmerr/docwatch"
)

// BuildSource converts the api section into an SDK [docwatch.Source].
func BuildSource(cfg *Config) (docwatch.Source, error) {
	a := cfg.API
	var opts []docwatch.SourceOption

	if a.ListPath != "" {
		opts = append(opts, docwatch.WithListPath(a.ListPath))
	}

	if a.TextPath != "" {
		opts = append(opts, docwatch.WithTextPath(a.TextPath))
	}

	if a.Timeout != 0 {
		opts = append(opts, docwatch.WithTimeout(a.Timeout.Duration()))
	}

	if a.RateLimit > 0 {
		burst := a.Burst
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, docwatch.WithRateLimit(a.RateLimit, burst))
	}

	if len(a.Headers) > 0 {
		opts = append(opts, docwatch.WithHeaders(mapToKeyValuePairs(a.Headers)...))
	}

	extractor, err := docwatch.ExtractorByName(a.Extractor.Name())
	if err != nil {
		return docwatch.Source{}, err
	}
	opts = append(opts, docwatch.WithExtractor(extractor))

	return docwatch.NewSource(a.BaseURL, opts...)
}

// BuildOptions converts parsed configuration into SDK options for [docwatch.New].
//
// The returned options cover the source, static documents, sync interval,
// backoff, port and title. Callers append their own logger or callbacks.
func BuildOptions(cfg *Config) ([]docwatch.Option, error) {
	src, err := BuildSource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []docwatch.Option{
		docwatch.WithSource(src),
		docwatch.WithBackoff(cfg.Backoff.Policy()),
		docwatch.WithPort(cfg.Port),
	}

	if cfg.SyncInterval != nil {
		opts = append(opts, docwatch.WithSyncInterval(cfg.SyncInterval.Duration()))
	}

	if len(cfg.Documents) > 0 {
		opts = append(opts, docwatch.WithDocuments(cfg.Documents...))
	}

	if cfg.Title != "" {
		opts = append(opts, docwatch.WithTitle(cfg.Title))
	}

	return opts, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
