// Package mockdms is an in-memory document service for demos and tests.
//
// Documents receive their OCR text and summary a few seconds after they are
// created, so clients see the same "processing, then ready" behavior as a
// real OCR pipeline.
package mockdms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// document is one stored document and the time its text becomes available.
type document struct {
	id          int
	title       string
	contentType string
	fileSize    int64
	uploadedAt  time.Time
	readyAt     time.Time
}

// Service is the mock document API.
type Service struct {
	mu     sync.Mutex
	docs   map[int]*document
	nextID int

	minDelay    time.Duration
	maxDelay    time.Duration
	failureRate float64
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a [Service].
type Option func(*Service)

// WithProcessingDelay sets the range a new document waits before its text
// is ready.
func WithProcessingDelay(min, max time.Duration) Option {
	return func(s *Service) {
		s.minDelay = min
		s.maxDelay = max
	}
}

// WithFailureRate makes that fraction of text queries fail with 503.
func WithFailureRate(rate float64) Option {
	return func(s *Service) {
		s.failureRate = rate
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger used for upload and ready messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a Service. Defaults: text ready after 3-15s, no failures.
func New(opts ...Option) *Service {
	s := &Service{
		docs:     make(map[int]*document),
		nextID:   1,
		minDelay: 3 * time.Second,
		maxDelay: 15 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores a document and returns its id.
func (s *Service) Add(title, contentType string, size int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}

	d := &document{
		id:          s.nextID,
		title:       title,
		contentType: contentType,
		fileSize:    size,
		uploadedAt:  now,
		readyAt:     now.Add(delay),
	}
	s.docs[d.id] = d
	s.nextID++

	s.logger.Info("document uploaded", "id", d.id, "title", title, "ready_in", delay.String())
	return d.id
}

// Handler returns the HTTP API:
//
//	GET  /api/documents               list
//	POST /api/documents               upload {"title", "contentType", "fileSize"}
//	GET  /api/documents/{id}/summary  derived text, or {"status":"processing"}
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents", s.handleList)
	mux.HandleFunc("POST /api/documents", s.handleUpload)
	mux.HandleFunc("GET /api/documents/{id}/summary", s.handleSummary)
	return mux
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	now := s.now()
	list := make([]map[string]any, 0, len(s.docs))
	for _, d := range s.docs {
		list = append(list, d.render(now))
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i]["id"].(int) < list[j]["id"].(int) })
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		ContentType string `json:"contentType"`
		FileSize    int64  `json:"fileSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if req.ContentType == "" {
		req.ContentType = "application/pdf"
	}

	id := s.Add(req.Title, req.ContentType, req.FileSize)

	s.mu.Lock()
	body := s.docs[id].render(s.now())
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, body)
}

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if s.failureRate > 0 && rand.Float64() < s.failureRate {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ocr backend busy"})
		return
	}

	s.mu.Lock()
	d, ok := s.docs[id]
	var body map[string]any
	if ok {
		body = d.render(s.now())
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, ready := body["ocrSummaryText"]; !ready {
		writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             body["id"],
		"ocrSummaryText": body["ocrSummaryText"],
	})
}

// render returns the JSON form of d; text fields appear once ready.
func (d *document) render(now time.Time) map[string]any {
	m := map[string]any{
		"id":          d.id,
		"title":       d.title,
		"contentType": d.contentType,
		"fileSize":    d.fileSize,
		"uploadedAt":  d.uploadedAt.UTC().Format(time.RFC3339),
	}
	if !now.Before(d.readyAt) {
		m["ocrText"] = fmt.Sprintf("Full OCR text of %q.", d.title)
		m["ocrSummaryText"] = fmt.Sprintf("Summary of %s", d.title)
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
