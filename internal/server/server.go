package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/docwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// sseBufferSize is the number of pending events per SSE client.
	// Events beyond this are dropped for that client only.
	sseBufferSize = 100

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "docwatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Controller drives poll loops on behalf of HTTP clients.
//
// *poller.Scheduler implements Controller.
type Controller interface {
	StartBackground(key store.Key) bool
	Release(key store.Key)
	TriggerOnce(ctx context.Context, key store.Key, force bool) (store.PollState, bool)
}

// Server handles HTTP requests for the docwatch dashboard and API.
//
// Routes:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/states: Returns all current poll states as JSON
//   - GET /api/sse: Server-Sent Events stream of state transitions
//   - GET /api/documents/{id}: Returns one document's state
//   - POST /api/documents/{id}/watch: Starts the background loop
//   - DELETE /api/documents/{id}/watch: Stops the loop and discards state
//   - POST /api/documents/{id}/refresh: Runs one immediate attempt
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	controller Controller
	port       int
	httpServer *http.Server
	listener   net.Listener
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding per-document poll state
//   - ctl: Controller for watch, release and refresh requests (may be nil for read-only)
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "docwatch" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, ctl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      st,
		controller: ctl,
		port:       port,
		assets:     assets,
		title:      title,
		logger:     logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/states", s.handleStates)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/documents/{id}", s.handleState)

	if s.controller != nil {
		mux.HandleFunc("POST /api/documents/{id}/watch", s.handleWatch)
		mux.HandleFunc("DELETE /api/documents/{id}/watch", s.handleRelease)
		mux.HandleFunc("POST /api/documents/{id}/refresh", s.handleRefresh)
	}

	if s.assets != nil {
		mux.HandleFunc("GET /", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until ctx is cancelled, then shuts down
// gracefully with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// title is HTML-escaped before substitution
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleStates returns all current states as JSON.
func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

// handleState returns one document's state. Unknown documents are reported idle.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, store.Entry{Key: key, PollState: s.store.Get(key)})
}

// watchResponse is the body returned by the watch endpoint.
type watchResponse struct {
	store.Entry
	Started bool `json:"started"`
}

// handleWatch starts the background loop for a document.
//
// Responds 202 when a loop was started and 200 when one was already running
// or the document is already resolved.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	started := s.controller.StartBackground(key)
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
		s.logger.Info("watch requested", "key", string(key))
	}
	s.writeJSON(w, status, watchResponse{
		Entry:   store.Entry{Key: key, PollState: s.store.Get(key)},
		Started: started,
	})
}

// handleRelease stops a document's loop and discards its state.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	s.controller.Release(key)
	s.logger.Info("watch released", "key", string(key))
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh runs one immediate attempt for a document.
//
// With ?force=true a resolved document is polled again. Responds 200 with
// the outcome when an attempt ran and 409 with the current state when the
// request was coalesced with in-flight work.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "force must be a boolean", http.StatusBadRequest)
			return
		}
		force = parsed
	}

	state, ran := s.controller.TriggerOnce(r.Context(), key, force)
	status := http.StatusOK
	if !ran {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, store.Entry{Key: key, PollState: state})
}

// handleSSE streams state transitions via Server-Sent Events.
//
// The handler sends the current snapshot first, then every transition.
// Store listeners must not block, so transitions are pushed into a buffered
// channel and dropped for this client when it is full. Write deadlines keep
// a slow or disconnected client from pinning the handler.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := make(chan store.Entry, sseBufferSize)
	unsubscribe := s.store.Subscribe(func(key store.Key, state store.PollState) {
		select {
		case ch <- store.Entry{Key: key, PollState: state}:
		default:
			s.logger.Debug("sse client lagging, event dropped", "key", string(key))
		}
	})
	defer unsubscribe()

	for _, entry := range s.store.GetAll() {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case entry := <-ch:
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// writeJSON encodes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// pathKey reads the {id} path value, answering 400 when it is blank.
func pathKey(w http.ResponseWriter, r *http.Request) (store.Key, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "document id is required", http.StatusBadRequest)
		return "", false
	}
	return store.Key(id), true
}
