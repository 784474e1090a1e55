package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/config"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/coordinator"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/metrics"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/notes"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/session"
)

// Controller is the session control surface the API exposes. The
// coordinator implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GenerateNotes(ctx context.Context) (session.Notes, error)
	State() session.Session
}

// HTTPServer provides the loopback HTTP API for session control and
// monitoring.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	controller Controller
	gatherer   prometheus.Gatherer
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server. The bind address comes
// from the validated configuration, which only admits loopback
// addresses.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, controller Controller, gatherer prometheus.Gatherer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		controller: controller,
		gatherer:   gatherer,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // notes generation can outlive any sane write timeout
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the configured HTTP handler.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session control and inspection
	mux.HandleFunc("/session", h.withMetrics("/session", h.handleSession))
	mux.HandleFunc("/session/start", h.withMetrics("/session/start", h.handleStart))
	mux.HandleFunc("/session/stop", h.withMetrics("/session/stop", h.handleStop))
	mux.HandleFunc("/session/notes", h.withMetrics("/session/notes", h.handleNotes))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.controller.State()
	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "ivey-meeting-notetaker",
			"version": "1.0.0",
		},
		"session": map[string]interface{}{
			"state":   string(sess.State),
			"entries": len(sess.Entries),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSession implements GET /session: the full session snapshot,
// transcript included.
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.controller.State()

	entries := make([]map[string]interface{}, 0, len(sess.Entries))
	for _, e := range sess.Entries {
		entries = append(entries, map[string]interface{}{
			"sequence":  e.Sequence,
			"speaker":   e.Speaker,
			"text":      e.Text,
			"timestamp": e.Timestamp.UTC(),
		})
	}

	response := map[string]interface{}{
		"id":         sess.ID,
		"state":      string(sess.State),
		"start_time": sess.StartTime.UTC(),
		"entries":    entries,
	}
	if sess.Notes != nil {
		response["notes"] = map[string]interface{}{
			"text":         sess.Notes.Text,
			"generated_at": sess.Notes.GeneratedAt.UTC(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStart implements POST /session/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Start(r.Context()); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}

	h.writeState(w)
}

// handleStop implements POST /session/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Stop(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeState(w)
}

// handleNotes implements POST /session/notes. The request blocks until
// the summarization endpoint replies; failures map to distinct status
// codes so the caller can tell "nothing to summarize" from "endpoint
// down".
func (h *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, err := h.controller.GenerateNotes(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrEmptySession):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, notes.ErrEndpointUnreachable):
			h.writeError(w, http.StatusBadGateway, err)
		case errors.Is(err, notes.ErrEmptyResponse):
			h.writeError(w, http.StatusBadGateway, err)
		default:
			h.writeError(w, http.StatusConflict, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notes":        n.Text,
		"generated_at": n.GeneratedAt.UTC(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":           h.config.Audio.SampleRate,
			"chunk_interval":        h.config.Audio.ChunkInterval,
			"min_chunk_duration":    h.config.Audio.MinChunkDuration,
			"silence_rms_threshold": h.config.Audio.SilenceRMSThreshold,
		},
		"speech": map[string]interface{}{
			"endpoint":    h.config.Speech.Endpoint,
			"timeout":     h.config.Speech.Timeout,
			"max_retries": h.config.Speech.MaxRetries,
			"language":    h.config.Speech.Language,
		},
		"speaker": map[string]interface{}{
			"poll_interval": h.config.Speaker.PollInterval,
			"default_label": h.config.Speaker.DefaultLabel,
		},
		"notes": map[string]interface{}{
			"endpoint":         h.config.Notes.Endpoint,
			"model":            h.config.Notes.Model,
			"timeout":          h.config.Notes.Timeout,
			"max_prompt_chars": h.config.Notes.MaxPromptChars,
		},
		"storage": map[string]interface{}{
			"path": h.config.Storage.Path,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Ivey Meeting Note Taker",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"GET /health":             "Service health check",
			"GET /session":            "Current session snapshot with transcript",
			"POST /session/start":     "Start a new capture session",
			"POST /session/stop":      "Stop the active capture session",
			"POST /session/notes":     "Generate meeting notes from the transcript",
			"GET /config":             "Get service configuration",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

func (h *HTTPServer) writeState(w http.ResponseWriter) {
	sess := h.controller.State()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      sess.ID,
		"state":   string(sess.State),
		"entries": len(sess.Entries),
	})
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}
