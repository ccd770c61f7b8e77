package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lavryniukk/voice-translator/internal/audio"
	"github.com/Lavryniukk/voice-translator/internal/config"
	"github.com/Lavryniukk/voice-translator/internal/metrics"
	"github.com/Lavryniukk/voice-translator/internal/openai"
	"github.com/Lavryniukk/voice-translator/internal/pipeline"
)

const (
	serviceName    = "voice-translator"
	serviceVersion = "1.0.0"
)

// Sources are the components the monitoring API reports on
type Sources struct {
	Pipeline    interface{ Stats() pipeline.DriverStats }
	Segmenter   interface{ Stats() audio.SegmenterStats }
	Translation interface{ GetStats() openai.ClientStats }
	Speech      interface{ GetStats() openai.ClientStats }
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	sources  Sources
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	runID    string

	startTime time.Time
}

// NewHTTPServer creates a new monitoring server. gatherer backs /metrics.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sources Sources, m *metrics.Metrics, gatherer prometheus.Gatherer, runID string) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sources:   sources,
		metrics:   m,
		gatherer:  gatherer,
		runID:     runID,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the route multiplexer
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/services", h.withMetrics("/stats/services", h.handleServiceStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
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

// Start binds the listen address and serves in the background
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP monitoring server",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP monitoring server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	driverStats := h.sources.Pipeline.Stats()
	segmenterStats := h.sources.Segmenter.Stats()

	status := "healthy"
	if driverStats.Terminated {
		status = "terminating"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"run_id":    h.runID,
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"capture": map[string]interface{}{
				"current_seq":  segmenterStats.CurrentSeq,
				"segment_open": segmenterStats.SegmentOpen,
				"finalized":    segmenterStats.Finalized,
				"dropped":      segmenterStats.Dropped,
			},
			"pipeline": map[string]interface{}{
				"queue_depth":   driverStats.QueueDepth,
				"translated":    driverStats.Translated,
				"active_speech": driverStats.ActiveSpeech,
				"terminated":    driverStats.Terminated,
			},
		},
	}

	writeJSON(w, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Config never holds the API key
	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"segment_duration": h.config.Audio.SegmentDuration,
			"storage_dir":      h.config.Audio.StorageDir,
			"file_prefix":      h.config.Audio.FilePrefix,
			"channels":         h.config.Audio.Channels,
			"sample_rate":      h.config.Audio.SampleRate,
			"purge_on_start":   h.config.Audio.PurgeOnStart,
		},
		"translation": map[string]interface{}{
			"endpoint":    h.config.Translation.Endpoint,
			"model":       h.config.Translation.Model,
			"timeout":     h.config.Translation.Timeout,
			"max_retries": h.config.Translation.MaxRetries,
		},
		"speech": map[string]interface{}{
			"endpoint":             h.config.Speech.Endpoint,
			"model":                h.config.Speech.Model,
			"voice":                h.config.Speech.Voice,
			"timeout":              h.config.Speech.Timeout,
			"max_retries":          h.config.Speech.MaxRetries,
			"playback_sample_rate": h.config.Speech.PlaybackSampleRate,
		},
		"pipeline": map[string]interface{}{
			"stop_phrase":   h.config.Pipeline.StopPhrase,
			"stop_match":    h.config.Pipeline.StopMatch,
			"on_error":      h.config.Pipeline.OnError,
			"drain_timeout": h.config.Pipeline.DrainTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"run_id":    h.runID,
		"capture":   h.sources.Segmenter.Stats(),
		"pipeline":  h.sources.Pipeline.Stats(),
		"services":  h.serviceStats(),
	}

	writeJSON(w, stats)
}

// handleServiceStats implements the /stats/services endpoint
func (h *HTTPServer) handleServiceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.serviceStats())
}

func (h *HTTPServer) serviceStats() map[string]interface{} {
	return map[string]interface{}{
		"translation": h.sources.Translation.GetStats().Translation,
		"speech":      h.sources.Speech.GetStats().Speech,
	}
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
		"service": "Voice Translator",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":               "API documentation",
			"GET /health":         "Service health check",
			"GET /config":         "Get service configuration",
			"GET /stats":          "Get capture, pipeline and service statistics",
			"GET /stats/services": "Get translation and speech service statistics",
			"GET /metrics":        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, apiDoc)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
