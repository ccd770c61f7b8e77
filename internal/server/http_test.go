package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Lavryniukk/voice-translator/internal/audio"
	"github.com/Lavryniukk/voice-translator/internal/config"
	"github.com/Lavryniukk/voice-translator/internal/metrics"
	"github.com/Lavryniukk/voice-translator/internal/openai"
	"github.com/Lavryniukk/voice-translator/internal/pipeline"
)

type stubPipeline struct{ stats pipeline.DriverStats }

func (s stubPipeline) Stats() pipeline.DriverStats { return s.stats }

type stubSegmenter struct{ stats audio.SegmenterStats }

func (s stubSegmenter) Stats() audio.SegmenterStats { return s.stats }

type stubClient struct{ stats openai.ClientStats }

func (s stubClient) GetStats() openai.ClientStats { return s.stats }

func newTestServer(t *testing.T, terminated bool) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	sources := Sources{
		Pipeline: stubPipeline{pipeline.DriverStats{
			Translated: 4,
			QueueDepth: 1,
			Terminated: terminated,
		}},
		Segmenter: stubSegmenter{audio.SegmenterStats{CurrentSeq: 5, SegmentOpen: true, Finalized: 5}},
		Translation: stubClient{openai.ClientStats{
			Translation: openai.ServiceStats{TotalRequests: 4, SuccessRequests: 4},
		}},
		Speech: stubClient{openai.ClientStats{
			Speech: openai.ServiceStats{TotalRequests: 3, SuccessRequests: 2, FailedRequests: 1},
		}},
	}

	h := NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0}, logger, config.Default(), sources, m, reg, "run-1")
	return h, m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h, m := newTestServer(t, false)

	rec := get(t, h.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", body["status"])
	}
	if body["run_id"] != "run-1" {
		t.Errorf("Expected run_id run-1, got %v", body["run_id"])
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("Expected 1 recorded request, got %f", got)
	}
}

func TestHealthReportsTermination(t *testing.T) {
	h, _ := newTestServer(t, true)

	var body map[string]interface{}
	json.Unmarshal(get(t, h.Handler(), "/health").Body.Bytes(), &body)
	if body["status"] != "terminating" {
		t.Errorf("Expected status terminating, got %v", body["status"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, false)

	rec := get(t, h.Handler(), "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Capture  audio.SegmenterStats `json:"capture"`
		Pipeline pipeline.DriverStats `json:"pipeline"`
		Services struct {
			Translation openai.ServiceStats `json:"translation"`
			Speech      openai.ServiceStats `json:"speech"`
		} `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}

	if body.Capture.CurrentSeq != 5 {
		t.Errorf("Expected current seq 5, got %d", body.Capture.CurrentSeq)
	}
	if body.Pipeline.Translated != 4 {
		t.Errorf("Expected 4 translated, got %d", body.Pipeline.Translated)
	}
	if body.Services.Translation.TotalRequests != 4 {
		t.Errorf("Expected 4 translation requests, got %d", body.Services.Translation.TotalRequests)
	}
	if body.Services.Speech.FailedRequests != 1 {
		t.Errorf("Expected 1 failed speech request, got %d", body.Services.Speech.FailedRequests)
	}
}

func TestConfigEndpointHasNoCredentials(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "sk-secret")
	h, _ := newTestServer(t, false)

	rec := get(t, h.Handler(), "/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-secret") {
		t.Error("Config endpoint must not expose the API key")
	}
	if !strings.Contains(rec.Body.String(), `"stop_phrase":"finish"`) {
		t.Errorf("Expected pipeline settings in config, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, m := newTestServer(t, false)
	m.RecordSegmentFinalized(5, 1000)

	rec := get(t, h.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "translator_segments_finalized_total 1") {
		t.Error("Expected segment counter in metrics output")
	}
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	h, m := newTestServer(t, false)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	if rec := get(t, h.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	if got := testutil.ToFloat64(m.HTTPErrors.WithLabelValues("POST", "/stats", "client_error")); got != 1 {
		t.Errorf("Expected 1 client error, got %f", got)
	}
}
