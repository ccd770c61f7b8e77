package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice translator
type Metrics struct {
	// Capture metrics
	CaptureBatches prometheus.Counter
	CaptureErrors  prometheus.Counter

	// Segment metrics
	SegmentsFinalized prometheus.Counter
	SegmentDuration   prometheus.Histogram
	SegmentSize       prometheus.Histogram
	SegmentsDeleted   prometheus.Counter
	SegmentsPurged    prometheus.Counter
	StorageErrors     *prometheus.CounterVec
	QueueDepth        prometheus.Gauge

	// Translation metrics
	TranslationRequests  prometheus.Counter
	TranslationSuccesses prometheus.Counter
	TranslationFailures  prometheus.Counter
	TranslationDuration  prometheus.Histogram

	// Speech metrics
	SpeechRequests prometheus.Counter
	SpeechFailures prometheus.Counter
	SpeechDuration prometheus.Histogram
	ActiveSpeech   prometheus.Gauge

	// Remote service retries, by service
	ServiceRetries *prometheus.CounterVec

	// Pipeline metrics
	StageFailures *prometheus.CounterVec
	Terminations  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg registers with the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		CaptureBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_capture_batches_total",
			Help: "Total number of sample batches delivered by the capture device",
		}),
		CaptureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_capture_errors_total",
			Help: "Total number of errors raised in the capture context",
		}),

		// Segment metrics
		SegmentsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_segments_finalized_total",
			Help: "Total number of finalized audio segments",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_segment_duration_seconds",
			Help:    "Wall-clock duration of finalized segments",
			Buckets: prometheus.LinearBuckets(1, 1, 10), // 1s to 10s
		}),
		SegmentSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_segment_size_bytes",
			Help:    "Size of finalized segment files in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 8), // 64KB to ~8MB
		}),
		SegmentsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_segments_deleted_total",
			Help: "Total number of segment files deleted after translation",
		}),
		SegmentsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_segments_purged_total",
			Help: "Total number of segment files removed by storage purges",
		}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_storage_errors_total",
			Help: "Total number of segment storage errors",
		}, []string{"op"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translator_queue_depth",
			Help: "Current number of finalized segments awaiting translation",
		}),

		// Translation metrics
		TranslationRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_requests_total",
			Help: "Total number of segments submitted for translation",
		}),
		TranslationSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_successes_total",
			Help: "Total number of successful translations",
		}),
		TranslationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_failures_total",
			Help: "Total number of failed translations",
		}),
		TranslationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_translation_duration_seconds",
			Help:    "Duration of translation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		// Speech metrics
		SpeechRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_speech_requests_total",
			Help: "Total number of synthesize-and-play tasks launched",
		}),
		SpeechFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_speech_failures_total",
			Help: "Total number of failed synthesize-and-play tasks",
		}),
		SpeechDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "translator_speech_duration_seconds",
			Help:    "Duration of synthesize-and-play tasks",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~30s
		}),
		ActiveSpeech: factory.NewGauge(prometheus.GaugeOpts{
			Name: "translator_active_speech_tasks",
			Help: "Current number of synthesize-and-play tasks in flight",
		}),

		ServiceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_service_retries_total",
			Help: "Total number of remote service request retries",
		}, []string{"service"}),

		// Pipeline metrics
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		}, []string{"stage"}),
		Terminations: factory.NewCounter(prometheus.CounterOpts{
			Name: "translator_terminations_total",
			Help: "Total number of stop phrases recognized",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureBatch increments the capture batches counter
func (m *Metrics) RecordCaptureBatch() {
	m.CaptureBatches.Inc()
}

// RecordCaptureError increments the capture errors counter
func (m *Metrics) RecordCaptureError() {
	m.CaptureErrors.Inc()
}

// RecordSegmentFinalized records a finalized segment
func (m *Metrics) RecordSegmentFinalized(durationSeconds float64, sizeBytes int64) {
	m.SegmentsFinalized.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.SegmentSize.Observe(float64(sizeBytes))
}

// RecordSegmentDeleted increments the deleted segments counter
func (m *Metrics) RecordSegmentDeleted() {
	m.SegmentsDeleted.Inc()
}

// RecordSegmentsPurged adds n to the purged segments counter
func (m *Metrics) RecordSegmentsPurged(n int) {
	m.SegmentsPurged.Add(float64(n))
}

// RecordStorageError records a storage error for the given operation
func (m *Metrics) RecordStorageError(op string) {
	m.StorageErrors.WithLabelValues(op).Inc()
}

// SetQueueDepth sets the current queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordTranslationRequest increments translation requests counter
func (m *Metrics) RecordTranslationRequest() {
	m.TranslationRequests.Inc()
}

// RecordTranslationSuccess records a successful translation
func (m *Metrics) RecordTranslationSuccess(durationSeconds float64) {
	m.TranslationSuccesses.Inc()
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordTranslationFailure records a failed translation
func (m *Metrics) RecordTranslationFailure(durationSeconds float64) {
	m.TranslationFailures.Inc()
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordSpeechStarted records a launched synthesize-and-play task
func (m *Metrics) RecordSpeechStarted() {
	m.SpeechRequests.Inc()
	m.ActiveSpeech.Inc()
}

// RecordSpeechFinished records the end of a synthesize-and-play task
func (m *Metrics) RecordSpeechFinished(durationSeconds float64, failed bool) {
	m.ActiveSpeech.Dec()
	m.SpeechDuration.Observe(durationSeconds)
	if failed {
		m.SpeechFailures.Inc()
	}
}

// RecordRetry increments the retry counter of a remote service
func (m *Metrics) RecordRetry(service string) {
	m.ServiceRetries.WithLabelValues(service).Inc()
}

// RecordStageFailure records a failed pipeline stage
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordTermination increments the terminations counter
func (m *Metrics) RecordTermination() {
	m.Terminations.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
