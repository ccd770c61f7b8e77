package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsPrivateRegistry(t *testing.T) {
	// Two instances on separate registries must not collide
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.RecordTranslationRequest()
	if got := testutil.ToFloat64(second.TranslationRequests); got != 0 {
		t.Errorf("Expected independent counters, got %f", got)
	}
}

func TestRecordSpeechLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSpeechStarted()
	m.RecordSpeechStarted()
	if got := testutil.ToFloat64(m.ActiveSpeech); got != 2 {
		t.Errorf("Expected 2 active speech tasks, got %f", got)
	}

	m.RecordSpeechFinished(1.5, false)
	m.RecordSpeechFinished(0.5, true)

	if got := testutil.ToFloat64(m.ActiveSpeech); got != 0 {
		t.Errorf("Expected 0 active speech tasks, got %f", got)
	}
	if got := testutil.ToFloat64(m.SpeechRequests); got != 2 {
		t.Errorf("Expected 2 speech requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.SpeechFailures); got != 1 {
		t.Errorf("Expected 1 speech failure, got %f", got)
	}
}

func TestLabelledCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRetry("translation")
	m.RecordRetry("translation")
	m.RecordRetry("speech")
	m.RecordStorageError("remove")
	m.RecordStageFailure("translate")

	if got := testutil.ToFloat64(m.ServiceRetries.WithLabelValues("translation")); got != 2 {
		t.Errorf("Expected 2 translation retries, got %f", got)
	}
	if got := testutil.ToFloat64(m.ServiceRetries.WithLabelValues("speech")); got != 1 {
		t.Errorf("Expected 1 speech retry, got %f", got)
	}
	if got := testutil.ToFloat64(m.StorageErrors.WithLabelValues("remove")); got != 1 {
		t.Errorf("Expected 1 remove error, got %f", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("translate")); got != 1 {
		t.Errorf("Expected 1 translate failure, got %f", got)
	}
}

func TestSegmentCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSegmentFinalized(5.0, 960044)
	m.RecordSegmentDeleted()
	m.RecordSegmentsPurged(3)
	m.SetQueueDepth(4)

	if got := testutil.ToFloat64(m.SegmentsFinalized); got != 1 {
		t.Errorf("Expected 1 finalized segment, got %f", got)
	}
	if got := testutil.ToFloat64(m.SegmentsPurged); got != 3 {
		t.Errorf("Expected 3 purged segments, got %f", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 4 {
		t.Errorf("Expected queue depth 4, got %f", got)
	}
}
