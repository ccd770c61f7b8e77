package audio

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"testing"
	"time"
)

// fakeClock lets tests drive the segmenter's wall clock
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestSegmenter(t *testing.T, clock *fakeClock, duration time.Duration) (*Segmenter, *Store) {
	t.Helper()

	store, err := NewStore(t.TempDir(), "output")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	segmenter, err := NewSegmenter(store, SegmentConfig{
		Duration:   duration,
		Channels:   1,
		SampleRate: 1000,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	return segmenter, store
}

func constantBatch(n int) []float32 {
	batch := make([]float32, n)
	for i := range batch {
		batch[i] = 0.25
	}
	return batch
}

func TestNewSegmenterOpensSegmentZero(t *testing.T) {
	clock := newFakeClock()
	segmenter, store := newTestSegmenter(t, clock, 5*time.Second)

	stats := segmenter.Stats()
	if !stats.SegmentOpen {
		t.Error("New segmenter should have an open segment")
	}
	if stats.CurrentSeq != 0 {
		t.Errorf("Expected current seq 0, got %d", stats.CurrentSeq)
	}
	if _, err := os.Stat(store.Path(0)); err != nil {
		t.Errorf("Expected segment 0 file to exist: %v", err)
	}
}

func TestNewSegmenterValidation(t *testing.T) {
	store, err := NewStore(t.TempDir(), "output")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	tests := []struct {
		name   string
		config SegmentConfig
	}{
		{"zero duration", SegmentConfig{Duration: 0, Channels: 1, SampleRate: 8000}},
		{"zero channels", SegmentConfig{Duration: time.Second, Channels: 0, SampleRate: 8000}},
		{"zero sample rate", SegmentConfig{Duration: time.Second, Channels: 1, SampleRate: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSegmenter(store, tt.config); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if _, err := NewSegmenter(nil, SegmentConfig{Duration: time.Second, Channels: 1, SampleRate: 8000}); err == nil {
		t.Error("Expected error for nil store")
	}
}

func TestSegmenterTwelveSecondsAtFiveSecondThreshold(t *testing.T) {
	clock := newFakeClock()
	segmenter, store := newTestSegmenter(t, clock, 5*time.Second)

	// 120 batches of 100ms (100 samples at 1kHz) = 12s
	var finalized []Segment
	for i := 0; i < 120; i++ {
		clock.Advance(100 * time.Millisecond)
		seg, ok, err := segmenter.OnBatch(constantBatch(100))
		if err != nil {
			t.Fatalf("OnBatch %d failed: %v", i, err)
		}
		if ok {
			finalized = append(finalized, seg)
		}
	}

	if len(finalized) != 2 {
		t.Fatalf("Expected 2 finalized segments, got %d", len(finalized))
	}

	for i, seg := range finalized {
		if seg.Seq != uint64(i) {
			t.Errorf("Segment %d: expected seq %d, got %d", i, i, seg.Seq)
		}
		if seg.Elapsed() != 5*time.Second {
			t.Errorf("Segment %d: expected elapsed 5s, got %v", i, seg.Elapsed())
		}
		if seg.AudioDuration() != 5*time.Second {
			t.Errorf("Segment %d: expected audio duration 5s, got %v", i, seg.AudioDuration())
		}
		if seg.Path != store.Path(uint64(i)) {
			t.Errorf("Segment %d: expected path %s, got %s", i, store.Path(uint64(i)), seg.Path)
		}

		data, err := os.ReadFile(seg.Path)
		if err != nil {
			t.Fatalf("Finalized segment %d missing: %v", i, err)
		}
		info, err := GetWAVInfo(data)
		if err != nil {
			t.Fatalf("Finalized segment %d invalid: %v", i, err)
		}
		if info.NumFrames != 5000 {
			t.Errorf("Segment %d: expected 5000 frames on disk, got %d", i, info.NumFrames)
		}
	}

	stats := segmenter.Stats()
	if !stats.SegmentOpen || stats.CurrentSeq != 2 {
		t.Errorf("Expected segment 2 open, got seq=%d open=%v", stats.CurrentSeq, stats.SegmentOpen)
	}
	if stats.Finalized != 2 {
		t.Errorf("Expected 2 finalized in stats, got %d", stats.Finalized)
	}
	if stats.Batches != 120 {
		t.Errorf("Expected 120 batches in stats, got %d", stats.Batches)
	}

	paths, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("Expected 2 finalized + 1 open segment files, got %d", len(paths))
	}
}

func TestSegmenterSequenceProperties(t *testing.T) {
	threshold := 2 * time.Second
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 20; run++ {
		clock := newFakeClock()
		segmenter, _ := newTestSegmenter(t, clock, threshold)

		var last *Segment
		for i := 0; i < 300; i++ {
			clock.Advance(time.Duration(rng.Intn(400)) * time.Millisecond)
			seg, ok, err := segmenter.OnBatch(constantBatch(1 + rng.Intn(64)))
			if err != nil {
				t.Fatalf("run %d: OnBatch failed: %v", run, err)
			}

			stats := segmenter.Stats()
			if !stats.SegmentOpen {
				t.Fatalf("run %d: no segment open after batch %d", run, i)
			}

			if !ok {
				continue
			}
			if seg.Elapsed() < threshold {
				t.Errorf("run %d: segment %d finalized after %v, below threshold", run, seg.Seq, seg.Elapsed())
			}
			if last != nil && seg.Seq != last.Seq+1 {
				t.Errorf("run %d: expected seq %d after %d, got %d", run, last.Seq+1, last.Seq, seg.Seq)
			}
			if last == nil && seg.Seq != 0 {
				t.Errorf("run %d: first segment should be 0, got %d", run, seg.Seq)
			}
			if stats.CurrentSeq != seg.Seq+1 {
				t.Errorf("run %d: expected open seq %d, got %d", run, seg.Seq+1, stats.CurrentSeq)
			}
			s := seg
			last = &s
		}
	}
}

func TestSegmenterOpenFailureKeepsSequenceGapFree(t *testing.T) {
	clock := newFakeClock()
	segmenter, store := newTestSegmenter(t, clock, time.Second)

	if err := os.RemoveAll(store.Dir()); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	// Segment 0 finalizes; opening segment 1 fails
	clock.Advance(time.Second)
	seg, ok, err := segmenter.OnBatch(constantBatch(10))
	if !ok || seg.Seq != 0 {
		t.Fatalf("Expected segment 0 to finalize, got ok=%v seq=%d", ok, seg.Seq)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "open" {
		t.Fatalf("Expected open StorageError, got %v", err)
	}
	if segmenter.Stats().SegmentOpen {
		t.Error("No segment should be open after a failed open")
	}

	// Still failing: batch is dropped
	_, ok, err = segmenter.OnBatch(constantBatch(10))
	if ok || err == nil {
		t.Errorf("Expected dropped batch with error, got ok=%v err=%v", ok, err)
	}
	if segmenter.Stats().Dropped != 1 {
		t.Errorf("Expected 1 dropped batch, got %d", segmenter.Stats().Dropped)
	}

	// Storage is back: the retry reuses seq 1
	if err := os.MkdirAll(store.Dir(), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if _, _, err := segmenter.OnBatch(constantBatch(10)); err != nil {
		t.Fatalf("OnBatch after recovery failed: %v", err)
	}
	clock.Advance(time.Second)
	seg, ok, err = segmenter.OnBatch(constantBatch(10))
	if err != nil || !ok {
		t.Fatalf("Expected segment 1 to finalize, got ok=%v err=%v", ok, err)
	}
	if seg.Seq != 1 {
		t.Errorf("Expected seq 1 after recovery, got %d", seg.Seq)
	}
}

func TestSegmenterWriteFailureDiscardsSegment(t *testing.T) {
	clock := newFakeClock()
	segmenter, store := newTestSegmenter(t, clock, time.Second)

	if _, _, err := segmenter.OnBatch(constantBatch(10)); err != nil {
		t.Fatalf("OnBatch failed: %v", err)
	}

	// Fill the data chunk up to the 4 GiB limit so the next write fails
	segmenter.writer.dataBytes = math.MaxUint32 - wavHeaderSize

	_, ok, err := segmenter.OnBatch(constantBatch(10))
	if ok {
		t.Fatal("No segment should be finalized by a failed write")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "write" {
		t.Fatalf("Expected write StorageError, got %v", err)
	}
	if storageErr.Path != store.Path(0) {
		t.Errorf("Expected error for %s, got %s", store.Path(0), storageErr.Path)
	}
	if _, err := os.Stat(store.Path(0)); !os.IsNotExist(err) {
		t.Errorf("Partial segment should be removed, stat returned %v", err)
	}

	stats := segmenter.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Expected 1 dropped batch, got %d", stats.Dropped)
	}
	if stats.SegmentOpen {
		t.Error("No segment should be open after a failed write")
	}
	if stats.CurrentSeq != 0 {
		t.Errorf("Expected current seq 0, got %d", stats.CurrentSeq)
	}

	// The next batch reopens the same sequence number
	if _, _, err := segmenter.OnBatch(constantBatch(10)); err != nil {
		t.Fatalf("OnBatch after failure failed: %v", err)
	}
	clock.Advance(time.Second)
	seg, ok, err := segmenter.OnBatch(constantBatch(10))
	if err != nil || !ok {
		t.Fatalf("Expected a finalized segment, got ok=%v err=%v", ok, err)
	}
	if seg.Seq != 0 {
		t.Errorf("Expected seq 0 after the discarded segment, got %d", seg.Seq)
	}
	if seg.Frames != 20 {
		t.Errorf("Expected 20 frames in the reopened segment, got %d", seg.Frames)
	}
}

func TestSegmenterClose(t *testing.T) {
	clock := newFakeClock()
	segmenter, store := newTestSegmenter(t, clock, 5*time.Second)

	if _, _, err := segmenter.OnBatch(constantBatch(500)); err != nil {
		t.Fatalf("OnBatch failed: %v", err)
	}

	if err := segmenter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if segmenter.Stats().SegmentOpen {
		t.Error("No segment should be open after Close")
	}

	data, err := os.ReadFile(store.Path(0))
	if err != nil {
		t.Fatalf("Partial segment missing after Close: %v", err)
	}
	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("Partial segment invalid: %v", err)
	}
	if info.NumFrames != 500 {
		t.Errorf("Expected 500 frames, got %d", info.NumFrames)
	}

	if _, _, err := segmenter.OnBatch(constantBatch(1)); !errors.Is(err, ErrSegmenterClosed) {
		t.Errorf("Expected ErrSegmenterClosed, got %v", err)
	}
	if err := segmenter.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}
