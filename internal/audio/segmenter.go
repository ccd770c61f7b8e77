package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultSegmentDuration is the time budget of one segment
const DefaultSegmentDuration = 5 * time.Second

// ErrSegmenterClosed is returned by OnBatch after Close
var ErrSegmenterClosed = errors.New("segmenter closed")

// Segment is a finalized, persisted run of captured samples
type Segment struct {
	Seq        uint64    `json:"seq"`
	Path       string    `json:"path"`
	Frames     int64     `json:"frames"`
	Bytes      int64     `json:"bytes"`
	SampleRate int       `json:"sample_rate"`
	Opened     time.Time `json:"opened"`
	Closed     time.Time `json:"closed"`
}

// Elapsed returns the wall-clock time the segment was open
func (s Segment) Elapsed() time.Duration {
	return s.Closed.Sub(s.Opened)
}

// AudioDuration returns the duration of the samples actually written
func (s Segment) AudioDuration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Frames) * time.Second / time.Duration(s.SampleRate)
}

// SegmentConfig contains configuration for the segmenter
type SegmentConfig struct {
	Duration   time.Duration
	Channels   int
	SampleRate int
	Clock      func() time.Time // defaults to time.Now
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	CurrentSeq  uint64 `json:"current_seq"`
	SegmentOpen bool   `json:"segment_open"`
	Batches     uint64 `json:"batches"`
	Finalized   uint64 `json:"finalized"`
	Dropped     uint64 `json:"dropped_batches"`
}

// Segmenter owns the open segment and cuts the sample stream into
// fixed-duration segments. OnBatch and Close must only be called from the
// capture context; Stats is safe from any goroutine.
type Segmenter struct {
	config SegmentConfig
	store  *Store
	now    func() time.Time

	writer *WAVWriter
	seq    uint64
	opened time.Time
	closed bool

	currentSeq atomic.Uint64
	segOpen    atomic.Bool
	batches    atomic.Uint64
	finalized  atomic.Uint64
	dropped    atomic.Uint64
}

// NewSegmenter creates a segmenter and opens segment 0
func NewSegmenter(store *Store, config SegmentConfig) (*Segmenter, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config.Duration <= 0 {
		return nil, fmt.Errorf("segment duration must be positive, got %v", config.Duration)
	}
	if config.Channels <= 0 {
		return nil, fmt.Errorf("channels must be positive, got %d", config.Channels)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	now := config.Clock
	if now == nil {
		now = time.Now
	}

	s := &Segmenter{
		config: config,
		store:  store,
		now:    now,
	}

	if err := s.openSegment(); err != nil {
		return nil, err
	}

	return s, nil
}

// OnBatch appends batch to the open segment. When the segment has been open
// for at least the configured duration it is finalized, its successor is
// opened and the finalized segment is returned with ok set.
//
// A finalized segment may be returned together with an error opening its
// successor; the next batch retries the open with the same sequence number.
// A failed write discards the open segment so that a partial file is never
// dispatched.
func (s *Segmenter) OnBatch(batch []float32) (seg Segment, ok bool, err error) {
	if s.closed {
		return Segment{}, false, ErrSegmenterClosed
	}
	s.batches.Add(1)

	if s.writer == nil {
		if err := s.openSegment(); err != nil {
			s.dropped.Add(1)
			return Segment{}, false, err
		}
	}

	if err := s.writer.WriteSamples(batch); err != nil {
		path := s.store.Path(s.seq)
		s.discard()
		s.dropped.Add(1)
		return Segment{}, false, &StorageError{Op: "write", Path: path, Err: err}
	}

	now := s.now()
	if now.Sub(s.opened) < s.config.Duration {
		return Segment{}, false, nil
	}

	seg, err = s.finalize(now)
	if err != nil {
		return Segment{}, false, err
	}

	s.seq++
	s.currentSeq.Store(s.seq)

	if err := s.openSegment(); err != nil {
		return seg, true, err
	}
	return seg, true, nil
}

// Close finalizes the open segment without emitting it. The file stays in
// storage until it is purged.
func (s *Segmenter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.writer == nil {
		return nil
	}

	path := s.store.Path(s.seq)
	err := s.writer.Close()
	s.writer = nil
	s.segOpen.Store(false)
	if err != nil {
		return &StorageError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Stats returns current segmenter statistics
func (s *Segmenter) Stats() SegmenterStats {
	return SegmenterStats{
		CurrentSeq:  s.currentSeq.Load(),
		SegmentOpen: s.segOpen.Load(),
		Batches:     s.batches.Load(),
		Finalized:   s.finalized.Load(),
		Dropped:     s.dropped.Load(),
	}
}

func (s *Segmenter) openSegment() error {
	w, err := s.store.Create(s.seq, s.config.Channels, s.config.SampleRate)
	if err != nil {
		return err
	}

	s.writer = w
	s.opened = s.now()
	s.currentSeq.Store(s.seq)
	s.segOpen.Store(true)
	return nil
}

func (s *Segmenter) finalize(now time.Time) (Segment, error) {
	path := s.store.Path(s.seq)
	seg := Segment{
		Seq:        s.seq,
		Path:       path,
		Frames:     s.writer.Frames(),
		Bytes:      s.writer.Size(),
		SampleRate: s.config.SampleRate,
		Opened:     s.opened,
		Closed:     now,
	}

	err := s.writer.Close()
	s.writer = nil
	s.segOpen.Store(false)
	if err != nil {
		_ = s.store.Remove(path)
		return Segment{}, &StorageError{Op: "close", Path: path, Err: err}
	}

	s.finalized.Add(1)
	return seg, nil
}

// discard drops the open segment; the same sequence number is reused
func (s *Segmenter) discard() {
	if s.writer == nil {
		return
	}
	_ = s.writer.Close()
	_ = s.store.Remove(s.store.Path(s.seq))
	s.writer = nil
	s.segOpen.Store(false)
}
