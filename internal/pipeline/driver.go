package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Lavryniukk/voice-translator/internal/audio"
	"github.com/Lavryniukk/voice-translator/internal/metrics"
)

// errEmptySegment marks a segment file without a single frame
var errEmptySegment = errors.New("segment holds no audio")

// Options contains the collaborators and settings of a Driver
type Options struct {
	Queue       *Queue
	Store       SegmentStore
	Translator  Translator
	Speaker     Speaker
	Termination *Termination
	StopPhrase  *StopPhrase
	ErrorPolicy ErrorPolicy

	// SpeakTimeout bounds one synthesize-and-play task; zero means no bound
	SpeakTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DriverStats represents pipeline driver statistics
type DriverStats struct {
	Received      uint64 `json:"segments_received"`
	Translated    uint64 `json:"segments_translated"`
	Deleted       uint64 `json:"segments_deleted"`
	Skipped       uint64 `json:"segments_skipped"`
	Spoken        uint64 `json:"speech_completed"`
	SpeakFailures uint64 `json:"speech_failures"`
	ActiveSpeech  int    `json:"speech_active"`
	QueueDepth    int    `json:"queue_depth"`
	Terminated    bool   `json:"terminated"`
	ErrorPolicy   string `json:"error_policy"`
}

// Driver consumes finalized segments in order: each one is translated, its
// speech is launched in the background and its file is deleted before the
// next segment is taken.
type Driver struct {
	queue      *Queue
	store      SegmentStore
	translator Translator
	speaker    Speaker
	term       *Termination
	stop       *StopPhrase
	policy     ErrorPolicy

	speakTimeout time.Duration
	speech       *detachedGroup

	metrics *metrics.Metrics
	logger  *slog.Logger

	received      atomic.Uint64
	translated    atomic.Uint64
	deleted       atomic.Uint64
	skipped       atomic.Uint64
	spoken        atomic.Uint64
	speakFailures atomic.Uint64
}

// NewDriver creates a pipeline driver
func NewDriver(opts Options) (*Driver, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("segment store cannot be nil")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator cannot be nil")
	}
	if opts.Speaker == nil {
		return nil, fmt.Errorf("speaker cannot be nil")
	}
	if opts.Termination == nil {
		return nil, fmt.Errorf("termination flag cannot be nil")
	}

	stop := opts.StopPhrase
	if stop == nil {
		var err error
		if stop, err = NewStopPhrase(DefaultStopPhrase, MatchWord); err != nil {
			return nil, err
		}
	}

	policy := opts.ErrorPolicy
	if policy == "" {
		policy = PolicyHalt
	}
	if policy != PolicyHalt && policy != PolicySkip {
		return nil, fmt.Errorf("unknown error policy: %q", policy)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}

	return &Driver{
		queue:        opts.Queue,
		store:        opts.Store,
		translator:   opts.Translator,
		speaker:      opts.Speaker,
		term:         opts.Termination,
		stop:         stop,
		policy:       policy,
		speakTimeout: opts.SpeakTimeout,
		speech:       newDetachedGroup(logger),
		metrics:      m,
		logger:       logger,
	}, nil
}

// Run drives segments until the queue is closed and drained (nil), ctx is
// done (ctx.Err()), the stop phrase is heard (ErrTerminated) or, under the
// halt policy, a stage fails (*StageError).
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Pipeline driver started",
		slog.String("stop_phrase", d.stop.Phrase()),
		slog.String("stop_match", string(d.stop.Mode())),
		slog.String("error_policy", string(d.policy)),
	)

	for {
		if d.term.IsSet() {
			return ErrTerminated
		}

		seg, ok := d.queue.Recv(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.logger.Info("Segment queue drained, pipeline driver stopping")
			return nil
		}

		err := d.drive(ctx, seg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTerminated) {
			return ErrTerminated
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var stageErr *StageError
		if errors.As(err, &stageErr) {
			d.metrics.RecordStageFailure(string(stageErr.Stage))
		}

		if d.policy == PolicySkip {
			d.skipped.Add(1)
			d.logger.Warn("Segment skipped after stage failure",
				slog.Uint64("seq", seg.Seq),
				slog.String("path", seg.Path),
				slog.String("error", err.Error()),
			)
			continue
		}

		d.logger.Error("Pipeline halted after stage failure",
			slog.Uint64("seq", seg.Seq),
			slog.String("path", seg.Path),
			slog.String("error", err.Error()),
		)
		return err
	}
}

// drive translates one segment, launches its speech and deletes its file
func (d *Driver) drive(ctx context.Context, seg audio.Segment) error {
	if d.term.IsSet() {
		return ErrTerminated
	}
	d.received.Add(1)

	text, err := d.translate(ctx, seg)
	if errors.Is(err, errEmptySegment) {
		d.skipped.Add(1)
		d.logger.Debug("Segment holds no audio, not translating", slog.Uint64("seq", seg.Seq))
		return d.remove(seg)
	}
	if err != nil {
		return err
	}

	d.launchSpeak(ctx, seg, text)

	return d.remove(seg)
}

// remove deletes a segment's file once it needs no further processing
func (d *Driver) remove(seg audio.Segment) error {
	if err := d.store.Remove(seg.Path); err != nil {
		d.metrics.RecordStorageError("remove")
		return &StageError{Stage: StageDelete, Seq: seg.Seq, Err: err}
	}
	d.deleted.Add(1)
	d.metrics.RecordSegmentDeleted()

	return nil
}

// translate submits the segment's file and checks the result for the stop phrase
func (d *Driver) translate(ctx context.Context, seg audio.Segment) (string, error) {
	if d.term.IsSet() {
		return "", ErrTerminated
	}

	data, err := d.store.Read(seg.Path)
	if err != nil {
		d.metrics.RecordStorageError("read")
		return "", &StageError{Stage: StageRead, Seq: seg.Seq, Err: err}
	}
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		return "", &StageError{Stage: StageRead, Seq: seg.Seq, Err: fmt.Errorf("segment file is not a valid WAV: %w", err)}
	}
	if info.NumFrames == 0 {
		return "", errEmptySegment
	}

	d.metrics.RecordTranslationRequest()
	start := time.Now()
	text, err := d.translator.Translate(ctx, filepath.Base(seg.Path), data)
	elapsed := time.Since(start)
	if err != nil {
		d.metrics.RecordTranslationFailure(elapsed.Seconds())
		return "", &StageError{Stage: StageTranslate, Seq: seg.Seq, Err: err}
	}
	d.metrics.RecordTranslationSuccess(elapsed.Seconds())
	d.translated.Add(1)

	d.logger.Info("Segment translated",
		slog.Uint64("seq", seg.Seq),
		slog.String("text", text),
		slog.Duration("latency", elapsed),
		slog.Duration("audio", info.Duration),
		slog.Int("audio_bytes", len(data)),
	)

	if d.stop.Match(text) {
		d.terminate(seg)
		return "", ErrTerminated
	}

	return text, nil
}

// terminate raises the flag and clears all segment storage
func (d *Driver) terminate(seg audio.Segment) {
	if !d.term.Set() {
		return
	}
	d.metrics.RecordTermination()

	d.logger.Info("Stop phrase recognized, terminating session",
		slog.Uint64("seq", seg.Seq),
		slog.String("stop_phrase", d.stop.Phrase()),
	)

	removed, err := d.store.Purge()
	d.metrics.RecordSegmentsPurged(removed)
	if err != nil {
		d.metrics.RecordStorageError("remove")
		d.logger.Error("Failed to purge segment storage",
			slog.Int("removed", removed),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Info("Segment storage purged", slog.Int("removed", removed))
}

// launchSpeak starts the synthesize-and-play stage without waiting for it.
// Speech outlives ctx; shutdown drains it through Wait.
func (d *Driver) launchSpeak(ctx context.Context, seg audio.Segment, text string) {
	if strings.TrimSpace(text) == "" {
		d.logger.Debug("Blank translation, nothing to speak", slog.Uint64("seq", seg.Seq))
		return
	}

	speakCtx := context.WithoutCancel(ctx)
	d.metrics.RecordSpeechStarted()

	d.speech.Go(fmt.Sprintf("speak-%d", seg.Seq), func() error {
		ctx := speakCtx
		if d.speakTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.speakTimeout)
			defer cancel()
		}

		start := time.Now()
		err := d.speaker.Speak(ctx, text)
		d.metrics.RecordSpeechFinished(time.Since(start).Seconds(), err != nil)

		if err != nil {
			d.speakFailures.Add(1)
			d.metrics.RecordStageFailure(string(StageSpeak))
			return &StageError{Stage: StageSpeak, Seq: seg.Seq, Err: err}
		}
		d.spoken.Add(1)
		return nil
	})
}

// Wait blocks until every launched speech task has finished or ctx is done
func (d *Driver) Wait(ctx context.Context) error {
	return d.speech.Wait(ctx)
}

// Stats returns current driver statistics
func (d *Driver) Stats() DriverStats {
	return DriverStats{
		Received:      d.received.Load(),
		Translated:    d.translated.Load(),
		Deleted:       d.deleted.Load(),
		Skipped:       d.skipped.Load(),
		Spoken:        d.spoken.Load(),
		SpeakFailures: d.speakFailures.Load(),
		ActiveSpeech:  d.speech.Active(),
		QueueDepth:    d.queue.Len(),
		Terminated:    d.term.IsSet(),
		ErrorPolicy:   string(d.policy),
	}
}
