package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const (
	// DefaultPlaybackSampleRate matches the synthesis service's mp3 output
	DefaultPlaybackSampleRate = 24000

	resampleQuality = 4
)

// Player decodes mp3 audio and plays it on the default output device.
// Concurrent Play calls are mixed by the speaker.
type Player struct {
	sampleRate beep.SampleRate
	logger     *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewPlayer creates a player; the output device is opened on first use
func NewPlayer(sampleRate int, logger *slog.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackSampleRate
	}
	return &Player{
		sampleRate: beep.SampleRate(sampleRate),
		logger:     logger,
	}
}

func (p *Player) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10))
		if p.initErr == nil {
			p.logger.Info("Audio output device opened", slog.Int("sample_rate", int(p.sampleRate)))
		}
	})
	return p.initErr
}

// Play decodes the mp3 stream and blocks until it has been played to the end
// or ctx is cancelled. The reader is always closed.
func (p *Player) Play(ctx context.Context, audio io.ReadCloser) error {
	streamer, format, err := mp3.Decode(audio)
	if err != nil {
		audio.Close()
		return fmt.Errorf("failed to decode mp3 audio: %w", err)
	}
	defer streamer.Close()

	if err := p.init(); err != nil {
		return fmt.Errorf("failed to open audio output device: %w", err)
	}

	var source beep.Streamer = streamer
	if format.SampleRate != p.sampleRate {
		source = beep.Resample(resampleQuality, format.SampleRate, p.sampleRate, streamer)
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(source, beep.Callback(func() {
		close(done)
	}))}
	speaker.Play(ctrl)

	select {
	case <-done:
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}

	if err := streamer.Err(); err != nil {
		return fmt.Errorf("mp3 stream error: %w", err)
	}
	return nil
}
