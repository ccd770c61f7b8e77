package pipeline

import (
	"context"
	"fmt"
	"io"
)

// Translator turns a recorded segment into English text
type Translator interface {
	Translate(ctx context.Context, filename string, audio []byte) (string, error)
}

// Synthesizer turns text into compressed speech audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Player plays compressed speech audio to completion
type Player interface {
	Play(ctx context.Context, audio io.ReadCloser) error
}

// Speaker is the synthesize-and-play stage
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SegmentStore is the part of segment storage the driver needs
type SegmentStore interface {
	Read(path string) ([]byte, error)
	Remove(path string) error
	Purge() (int, error)
}

// Voice speaks text by synthesizing it and playing the result
type Voice struct {
	Synthesizer Synthesizer
	Player      Player
}

// Speak synthesizes text and blocks until it has been played
func (v Voice) Speak(ctx context.Context, text string) error {
	speech, err := v.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if err := v.Player.Play(ctx, speech); err != nil {
		return fmt.Errorf("failed to play speech: %w", err)
	}
	return nil
}
