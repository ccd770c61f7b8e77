package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeSynthesizer struct {
	err   error
	texts []string
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader("mp3:" + text)), nil
}

type fakePlayer struct {
	err    error
	played []string
}

func (p *fakePlayer) Play(_ context.Context, audio io.ReadCloser) error {
	defer audio.Close()
	data, _ := io.ReadAll(audio)
	p.played = append(p.played, string(data))
	return p.err
}

func TestVoiceSpeak(t *testing.T) {
	synth := &fakeSynthesizer{}
	player := &fakePlayer{}
	voice := Voice{Synthesizer: synth, Player: player}

	if err := voice.Speak(context.Background(), "hola"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if len(player.played) != 1 || player.played[0] != "mp3:hola" {
		t.Errorf("Expected synthesized audio to be played, got %v", player.played)
	}
}

func TestVoiceSpeakErrors(t *testing.T) {
	synthErr := errors.New("synthesis down")
	voice := Voice{Synthesizer: &fakeSynthesizer{err: synthErr}, Player: &fakePlayer{}}
	if err := voice.Speak(context.Background(), "hola"); !errors.Is(err, synthErr) {
		t.Errorf("Expected synthesis error, got %v", err)
	}

	playErr := errors.New("no output device")
	player := &fakePlayer{err: playErr}
	voice = Voice{Synthesizer: &fakeSynthesizer{}, Player: player}
	if err := voice.Speak(context.Background(), "hola"); !errors.Is(err, playErr) {
		t.Errorf("Expected playback error, got %v", err)
	}
}
