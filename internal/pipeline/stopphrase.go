package pipeline

import (
	"fmt"
	"strings"
	"unicode"
)

// MatchMode selects how translated text is compared with the stop phrase
type MatchMode string

const (
	// MatchSubstring matches the phrase anywhere in the text
	MatchSubstring MatchMode = "substring"
	// MatchWord matches the phrase as a run of whole words
	MatchWord MatchMode = "word"
	// MatchExact requires the whole text, less surrounding punctuation, to be the phrase
	MatchExact MatchMode = "exact"
)

// DefaultStopPhrase ends the session when heard
const DefaultStopPhrase = "finish"

// StopPhrase decides whether a translation asks the session to end.
// All modes are case-insensitive.
type StopPhrase struct {
	phrase string
	words  []string
	mode   MatchMode
}

// NewStopPhrase creates a matcher for phrase in the given mode
func NewStopPhrase(phrase string, mode MatchMode) (*StopPhrase, error) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil, fmt.Errorf("stop phrase cannot be empty")
	}

	switch mode {
	case MatchSubstring, MatchWord, MatchExact:
	case "":
		mode = MatchWord
	default:
		return nil, fmt.Errorf("unknown stop phrase match mode: %q", mode)
	}

	words := splitWords(phrase)
	if mode != MatchSubstring && len(words) == 0 {
		return nil, fmt.Errorf("stop phrase %q contains no words", phrase)
	}

	return &StopPhrase{
		phrase: phrase,
		words:  words,
		mode:   mode,
	}, nil
}

// Match reports whether text contains the stop phrase
func (s *StopPhrase) Match(text string) bool {
	switch s.mode {
	case MatchSubstring:
		return strings.Contains(strings.ToLower(text), s.phrase)
	case MatchExact:
		return equalWords(splitWords(strings.ToLower(text)), s.words)
	default:
		return containsRun(splitWords(strings.ToLower(text)), s.words)
	}
}

// Phrase returns the normalized phrase
func (s *StopPhrase) Phrase() string {
	return s.phrase
}

// Mode returns the match mode
func (s *StopPhrase) Mode() MatchMode {
	return s.mode
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsRun(words, run []string) bool {
	for i := 0; i+len(run) <= len(words); i++ {
		if equalWords(words[i:i+len(run)], run) {
			return true
		}
	}
	return false
}
