package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when ConfigPathEnv is not set
	DefaultPath = "configs/config.yaml"
	// ConfigPathEnv names the environment variable holding the config file path
	ConfigPathEnv = "TRANSLATOR_CONFIG"
	// APIKeyEnv names the environment variable holding the service credential
	APIKeyEnv = "OPENAI_KEY"
)

// ErrMissingAPIKey is returned when APIKeyEnv is unset or blank
var ErrMissingAPIKey = fmt.Errorf("%s is not set", APIKeyEnv)

// Config represents the complete translator configuration
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Translation TranslationConfig `yaml:"translation"`
	Speech      SpeechConfig      `yaml:"speech"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains capture and segment storage parameters
type AudioConfig struct {
	SegmentDuration float64 `yaml:"segment_duration"` // seconds
	StorageDir      string  `yaml:"storage_dir"`
	FilePrefix      string  `yaml:"file_prefix"`
	Channels        int     `yaml:"channels"`    // 0 = device native
	SampleRate      int     `yaml:"sample_rate"` // 0 = device native
	PurgeOnStart    bool    `yaml:"purge_on_start"`
}

// TranslationConfig contains translation service configuration
type TranslationConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	RetryBackoff  float64 `yaml:"retry_backoff"` // seconds, doubled per attempt
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// SpeechConfig contains speech synthesis and playback configuration
type SpeechConfig struct {
	Endpoint           string  `yaml:"endpoint"`
	Model              string  `yaml:"model"`
	Voice              string  `yaml:"voice"`
	Timeout            int     `yaml:"timeout"` // seconds
	MaxRetries         int     `yaml:"max_retries"`
	RetryBackoff       float64 `yaml:"retry_backoff"` // seconds, doubled per attempt
	MaxConcurrent      int     `yaml:"max_concurrent"`
	PlaybackSampleRate int     `yaml:"playback_sample_rate"`
	SpeakTimeout       int     `yaml:"speak_timeout"` // seconds, 0 = unbounded
}

// PipelineConfig contains termination and error handling policy
type PipelineConfig struct {
	StopPhrase   string `yaml:"stop_phrase"`
	StopMatch    string `yaml:"stop_match"`    // substring, word or exact
	OnError      string `yaml:"on_error"`      // halt or skip
	DrainTimeout int    `yaml:"drain_timeout"` // seconds
}

// HTTPConfig contains monitoring server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SegmentDuration: 5.0,
			StorageDir:      "files",
			FilePrefix:      "output",
			PurgeOnStart:    true,
		},
		Translation: TranslationConfig{
			Endpoint:      "https://api.openai.com/v1/audio/translations",
			Model:         "whisper-1",
			Timeout:       30,
			MaxRetries:    3,
			RetryBackoff:  1.0,
			MaxConcurrent: 2,
		},
		Speech: SpeechConfig{
			Endpoint:           "https://api.openai.com/v1/audio/speech",
			Model:              "tts-1",
			Voice:              "alloy",
			Timeout:            30,
			MaxRetries:         2,
			RetryBackoff:       1.0,
			MaxConcurrent:      4,
			PlaybackSampleRate: 24000,
			SpeakTimeout:       120,
		},
		Pipeline: PipelineConfig{
			StopPhrase:   "finish",
			StopMatch:    "word",
			OnError:      "halt",
			DrainTimeout: 30,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Fields the file leaves out
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadFromEnv loads the file named by ConfigPathEnv, or DefaultPath when it is
// unset. A missing DefaultPath yields Default; a missing explicit path is an
// error. The path actually consulted is returned.
func LoadFromEnv() (*Config, string, error) {
	path, explicit := os.LookupEnv(ConfigPathEnv)
	if !explicit || path == "" {
		path = DefaultPath
		explicit = false
	}

	config, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), path, nil
		}
		return nil, path, err
	}

	return config, path, nil
}

// LoadAPIKey returns the service credential from the environment
func LoadAPIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(APIKeyEnv))
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SegmentDuration <= 0 {
		return fmt.Errorf("segment_duration must be positive, got %f", a.SegmentDuration)
	}

	if a.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}

	if a.FilePrefix == "" {
		return fmt.Errorf("file_prefix cannot be empty")
	}
	if strings.ContainsAny(a.FilePrefix, `/\`) {
		return fmt.Errorf("file_prefix cannot contain path separators, got '%s'", a.FilePrefix)
	}

	if a.Channels < 0 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 0 (native) and 8, got %d", a.Channels)
	}

	if a.SampleRate != 0 && (a.SampleRate < 8000 || a.SampleRate > 192000) {
		return fmt.Errorf("sample_rate must be 0 (native) or between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if err := validateEndpoint(t.Endpoint); err != nil {
		return err
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	return validateRequestLimits(t.Timeout, t.MaxRetries, t.RetryBackoff, t.MaxConcurrent)
}

// Validate validates speech configuration
func (s *SpeechConfig) Validate() error {
	if err := validateEndpoint(s.Endpoint); err != nil {
		return err
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	if err := validateRequestLimits(s.Timeout, s.MaxRetries, s.RetryBackoff, s.MaxConcurrent); err != nil {
		return err
	}

	if s.PlaybackSampleRate < 8000 || s.PlaybackSampleRate > 192000 {
		return fmt.Errorf("playback_sample_rate must be between 8000 and 192000 Hz, got %d", s.PlaybackSampleRate)
	}

	if s.SpeakTimeout < 0 {
		return fmt.Errorf("speak_timeout cannot be negative, got %d", s.SpeakTimeout)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if strings.TrimSpace(p.StopPhrase) == "" {
		return fmt.Errorf("stop_phrase cannot be empty")
	}

	validMatches := map[string]bool{"substring": true, "word": true, "exact": true}
	if !validMatches[p.StopMatch] {
		return fmt.Errorf("stop_match must be one of [substring, word, exact], got '%s'", p.StopMatch)
	}

	validPolicies := map[string]bool{"halt": true, "skip": true}
	if !validPolicies[p.OnError] {
		return fmt.Errorf("on_error must be 'halt' or 'skip', got '%s'", p.OnError)
	}

	if p.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %d", p.DrainTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path
	return nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must be an http or https URL, got %q", endpoint)
	}

	return nil
}

func validateRequestLimits(timeout, maxRetries int, backoff float64, maxConcurrent int) error {
	if timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", timeout)
	}

	if maxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", maxRetries)
	}

	if backoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive, got %f", backoff)
	}

	if maxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", maxConcurrent)
	}

	return nil
}

// GetSegmentDuration returns the segment duration as a time.Duration
func (a *AudioConfig) GetSegmentDuration() time.Duration {
	return time.Duration(a.SegmentDuration * float64(time.Second))
}

// GetTimeoutDuration returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetRetryBackoff returns the first retry delay as a time.Duration
func (t *TranslationConfig) GetRetryBackoff() time.Duration {
	return time.Duration(t.RetryBackoff * float64(time.Second))
}

// GetTimeoutDuration returns the synthesis timeout as a time.Duration
func (s *SpeechConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetRetryBackoff returns the first retry delay as a time.Duration
func (s *SpeechConfig) GetRetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoff * float64(time.Second))
}

// GetSpeakTimeout returns the synthesize-and-play bound as a time.Duration
func (s *SpeechConfig) GetSpeakTimeout() time.Duration {
	return time.Duration(s.SpeakTimeout) * time.Second
}

// GetDrainTimeout returns the shutdown drain bound as a time.Duration
func (p *PipelineConfig) GetDrainTimeout() time.Duration {
	return time.Duration(p.DrainTimeout) * time.Second
}
