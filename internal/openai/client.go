package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTranslationEndpoint = "https://api.openai.com/v1/audio/translations"
	DefaultSpeechEndpoint      = "https://api.openai.com/v1/audio/speech"
	DefaultTranslationModel    = "whisper-1"
	DefaultSpeechModel         = "tts-1"
	DefaultVoice               = "alloy"

	// Service names used in errors, stats and retry metrics
	ServiceTranslation = "translation"
	ServiceSpeech      = "speech"

	maxErrorBodySize = 512
)

// ErrClientClosed is returned for requests made after Close
var ErrClientClosed = errors.New("client closed")

// ErrMalformedResponse marks a successful HTTP exchange whose body could not be used
var ErrMalformedResponse = errors.New("malformed response")

// ServiceError is a failed exchange with a remote service
type ServiceError struct {
	Service    string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s service: HTTP %d: %v", e.Service, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s service: HTTP error %d: %s", e.Service, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s service: request failed: %v", e.Service, e.Err)
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed
func (e *ServiceError) Temporary() bool {
	if errors.Is(e.Err, ErrMalformedResponse) || errors.Is(e.Err, ErrClientClosed) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config contains OpenAI client configuration
type Config struct {
	APIKey string

	TranslationEndpoint string
	TranslationModel    string

	SpeechEndpoint string
	SpeechModel    string
	Voice          string

	Timeout       time.Duration
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxConcurrent int

	// OnRetry is called with the service name before every retry
	OnRetry func(service string)
	Logger  *slog.Logger
}

// ServiceStats represents per-service request statistics
type ServiceStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// ClientStats represents client statistics
type ClientStats struct {
	Translation    ServiceStats `json:"translation"`
	Speech         ServiceStats `json:"speech"`
	ActiveRequests int          `json:"active_requests"`
}

// Client talks to the translation and speech synthesis endpoints
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}
	logger     *slog.Logger

	stats map[string]*ServiceStats
	mu    sync.RWMutex

	closed atomic.Bool
}

// NewClient creates a new OpenAI HTTP client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.TranslationEndpoint == "" {
		config.TranslationEndpoint = DefaultTranslationEndpoint
	}
	if config.TranslationModel == "" {
		config.TranslationModel = DefaultTranslationModel
	}
	if config.SpeechEndpoint == "" {
		config.SpeechEndpoint = DefaultSpeechEndpoint
	}
	if config.SpeechModel == "" {
		config.SpeechModel = DefaultSpeechModel
	}
	if config.Voice == "" {
		config.Voice = DefaultVoice
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
		stats: map[string]*ServiceStats{
			ServiceTranslation: {},
			ServiceSpeech:      {},
		},
	}, nil
}

// requestBuilder creates a fresh request for every attempt
type requestBuilder func(ctx context.Context) (*http.Request, error)

// do performs a request with retries and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, service string, build requestBuilder) ([]byte, int, error) {
	if c.closed.Load() {
		return nil, 0, &ServiceError{Service: service, Err: ErrClientClosed}
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, 0, &ServiceError{Service: service, Err: ctx.Err()}
	}

	startTime := time.Now()
	requestID := uuid.NewString()
	c.recordRequest(service)

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.recordRetry(service)
			if c.config.OnRetry != nil {
				c.config.OnRetry(service)
			}

			backoff := c.backoff(attempt)
			c.logger.Warn("Retrying remote service request",
				slog.String("service", service),
				slog.String("request_id", requestID),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.recordFailure(service)
				return nil, 0, &ServiceError{Service: service, Err: ctx.Err()}
			}
		}

		body, status, err := c.attempt(ctx, service, requestID, build)
		if err == nil {
			c.recordSuccess(service, time.Since(startTime))
			return body, status, nil
		}

		lastErr = err

		var serviceErr *ServiceError
		if !errors.As(err, &serviceErr) || !serviceErr.Temporary() || ctx.Err() != nil {
			break
		}
	}

	c.recordFailure(service)
	return nil, 0, lastErr
}

// attempt performs a single HTTP exchange
func (c *Client) attempt(ctx context.Context, service, requestID string, build requestBuilder) ([]byte, int, error) {
	httpReq, err := build(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("User-Agent", "Voice-Translator/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, &ServiceError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &ServiceError{
			Service: service,
			Err:     fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &ServiceError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody),
		}
	}

	return respBody, resp.StatusCode, nil
}

// backoff returns the exponential delay before the given retry attempt
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.BaseBackoff << (attempt - 1)
	if delay <= 0 || delay > c.config.MaxBackoff {
		delay = c.config.MaxBackoff
	}
	return delay
}

// malformed builds the error for an unusable 2xx body
func malformed(service string, status int, body []byte, reason error) error {
	return &ServiceError{
		Service:    service,
		StatusCode: status,
		Body:       truncate(body),
		Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, reason),
	}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodySize {
		return string(body[:maxErrorBodySize]) + "..."
	}
	return string(body)
}

// Statistics methods
func (c *Client) recordRequest(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[service].TotalRequests++
}

func (c *Client) recordRetry(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[service].TotalRetries++
}

func (c *Client) recordFailure(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[service].FailedRequests++
}

func (c *Client) recordSuccess(service string, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats[service]
	s.SuccessRequests++

	// Simple moving average
	if s.AvgResponseTime == 0 {
		s.AvgResponseTime = responseTime
	} else {
		s.AvgResponseTime = (s.AvgResponseTime + responseTime) / 2
	}
}

func (c *Client) snapshot(service string) ServiceStats {
	s := *c.stats[service]
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.SuccessRequests) / float64(s.TotalRequests) * 100
	}
	return s
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		Translation:    c.snapshot(ServiceTranslation),
		Speech:         c.snapshot(ServiceSpeech),
		ActiveRequests: len(c.semaphore),
	}
}

// Close rejects new requests and waits for in-flight ones to finish or ctx
// to be done
func (c *Client) Close(ctx context.Context) error {
	c.closed.Store(true)

	acquired := 0
	defer func() {
		for ; acquired > 0; acquired-- {
			<-c.semaphore
		}
	}()

	for acquired < c.config.MaxConcurrent {
		select {
		case c.semaphore <- struct{}{}:
			acquired++
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for in-flight requests: %w", ctx.Err())
		}
	}

	c.httpClient.CloseIdleConnections()
	return nil
}
