package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SpeechRequest is the body sent to the speech endpoint
type SpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize converts text to mp3 speech. The returned reader holds the whole
// response body and must be closed by the caller.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(SpeechRequest{
		Model:          c.config.SpeechModel,
		Input:          text,
		Voice:          c.config.Voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	respBody, status, err := c.do(ctx, ServiceSpeech, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SpeechEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		return nil, malformed(ServiceSpeech, status, respBody, fmt.Errorf("empty audio body"))
	}

	return io.NopCloser(bytes.NewReader(respBody)), nil
}
