package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
)

// translationResponse is the body returned by the translation endpoint.
// Text is a pointer so that a missing field can be told apart from "".
type translationResponse struct {
	Text *string `json:"text"`
}

// Translate uploads a recorded segment and returns its English translation.
// Transient failures are retried; an unusable response is not.
func (c *Client) Translate(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio data cannot be empty")
	}

	body, contentType, err := c.createTranslationBody(filename, audio)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	respBody, status, err := c.do(ctx, ServiceTranslation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TranslationEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp translationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", malformed(ServiceTranslation, status, respBody, fmt.Errorf("failed to parse response JSON: %w", err))
	}
	if resp.Text == nil {
		return "", malformed(ServiceTranslation, status, respBody, fmt.Errorf("response has no text field"))
	}

	return *resp.Text, nil
}

// createTranslationBody builds the multipart/form-data upload once; each
// attempt reads it through a fresh reader
func (c *Client) createTranslationBody(filename string, audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("model", c.config.TranslationModel); err != nil {
		return nil, "", fmt.Errorf("failed to write field model: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("failed to write field response_format: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
