// Package openai provides the HTTP client for the remote translation and speech services.
// It uploads recorded segments for translation to English, requests mp3 speech for
// translated text, and retries transient failures with exponential backoff.
package openai
