// Command mockopenai serves fake translation and speech endpoints for local
// runs without an OpenAI account. Point the translator at it with
//
//	translation.endpoint: http://localhost:8081/v1/audio/translations
//	speech.endpoint:      http://localhost:8081/v1/audio/speech
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/Lavryniukk/voice-translator/internal/openai/openaitest"
)

const listenAddr = ":8081"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := openaitest.NewHandler(logger)
	if text := os.Getenv("MOCK_TRANSLATION_TEXT"); text != "" {
		handler.SetDefaultText(text)
	}
	if path := os.Getenv("MOCK_SPEECH_FILE"); path != "" {
		audio, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read speech file", slog.String("path", path), slog.String("error", err.Error()))
			os.Exit(1)
		}
		handler.SetSpeechAudio(audio)
	}

	logger.Info("Mock OpenAI server starting",
		slog.String("address", listenAddr),
		slog.String("translation_path", openaitest.TranslationPath),
		slog.String("speech_path", openaitest.SpeechPath),
	)

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
