package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Lavryniukk/voice-translator/internal/audio"
	"github.com/Lavryniukk/voice-translator/internal/config"
	"github.com/Lavryniukk/voice-translator/internal/metrics"
	"github.com/Lavryniukk/voice-translator/internal/openai"
	"github.com/Lavryniukk/voice-translator/internal/pipeline"
	"github.com/Lavryniukk/voice-translator/internal/server"
)

const (
	serviceName    = "voice-translator"
	serviceVersion = "1.0.0"

	// maxBackoffFactor caps retry backoff at a multiple of the base backoff
	maxBackoffFactor = 16
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine, the key may come from the environment
	_ = godotenv.Load()

	cfg, configPath, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	runID := uuid.NewString()
	logger := initLogger(cfg.Logging).With(slog.String("run_id", runID))

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	apiKey, err := config.LoadAPIKey()
	if err != nil {
		logger.Error("Failed to load API key", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Configuration loaded",
		slog.Float64("segment_duration", cfg.Audio.SegmentDuration),
		slog.String("storage_dir", cfg.Audio.StorageDir),
		slog.String("translation_endpoint", cfg.Translation.Endpoint),
		slog.String("speech_endpoint", cfg.Speech.Endpoint),
		slog.String("stop_phrase", cfg.Pipeline.StopPhrase),
		slog.String("stop_match", cfg.Pipeline.StopMatch),
		slog.String("on_error", cfg.Pipeline.OnError),
		slog.String("log_level", cfg.Logging.Level),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)

	store, err := audio.NewStore(cfg.Audio.StorageDir, cfg.Audio.FilePrefix)
	if err != nil {
		logger.Error("Failed to create segment store", slog.String("error", err.Error()))
		return 1
	}
	if cfg.Audio.PurgeOnStart {
		removed, err := store.Purge()
		if err != nil {
			logger.Error("Failed to purge leftover segments", slog.String("error", err.Error()))
			return 1
		}
		appMetrics.RecordSegmentsPurged(removed)
		if removed > 0 {
			logger.Info("Purged leftover segments",
				slog.Int("count", removed),
				slog.String("dir", store.Dir()),
			)
		}
	}

	translator, err := openai.NewClient(openai.Config{
		APIKey:              apiKey,
		TranslationEndpoint: cfg.Translation.Endpoint,
		TranslationModel:    cfg.Translation.Model,
		Timeout:             cfg.Translation.GetTimeoutDuration(),
		MaxRetries:          cfg.Translation.MaxRetries,
		BaseBackoff:         cfg.Translation.GetRetryBackoff(),
		MaxBackoff:          cfg.Translation.GetRetryBackoff() * maxBackoffFactor,
		MaxConcurrent:       cfg.Translation.MaxConcurrent,
		OnRetry:             appMetrics.RecordRetry,
		Logger:              logger.With(slog.String("component", "translation")),
	})
	if err != nil {
		logger.Error("Failed to create translation client", slog.String("error", err.Error()))
		return 1
	}

	synthesizer, err := openai.NewClient(openai.Config{
		APIKey:         apiKey,
		SpeechEndpoint: cfg.Speech.Endpoint,
		SpeechModel:    cfg.Speech.Model,
		Voice:          cfg.Speech.Voice,
		Timeout:        cfg.Speech.GetTimeoutDuration(),
		MaxRetries:     cfg.Speech.MaxRetries,
		BaseBackoff:    cfg.Speech.GetRetryBackoff(),
		MaxBackoff:     cfg.Speech.GetRetryBackoff() * maxBackoffFactor,
		MaxConcurrent:  cfg.Speech.MaxConcurrent,
		OnRetry:        appMetrics.RecordRetry,
		Logger:         logger.With(slog.String("component", "speech")),
	})
	if err != nil {
		logger.Error("Failed to create speech client", slog.String("error", err.Error()))
		return 1
	}

	device, err := audio.OpenCaptureDevice(audio.DeviceConfig{
		Channels:   cfg.Audio.Channels,
		SampleRate: cfg.Audio.SampleRate,
	}, logger)
	if err != nil {
		logger.Error("Failed to open capture device", slog.String("error", err.Error()))
		return 1
	}
	defer device.Close()

	segmenter, err := audio.NewSegmenter(store, audio.SegmentConfig{
		Duration:   cfg.Audio.GetSegmentDuration(),
		Channels:   device.Channels(),
		SampleRate: device.SampleRate(),
	})
	if err != nil {
		logger.Error("Failed to create segmenter", slog.String("error", err.Error()))
		return 1
	}

	stopPhrase, err := pipeline.NewStopPhrase(cfg.Pipeline.StopPhrase, pipeline.MatchMode(cfg.Pipeline.StopMatch))
	if err != nil {
		logger.Error("Invalid stop phrase", slog.String("error", err.Error()))
		return 1
	}
	policy, err := pipeline.ParseErrorPolicy(cfg.Pipeline.OnError)
	if err != nil {
		logger.Error("Invalid error policy", slog.String("error", err.Error()))
		return 1
	}

	queue := pipeline.NewQueue(appMetrics.SetQueueDepth)
	term := pipeline.NewTermination()

	driver, err := pipeline.NewDriver(pipeline.Options{
		Queue:      queue,
		Store:      store,
		Translator: translator,
		Speaker: pipeline.Voice{
			Synthesizer: synthesizer,
			Player:      audio.NewPlayer(cfg.Speech.PlaybackSampleRate, logger),
		},
		Termination:  term,
		StopPhrase:   stopPhrase,
		ErrorPolicy:  policy,
		SpeakTimeout: cfg.Speech.GetSpeakTimeout(),
		Metrics:      appMetrics,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("Failed to create pipeline driver", slog.String("error", err.Error()))
		return 1
	}

	capture := audio.NewCaptureState(segmenter, queue, audio.CaptureOptions{
		Stopped: term.IsSet,
		OnError: func(err error) {
			appMetrics.RecordCaptureError()
			var storageErr *audio.StorageError
			if errors.As(err, &storageErr) {
				appMetrics.RecordStorageError(storageErr.Op)
			}
			logger.Error("Capture error", slog.String("error", err.Error()))
		},
		OnSegment: func(seg audio.Segment) {
			appMetrics.RecordSegmentFinalized(seg.AudioDuration().Seconds(), seg.Bytes)
			logger.Debug("Segment finalized",
				slog.Uint64("seq", seg.Seq),
				slog.String("path", seg.Path),
				slog.Duration("audio", seg.AudioDuration()),
				slog.Duration("elapsed", seg.Elapsed()),
			)
		},
	})

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, server.Sources{
			Pipeline:    driver,
			Segmenter:   segmenter,
			Translation: translator,
			Speech:      synthesizer,
		}, appMetrics, reg, runID)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driverDone := make(chan error, 1)
	go func() {
		driverDone <- driver.Run(ctx)
	}()

	if err := device.Start(func(raw []byte) {
		appMetrics.RecordCaptureBatch()
		capture.OnSamples(raw)
	}); err != nil {
		logger.Error("Failed to start capture", slog.String("error", err.Error()))
		stop()
		<-driverDone
		return 1
	}

	logger.Info("Listening, say the stop phrase to finish",
		slog.String("stop_phrase", stopPhrase.Phrase()),
		slog.Int("channels", device.Channels()),
		slog.Int("sample_rate", device.SampleRate()),
	)

	var runErr error
	driverReturned := false
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-term.Done():
		logger.Info("Stop phrase heard, shutting down")
	case runErr = <-driverDone:
		driverReturned = true
	}

	logger.Info("Starting graceful shutdown...")

	if err := device.Stop(); err != nil {
		logger.Error("Error stopping capture", slog.String("error", err.Error()))
	}
	if err := segmenter.Close(); err != nil {
		logger.Error("Error closing open segment", slog.String("error", err.Error()))
	}
	queue.Close()

	if !driverReturned {
		runErr = <-driverDone
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Pipeline.GetDrainTimeout())
	defer drainCancel()
	if err := driver.Wait(drainCtx); err != nil {
		logger.Warn("Speech still playing at shutdown", slog.String("error", err.Error()))
	}

	if term.IsSet() {
		// Catches the segment that was open when the stop phrase arrived
		if removed, err := store.Purge(); err != nil {
			logger.Error("Failed to purge segments", slog.String("error", err.Error()))
		} else {
			appMetrics.RecordSegmentsPurged(removed)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, client := range []*openai.Client{translator, synthesizer} {
		if err := client.Close(shutdownCtx); err != nil {
			logger.Error("Error closing service client", slog.String("error", err.Error()))
		}
	}

	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := driver.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("segments_received", stats.Received),
		slog.Uint64("segments_translated", stats.Translated),
		slog.Uint64("segments_skipped", stats.Skipped),
		slog.Uint64("speech_completed", stats.Spoken),
		slog.Uint64("speech_failures", stats.SpeakFailures),
		slog.Bool("terminated", stats.Terminated),
	)

	switch {
	case runErr == nil, errors.Is(runErr, pipeline.ErrTerminated), errors.Is(runErr, context.Canceled):
		logger.Info("Service stopped")
		return 0
	default:
		logger.Error("Pipeline halted", slog.String("error", runErr.Error()))
		return 1
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
