package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/streamscribe/internal/audio"
	"github.com/lexiqai/streamscribe/internal/config"
	"github.com/lexiqai/streamscribe/internal/events"
	"github.com/lexiqai/streamscribe/internal/observability"
	"github.com/lexiqai/streamscribe/internal/resilience"
	"github.com/lexiqai/streamscribe/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("deployment", cfg.Deployment).
		Str("api_version", cfg.APIVersion).
		Str("language", cfg.Language).
		Int("sample_rate", cfg.SampleRate).
		Int("chunk_bytes", cfg.ChunkBytes).
		Msg("streamscribe starting")

	// Optional metrics/health listener (Prometheus)
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", observability.HealthCheckHandler())
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	// Cancel on SIGINT/SIGTERM for an orderly shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runSession := func() error {
		device := audio.NewMicrophone(cfg.SampleRate, cfg.ChunkBytes)
		coord := session.New(cfg, device, printEvents())

		logger.Info().Str("session_id", coord.SessionID()).Msg("session starting, speak into the microphone")
		return coord.Run(ctx)
	}

	if cfg.ReconnectMaxAttempts > 0 {
		err = resilience.Reconnect(ctx, runSession, &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  30 * time.Second,
			Logger:      logger,
		})
	} else {
		err = runSession()
	}

	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("session ended with error")
		os.Exit(1)
	}

	logger.Info().Msg("streamscribe stopped")
}

// printEvents writes transcription output to stdout: delta fragments
// inline as they arrive, completed transcripts on their own line
func printEvents() session.Handler {
	logger := observability.GetLogger()
	return func(ev events.Event) error {
		switch e := ev.(type) {
		case events.TranscriptionDelta:
			fmt.Print(e.Delta)
			os.Stdout.Sync()
		case events.TranscriptionCompleted:
			fmt.Printf("\n%s\n", e.Transcript)
		case events.ResponseTextDelta:
			fmt.Print(e.Delta)
			os.Stdout.Sync()
		case events.ResponseTextDone:
			fmt.Printf("\n%s\n", e.Text)
		case events.ErrorEvent:
			logger.Error().Str("code", e.Code).Str("message", e.Message).Msg("server error event")
		case events.Unknown:
			// Already logged at debug level by the consumer
		}
		return nil
	}
}
