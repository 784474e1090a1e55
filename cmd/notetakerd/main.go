package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/audio"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/bus"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/capture"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/config"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/coordinator"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/metrics"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/notes"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/server"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/session"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/speaker"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/speech"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "ivey-meeting-notetaker"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_interval", cfg.Audio.ChunkInterval),
		slog.Float64("min_chunk_duration", cfg.Audio.MinChunkDuration),
		slog.Float64("silence_rms_threshold", cfg.Audio.SilenceRMSThreshold),
		slog.String("capture_pipe", cfg.Audio.CapturePipe),
		slog.String("speech_endpoint", cfg.Speech.Endpoint),
		slog.String("notes_endpoint", cfg.Notes.Endpoint),
		slog.String("notes_model", cfg.Notes.Model),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Open the session store; recovery of an interrupted session happens
	// inside coordinator.New.
	store, err := session.Open(cfg.Storage.Path)
	if err != nil {
		logger.Error("Failed to open session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session store opened", slog.String("path", cfg.Storage.Path))

	// Speech engine client (loaded lazily on the first admitted chunk)
	engine, err := speech.NewHTTPEngine(speech.HTTPConfig{
		Endpoint:   cfg.Speech.Endpoint,
		Timeout:    cfg.Speech.GetTimeoutDuration(),
		MaxRetries: cfg.Speech.MaxRetries,
		Language:   cfg.Speech.Language,
	})
	if err != nil {
		logger.Error("Failed to create speech engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Summarization client
	summarizer, err := notes.NewClient(notes.ClientConfig{
		Endpoint: cfg.Notes.Endpoint,
		Model:    cfg.Notes.Model,
		Timeout:  cfg.Notes.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create summarization client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Capture source and speaker observation
	source := capture.NewPipeSource(cfg.Audio.CapturePipe, cfg.Audio.FrameSize)
	observer := speaker.Strategies{
		speaker.FileObserver{Path: cfg.Speaker.LabelFile},
	}

	// Event bus for UI-facing notifications
	events := bus.New()
	defer events.Close()

	// Coordinator owns the session state machine
	coord, err := coordinator.New(coordinator.Config{
		Segmenter: audio.SegmenterConfig{
			SampleRate:          cfg.Audio.SampleRate,
			Interval:            cfg.Audio.GetChunkInterval(),
			MinChunkDuration:    cfg.Audio.GetMinChunkDuration(),
			SilenceRMSThreshold: cfg.Audio.SilenceRMSThreshold,
		},
		SpeakerPollInterval: cfg.Speaker.GetPollInterval(),
		DefaultSpeakerLabel: cfg.Speaker.DefaultLabel,
		NotesMaxPromptChars: cfg.Notes.MaxPromptChars,
	}, logger, store, source, engine, observer, summarizer, events, appMetrics)
	if err != nil {
		logger.Error("Failed to create coordinator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Coordinator initialized",
		slog.String("state", string(coord.State().State)),
	)

	// Mirror bus events into the log at debug level
	go func() {
		for evt := range events.Subscribe() {
			logger.Debug("event",
				slog.String("type", string(evt.Type)),
				slog.String("message", evt.Message),
			)
		}
	}()

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, coord, prometheus.DefaultGatherer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	// Stop the coordinator: halt capture and drain in-flight inference
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := coord.Shutdown(drainCtx); err != nil {
		logger.Error("Error stopping coordinator", slog.String("error", err.Error()))
	}
	drainCancel()

	// Close the store last; the coordinator is its only writer
	if err := store.Close(); err != nil {
		logger.Error("Error closing session store", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
