package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	srtengine "github.com/snarg/srt-engine"
	"github.com/snarg/srt-engine/internal/api"
	"github.com/snarg/srt-engine/internal/config"
	"github.com/snarg/srt-engine/internal/media"
	"github.com/snarg/srt-engine/internal/storage"
	"github.com/snarg/srt-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.ScratchDir, "scratch-dir", "", "scratch directory (overrides SCRATCH_DIR)")
	flag.StringVar(&overrides.Model, "model", "", "transcription model (overrides OPENAI_MODEL)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("srt-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ffmpeg. The server still starts without it so /healthz can report the
	// degraded state, but subtitle requests will fail.
	var mediaTool api.MediaTool
	tool, err := media.Find(log.With().Str("component", "media").Logger())
	if err != nil {
		log.Warn().Err(err).Msg("ffmpeg not found; subtitle generation disabled")
	} else {
		mediaTool = tool
	}

	// Remote transcription client
	client := transcribe.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITimeout)

	// Background sweep of scratch dirs orphaned by a previous crash
	sweeper := storage.NewSweeper(cfg.ScratchDir, cfg.ScratchRetention, log)
	sweeper.Start()
	defer sweeper.Stop()

	webFS, err := fs.Sub(srtengine.WebFiles, "web")
	if err != nil {
		log.Fatal().Err(err).Msg("embedded web assets missing")
	}

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	subtitles := api.NewSubtitleHandler(mediaTool, client, cfg.ScratchDir, cfg.MaxUploadBytes, httpLog)
	health := api.NewHealthHandler(mediaTool, version, startTime)
	srv := api.NewServer(cfg, subtitles, health, webFS, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("srt-engine stopped")
}
