package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/audio"
	"github.com/voxserve/voxserve/internal/batch"
	"github.com/voxserve/voxserve/internal/config"
	"github.com/voxserve/voxserve/internal/engine"
	"github.com/voxserve/voxserve/internal/httpapi"
	"github.com/voxserve/voxserve/internal/registry"
	"github.com/voxserve/voxserve/internal/transcripts"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			lvl = l
		}
	}
	log.Logger = log.Level(lvl)

	configPath := flag.String("config", os.Getenv("VOX_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	reg := buildRegistry(cfg)
	defer reg.Close()
	langs := reg.Languages()
	if len(langs) == 0 {
		log.Fatal().Msg("no models loaded, refusing to start")
	}
	log.Info().Strs("languages", langs).Msg("models ready")

	converter, err := audio.NewFFmpegConverter(cfg.Audio.ConvertCommand, audio.Format{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("converter setup failed")
	}

	var store *transcripts.Store
	if cfg.Store.Enabled {
		store, err = transcripts.Open(context.Background(), cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("transcript store open failed")
		}
		defer store.Close()
	}

	pipeline := batch.New(reg, converter, cfg.Batch.ChunkBytes)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(cfg, reg, pipeline, store),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("speech server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
}

func buildRegistry(cfg config.Config) *registry.Registry {
	switch cfg.Models.Engine {
	case "mock":
		// Mock models need no files on disk; register every mapped code.
		reg := registry.New(engine.LoadMockModel)
		for folder, code := range cfg.Models.Languages {
			if err := reg.Load(code, filepath.Join(cfg.Models.Root, folder)); err != nil {
				log.Error().Err(err).Str("language", code).Msg("model load failed")
			}
		}
		return reg
	default:
		reg := registry.New(engine.LoadWhisperModel)
		reg.LoadDirectory(cfg.Models.Root, cfg.Models.Languages)
		return reg
	}
}
