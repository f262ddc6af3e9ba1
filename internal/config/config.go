package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ModelsConfig struct {
	Root   string `yaml:"root"`
	Engine string `yaml:"engine"` // whisper, mock
	// Languages maps model directory names under Root to language codes.
	Languages map[string]string `yaml:"languages"`
}

type AudioConfig struct {
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	ConvertCommand string `yaml:"convert_command"`
}

type StreamConfig struct {
	BufferFrames  int `yaml:"buffer_frames"`
	IdleTimeoutMS int `yaml:"idle_timeout_ms"`
}

type BatchConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	ChunkBytes     int   `yaml:"chunk_bytes"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Addr   string       `yaml:"addr"`
	Models ModelsConfig `yaml:"models"`
	Audio  AudioConfig  `yaml:"audio"`
	Stream StreamConfig `yaml:"stream"`
	Batch  BatchConfig  `yaml:"batch"`
	Store  StoreConfig  `yaml:"store"`
}

func Default() Config {
	return Config{
		Addr: ":8000",
		Models: ModelsConfig{
			Root:   "./models",
			Engine: "whisper",
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			ConvertCommand: "ffmpeg -hide_banner -loglevel error -nostdin",
		},
		Stream: StreamConfig{
			BufferFrames:  64,
			IdleTimeoutMS: 120000,
		},
		Batch: BatchConfig{
			MaxUploadBytes: 100 * 1024 * 1024,
			ChunkBytes:     8192,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "./data/transcripts.db",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Addr, "VOX_ADDR")
	overrideString(&cfg.Models.Root, "VOX_MODELS_ROOT")
	overrideString(&cfg.Models.Engine, "VOX_MODELS_ENGINE")
	overrideInt(&cfg.Audio.SampleRate, "VOX_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "VOX_AUDIO_CHANNELS")
	overrideString(&cfg.Audio.ConvertCommand, "VOX_AUDIO_CONVERT_COMMAND")
	overrideInt(&cfg.Stream.BufferFrames, "VOX_STREAM_BUFFER_FRAMES")
	overrideInt(&cfg.Stream.IdleTimeoutMS, "VOX_STREAM_IDLE_TIMEOUT_MS")
	overrideInt64(&cfg.Batch.MaxUploadBytes, "VOX_BATCH_MAX_UPLOAD_BYTES")
	overrideInt(&cfg.Batch.ChunkBytes, "VOX_BATCH_CHUNK_BYTES")
	overrideBool(&cfg.Store.Enabled, "VOX_STORE_ENABLED")
	overrideString(&cfg.Store.Path, "VOX_STORE_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Addr == "" {
		return errors.New("addr must not be empty")
	}
	switch cfg.Models.Engine {
	case "whisper", "mock":
	default:
		return errors.New("models.engine must be one of whisper|mock")
	}
	if cfg.Models.Root == "" {
		return errors.New("models.root must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1 (decoder expects mono)")
	}
	if cfg.Audio.ConvertCommand == "" {
		return errors.New("audio.convert_command must not be empty")
	}
	if cfg.Stream.BufferFrames <= 0 {
		return errors.New("stream.buffer_frames must be positive")
	}
	if cfg.Stream.IdleTimeoutMS < 0 {
		return errors.New("stream.idle_timeout_ms must be >= 0")
	}
	if cfg.Batch.MaxUploadBytes <= 0 {
		return errors.New("batch.max_upload_bytes must be positive")
	}
	if cfg.Batch.ChunkBytes <= 0 {
		return errors.New("batch.chunk_bytes must be positive")
	}
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when the store is enabled")
	}
	return nil
}
