package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.Models.Engine != "whisper" {
		t.Fatalf("unexpected engine %q", cfg.Models.Engine)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults %+v", cfg.Audio)
	}
	if cfg.Batch.MaxUploadBytes != 100*1024*1024 {
		t.Fatalf("unexpected upload cap %d", cfg.Batch.MaxUploadBytes)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
addr: ":9000"
models:
  root: /srv/models
  engine: mock
  languages:
    vosk-model-en-us-0.22: en
    vosk-model-vn-0.4: vi
stream:
  buffer_frames: 8
store:
  enabled: true
  path: /tmp/tr.db
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.Models.Languages["vosk-model-en-us-0.22"] != "en" {
		t.Fatalf("language map not parsed: %+v", cfg.Models.Languages)
	}
	if cfg.Stream.BufferFrames != 8 {
		t.Fatalf("unexpected buffer frames %d", cfg.Stream.BufferFrames)
	}
	if !cfg.Store.Enabled {
		t.Fatal("store should be enabled")
	}
	// Unset fields keep defaults.
	if cfg.Batch.ChunkBytes != 8192 {
		t.Fatalf("unexpected chunk bytes %d", cfg.Batch.ChunkBytes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOX_ADDR", ":7070")
	t.Setenv("VOX_MODELS_ENGINE", "mock")
	t.Setenv("VOX_STREAM_BUFFER_FRAMES", "16")
	t.Setenv("VOX_BATCH_MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("env override missed addr: %q", cfg.Addr)
	}
	if cfg.Models.Engine != "mock" {
		t.Fatalf("env override missed engine: %q", cfg.Models.Engine)
	}
	if cfg.Stream.BufferFrames != 16 {
		t.Fatalf("env override missed buffer frames: %d", cfg.Stream.BufferFrames)
	}
	if cfg.Batch.MaxUploadBytes != 1024 {
		t.Fatalf("env override missed upload cap: %d", cfg.Batch.MaxUploadBytes)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad engine", func(c *Config) { c.Models.Engine = "kaldi" }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"stereo", func(c *Config) { c.Audio.Channels = 2 }},
		{"no buffer", func(c *Config) { c.Stream.BufferFrames = 0 }},
		{"store without path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
