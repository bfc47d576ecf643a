package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Merge.GroupSize != 3 {
		t.Fatalf("expected group size 3, got %d", cfg.Merge.GroupSize)
	}
	if cfg.Upload.ChunkSize != 5242880 {
		t.Fatalf("expected 5MiB chunks, got %d", cfg.Upload.ChunkSize)
	}
	if cfg.Merge.NormalizeTimeout != 5*time.Minute {
		t.Fatalf("expected 5m normalize timeout, got %s", cfg.Merge.NormalizeTimeout)
	}
	if len(cfg.Upload.AllowedMimeTypes) == 0 {
		t.Fatal("expected default mime types")
	}
	if _, ok := cfg.Merge.Preset("medium"); !ok {
		t.Fatal("expected default presets to include medium")
	}
}

func TestLoad_PresetsFromFile(t *testing.T) {
	body := `
env: test
merge:
  default_preset: tiny
  presets:
    tiny:
      max_bitrate: 500k
      encoder_speed: ultrafast
      crf: 32
      audio_bitrate: 64k
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	p, ok := cfg.Merge.Preset(" TINY ")
	if !ok {
		t.Fatal("expected tiny preset")
	}
	if p.CRF != 32 || p.MaxBitrate != "500k" {
		t.Fatalf("unexpected preset: %+v", p)
	}
	if _, ok := cfg.Merge.Preset("medium"); ok {
		t.Fatal("file presets should replace the defaults")
	}
	if names := cfg.Merge.PresetNames(); len(names) != 1 || names[0] != "tiny" {
		t.Fatalf("unexpected preset names: %v", names)
	}
}

func TestLoad_RejectsUnknownDefaultPreset(t *testing.T) {
	_, err := Load(writeConfig(t, "merge:\n  default_preset: ultra\n"))
	if err == nil {
		t.Fatal("expected validation error for unknown default preset")
	}
}

func TestValidate_Drivers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg.Storage.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported storage driver to fail")
	}

	cfg.Storage.Driver = "sqlite"
	cfg.Blob.Driver = "gcs"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported blob driver to fail")
	}
}

func TestValidate_ChunkCountBound(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upload.MaxChunks != 10000 {
		t.Fatalf("expected default max_chunks 10000, got %d", cfg.Upload.MaxChunks)
	}

	cfg.Upload.ChunkSize = 1024
	cfg.Upload.MaxFileSize = 500 << 20
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "chunk_size too small") {
		t.Fatalf("expected chunk count rejection, got %v", err)
	}

	cfg.Upload.MaxFileSize = 10000 * 1024
	if err := cfg.Validate(); err != nil {
		t.Fatalf("exactly max_chunks chunks must be accepted: %v", err)
	}
}
