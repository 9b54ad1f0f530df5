package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Prefix != "placedb" || cfg.Cache.Version == "" {
		t.Errorf("cache defaults = %+v", cfg.Cache)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not persisted: %v", err)
	}

	// Reload parses the persisted file.
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Image != cfg.Image || again.RateLimit != cfg.RateLimit {
		t.Errorf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := "image:\n  maxWidth: 640\n  maxHeight: 480\n  quality: 70\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(partial), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Image.MaxWidth != 640 || cfg.Image.Quality != 70 {
		t.Errorf("overrides not applied: %+v", cfg.Image)
	}
	if cfg.Cache.Prefix != "placedb" {
		t.Errorf("defaults lost: %+v", cfg.Cache)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.Cache.Prefix = "" }},
		{"no assets", func(c *Config) { c.Cache.ShellAssets = nil }},
		{"relative asset", func(c *Config) { c.Cache.ShellAssets = []string{"css/styles.css"} }},
		{"zero quality", func(c *Config) { c.Image.Quality = 0 }},
		{"negative quota", func(c *Config) { c.Quotas.MaxUploadBytes = -1 }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerMinute = -1 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", tt.name)
		}
	}
}
