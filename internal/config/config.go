// Manages server configuration stored in config.yaml.

// Package config loads the server configuration, creating it with defaults
// on first run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores all server-wide configuration.
// Loaded from config.yaml, created with defaults if missing.
type Config struct {
	// Cache names the offline cache generation. Bumping Version invalidates
	// every previously cached shell on the next activate.
	Cache CacheConfig `yaml:"cache"`

	// Upstream is an optional remote shell origin. Empty serves the
	// embedded frontend.
	Upstream string `yaml:"upstream"`

	// Image bounds stored photo dimensions and re-encode quality.
	Image ImageConfig `yaml:"image"`

	// Quotas defines request size limits.
	Quotas Quotas `yaml:"quotas"`

	// RateLimit throttles mutating API requests per client IP.
	RateLimit RateLimit `yaml:"rateLimit"`

	// GeoDB is an optional path to a MaxMind MMDB city database.
	GeoDB string `yaml:"geoDb"`
}

// CacheConfig names the cache namespaces and the precached shell.
type CacheConfig struct {
	Prefix          string   `yaml:"prefix"`
	Version         string   `yaml:"version"`
	ImagesNamespace string   `yaml:"imagesNamespace"`
	ShellAssets     []string `yaml:"shellAssets"`
	OfflinePage     string   `yaml:"offlinePage"`
}

// Validate checks the cache naming and asset list.
func (c *CacheConfig) Validate() error {
	if c.Prefix == "" {
		return errors.New("prefix is required")
	}
	if c.Version == "" {
		return errors.New("version is required")
	}
	if c.ImagesNamespace == "" {
		return errors.New("imagesNamespace is required")
	}
	if len(c.ShellAssets) == 0 {
		return errors.New("shellAssets must not be empty")
	}
	if c.OfflinePage == "" {
		return errors.New("offlinePage is required")
	}
	for _, a := range c.ShellAssets {
		if !strings.HasPrefix(a, "/") {
			return fmt.Errorf("shell asset %q must be an absolute path", a)
		}
	}
	return nil
}

// ImageConfig bounds stored photo dimensions and re-encode quality.
type ImageConfig struct {
	MaxWidth  int `yaml:"maxWidth"`
	MaxHeight int `yaml:"maxHeight"`
	Quality   int `yaml:"quality"`
}

// Validate checks that image settings are sane.
func (c *ImageConfig) Validate() error {
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		return errors.New("maxWidth and maxHeight must be positive")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errors.New("quality must be between 1 and 100")
	}
	return nil
}

// Quotas defines request size limits. 0 disables a cap.
type Quotas struct {
	MaxRequestBodyBytes int64 `yaml:"maxRequestBodyBytes"`
	MaxUploadBytes      int64 `yaml:"maxUploadBytes"`
}

// Validate checks that quota values are non-negative.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes < 0 {
		return errors.New("maxRequestBodyBytes must be non-negative")
	}
	if q.MaxUploadBytes < 0 {
		return errors.New("maxUploadBytes must be non-negative")
	}
	return nil
}

// RateLimit throttles mutating API requests per client IP.
// RequestsPerMinute 0 disables throttling.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	Burst             int `yaml:"burst"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimit) Validate() error {
	if r.RequestsPerMinute < 0 {
		return errors.New("requestsPerMinute must be non-negative")
	}
	if r.Burst < 0 {
		return errors.New("burst must be non-negative")
	}
	return nil
}

// Window is the rate limit accounting window.
func (r *RateLimit) Window() time.Duration {
	return time.Minute
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Prefix:          "placedb",
			Version:         "v1",
			ImagesNamespace: "placedb-images-v1",
			ShellAssets: []string{
				"/",
				"/pages/add.html",
				"/pages/details.html",
				"/pages/edit.html",
				"/pages/offline.html",
				"/css/styles.css",
				"/js/app.js",
				"/manifest.webmanifest",
			},
			OfflinePage: "/pages/offline.html",
		},
		Image: ImageConfig{
			MaxWidth:  1920,
			MaxHeight: 1080,
			Quality:   80,
		},
		Quotas: Quotas{
			MaxRequestBodyBytes: 1 << 20,  // 1 MiB of JSON
			MaxUploadBytes:      20 << 20, // 20 MiB per photo
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Image.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}
	return nil
}

// Load loads configuration from dataDir/config.yaml.
// Creates the file with defaults if it doesn't exist.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yaml")
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	case os.IsNotExist(err):
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize default config: %w", err)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write config.yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.yaml: %w", err)
	}
	return cfg, nil
}
