// Package config defines process configuration for the viewer and the
// data server, loaded by layering defaults, an optional YAML file and
// environment variables.
package config

import "time"

// Config carries settings for both binaries; each one reads the subset
// it cares about.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataBaseURL is where dataset files are fetched from, e.g.
	// "http://localhost:8000/data".
	DataBaseURL string `koanf:"data_base_url"`

	// APIBaseURL is where detail lookups are sent, e.g.
	// "http://localhost:8000/api".
	APIBaseURL string `koanf:"api_base_url"`

	// LiveFeedURL is the websocket endpoint for live listing updates.
	// Empty disables the feed.
	LiveFeedURL string `koanf:"live_feed_url"`

	// DiskCacheDir enables the badger-backed fetch cache when non-empty.
	DiskCacheDir string `koanf:"disk_cache_dir"`

	// CrossfadeDuration is the region stats blend time.
	CrossfadeDuration time.Duration `koanf:"crossfade_duration"`

	// PrefetchEnabled toggles speculative neighbor loading.
	PrefetchEnabled bool `koanf:"prefetch_enabled"`

	// Addr is the server listen address.
	Addr string `koanf:"addr"`

	// DataDir is the dataset tree served under /data.
	DataDir string `koanf:"data_dir"`

	// PostgresDSN connects the transactions store. Empty disables the
	// /api/transactions endpoint.
	PostgresDSN string `koanf:"postgres_dsn"`

	// MaxDetailLimit caps the limit parameter on detail endpoints.
	MaxDetailLimit int `koanf:"max_detail_limit"`
}

// New returns the defaults the loaders layer on top of.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		DataBaseURL:       "http://localhost:8000/data",
		APIBaseURL:        "http://localhost:8000/api",
		CrossfadeDuration: 900 * time.Millisecond,
		PrefetchEnabled:   true,
		Addr:              ":8000",
		DataDir:           "data",
		MaxDetailLimit:    500,
	}
}
