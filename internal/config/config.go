// Package config loads wikiatlas configuration in three layers:
// struct defaults, an optional YAML file, then WIKIATLAS_* environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"wikiatlas.yaml",
	"wikiatlas.yml",
	"/etc/wikiatlas/config.yaml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "WIKIATLAS_CONFIG"

// envPrefix namespaces the environment layer:
// WIKIATLAS_SERVER_ADDR -> server.addr.
const envPrefix = "WIKIATLAS_"

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Wikipedia WikipediaConfig `koanf:"wikipedia"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins is empty by default; the map frontend origin must be
	// configured explicitly.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type WikipediaConfig struct {
	BaseURL     string        `koanf:"base_url"`
	UserAgent   string        `koanf:"user_agent"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxAttempts int           `koanf:"max_attempts"`
	RateLimit   float64       `koanf:"rate_limit"`
	RateBurst   int           `koanf:"rate_burst"`
}

type CacheConfig struct {
	// Response cache: exact-key results of search/geosearch queries.
	ResponseCapacity int           `koanf:"response_capacity"`
	ResponseTTL      time.Duration `koanf:"response_ttl"`

	// Detail cache: batch article details keyed by sorted id list.
	DetailCapacity int           `koanf:"detail_capacity"`
	DetailTTL      time.Duration `koanf:"detail_ttl"`

	// SweepInterval drives the periodic expiry sweep of both caches.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// Coverage cache: durable geo entries under GeoStorePath.
	// An empty path disables persistence (the cache stays empty).
	GeoStorePath  string        `koanf:"geo_store_path"`
	GeoTTL        time.Duration `koanf:"geo_ttl"`
	GeoMaxEntries int           `koanf:"geo_max_entries"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // trace..panic
	Format string `koanf:"format"` // json or console
}

// Default returns the built-in defaults (layer 1).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Wikipedia: WikipediaConfig{
			BaseURL:     "https://en.wikipedia.org/w/api.php",
			UserAgent:   "wikiatlas/1.0 (https://github.com/mkorolev/wikiatlas)",
			Timeout:     8 * time.Second,
			MaxAttempts: 4,
			RateLimit:   10,
			RateBurst:   5,
		},
		Cache: CacheConfig{
			ResponseCapacity: 1_000,
			ResponseTTL:      5 * time.Minute,
			DetailCapacity:   2_000,
			DetailTTL:        30 * time.Minute,
			SweepInterval:    2 * time.Minute,
			GeoStorePath:     "data/geocache.json",
			GeoTTL:           24 * time.Hour,
			GeoMaxEntries:    50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load assembles the configuration from all three layers and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// WIKIATLAS_SERVER_ADDR -> server.addr, WIKIATLAS_CACHE_RESPONSE_TTL
	// -> cache.response_ttl. Section names are single words, so only the
	// first underscore separates section from key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate rejects configurations the components would refuse or misbehave
// under.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if c.Cache.ResponseCapacity <= 0 || c.Cache.DetailCapacity <= 0 {
		return fmt.Errorf("config: cache capacities must be positive")
	}
	if c.Cache.ResponseTTL <= 0 || c.Cache.DetailTTL <= 0 {
		return fmt.Errorf("config: cache TTLs must be positive")
	}
	if c.Wikipedia.MaxAttempts <= 0 {
		return fmt.Errorf("config: wikipedia.max_attempts must be positive")
	}
	if c.Wikipedia.BaseURL == "" {
		return fmt.Errorf("config: wikipedia.base_url must not be empty")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
