// Package config centralises runtime configuration for prefixd.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpstreamURL is the published AWS range document.
const DefaultUpstreamURL = "https://ip-ranges.amazonaws.com/ip-ranges.json"

// UpstreamConfig describes the upstream dataset source and refresh cadence.
type UpstreamConfig struct {
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	FetchAttempts   int           `yaml:"fetchAttempts"`
}

// ServerConfig configures the REST adapter.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	RatePerSecond     float64       `yaml:"ratePerSecond"`
	RateBurst         int           `yaml:"rateBurst"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig toggles the OTLP metric exporter.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// Settings is the prefixd configuration tree loaded from defaults, an
// optional yaml file, and environment overrides, in that order.
type Settings struct {
	Environment string          `yaml:"environment"`
	Upstream    UpstreamConfig  `yaml:"upstream"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the default prefixd configuration.
func Default() Settings {
	return Settings{
		Environment: "prod",
		Upstream: UpstreamConfig{
			URL:             DefaultUpstreamURL,
			RefreshInterval: time.Hour,
			FetchTimeout:    30 * time.Second,
			FetchAttempts:   3,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			RatePerSecond:     50,
			RateBurst:         100,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4318",
			OTLPInsecure: true,
		},
	}
}

// LoadOrDefault loads settings from path on top of the defaults. A missing
// file is not an error: the defaults (plus environment overrides) apply and
// loadedFromFile reports false.
func LoadOrDefault(path string) (Settings, bool, error) {
	settings := Default()

	loadedFromFile := false
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &settings); err != nil {
				return Settings{}, false, fmt.Errorf("parse config %s: %w", path, err)
			}
			loadedFromFile = true
		case os.IsNotExist(err):
		default:
			return Settings{}, false, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&settings)

	if err := settings.Validate(); err != nil {
		return Settings{}, false, err
	}
	return settings, loadedFromFile, nil
}

func applyEnvOverrides(settings *Settings) {
	if v := os.Getenv("PREFIXD_ENV"); v != "" {
		settings.Environment = v
	}
	if v := os.Getenv("PREFIXD_UPSTREAM_URL"); v != "" {
		settings.Upstream.URL = v
	}
	if v := os.Getenv("PREFIXD_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Upstream.RefreshInterval = d
		}
	}
	if v := os.Getenv("PREFIXD_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Upstream.FetchTimeout = d
		}
	}
	if v := os.Getenv("PREFIXD_HTTP_ADDR"); v != "" {
		settings.Server.Addr = v
	}
	if v := os.Getenv("PREFIXD_LOG_LEVEL"); v != "" {
		settings.Log.Level = v
	}
	if v := os.Getenv("PREFIXD_LOG_FORMAT"); v != "" {
		settings.Log.Format = v
	}
	if v := os.Getenv("PREFIXD_OTLP_ENDPOINT"); v != "" {
		settings.Telemetry.Enabled = true
		settings.Telemetry.OTLPEndpoint = v
	}
}

// Validate rejects settings that cannot produce a working process.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Upstream.URL) == "" {
		return fmt.Errorf("upstream url must not be empty")
	}
	if s.Upstream.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if s.Upstream.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if strings.TrimSpace(s.Server.Addr) == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	return nil
}
