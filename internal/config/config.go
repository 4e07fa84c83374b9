// Package config loads the gateway configuration. The configuration is built
// once at startup and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Default values used when neither the file nor the environment set them.
const (
	DefaultAddr           = ":8080"
	DefaultUsersBaseURL   = "http://localhost:8080"
	DefaultCatalogBaseURL = "http://localhost:8000"
	DefaultReviewsBaseURL = "http://localhost:8000"
	DefaultBackendTimeout = 5 * time.Second
	DefaultMaxInFlight    = 64
	DefaultServiceName    = "composite-gateway"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Users     BackendConfig   `yaml:"users"`
	Catalog   BackendConfig   `yaml:"catalog"`
	Reviews   BackendConfig   `yaml:"reviews"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackendConfig configures one backend client.
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
	// MaxInFlight bounds concurrent calls to the backend.
	MaxInFlight int `yaml:"max_in_flight"`
}

// RateLimitConfig configures the inbound rate limiter. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// TracingConfig configures span export. Spans are only recorded when
// Enabled is set.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadTimeout:       Duration(10 * time.Second),
			ReadHeaderTimeout: Duration(3 * time.Second),
			WriteTimeout:      Duration(30 * time.Second),
			IdleTimeout:       Duration(60 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Users: BackendConfig{
			BaseURL:     DefaultUsersBaseURL,
			Timeout:     Duration(DefaultBackendTimeout),
			MaxInFlight: DefaultMaxInFlight,
		},
		Catalog: BackendConfig{
			BaseURL:     DefaultCatalogBaseURL,
			Timeout:     Duration(DefaultBackendTimeout),
			MaxInFlight: DefaultMaxInFlight,
		},
		Reviews: BackendConfig{
			BaseURL:     DefaultReviewsBaseURL,
			Timeout:     Duration(DefaultBackendTimeout),
			MaxInFlight: DefaultMaxInFlight,
		},
		CORS: CORSConfig{AllowOrigins: []string{"*"}},
		Tracing: TracingConfig{
			ServiceName:  DefaultServiceName,
			SamplingRate: 1,
		},
	}
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	backends := []struct {
		name string
		cfg  BackendConfig
	}{
		{"users", c.Users},
		{"catalog", c.Catalog},
		{"reviews", c.Reviews},
	}
	for _, b := range backends {
		if err := b.cfg.validate(); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.burst must be positive when rate_limit.rps is set")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be within [0, 1], got %g", c.Tracing.SamplingRate)
	}
	return nil
}

func (b BackendConfig) validate() error {
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", b.BaseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute URL", b.BaseURL)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", b.Timeout.Duration())
	}
	if b.MaxInFlight < 0 {
		return fmt.Errorf("max_in_flight must not be negative, got %d", b.MaxInFlight)
	}
	return nil
}
