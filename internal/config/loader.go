package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envOverrides lists the environment variables that override file values.
// Unset variables leave the corresponding value untouched.
type envOverrides struct {
	UsersBaseURL   string  `env:"MS1_BASE_URL"`
	UsersTimeout   float64 `env:"MS1_TIMEOUT"`
	CatalogBaseURL string  `env:"MS2_BASE_URL"`
	CatalogTimeout float64 `env:"MS2_TIMEOUT"`
	ReviewsBaseURL string  `env:"MS3_BASE_URL"`
	ReviewsTimeout float64 `env:"MS3_TIMEOUT"`

	Addr           string  `env:"GATEWAY_ADDR"`
	LogLevel       string  `env:"GATEWAY_LOG_LEVEL"`
	LogFormat      string  `env:"GATEWAY_LOG_FORMAT"`
	RateLimitRPS   float64 `env:"GATEWAY_RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"GATEWAY_RATE_LIMIT_BURST"`
	OTLPEndpoint   string  `env:"GATEWAY_OTLP_ENDPOINT"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then variables from envFile (if it exists), then the process
// environment. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadDotEnv loads envFile into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(envFile string) error {
	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}

	setString(&cfg.Users.BaseURL, env.UsersBaseURL)
	setSeconds(&cfg.Users.Timeout, env.UsersTimeout)
	setString(&cfg.Catalog.BaseURL, env.CatalogBaseURL)
	setSeconds(&cfg.Catalog.Timeout, env.CatalogTimeout)
	setString(&cfg.Reviews.BaseURL, env.ReviewsBaseURL)
	setSeconds(&cfg.Reviews.Timeout, env.ReviewsTimeout)

	setString(&cfg.Server.Addr, env.Addr)
	setString(&cfg.Log.Level, env.LogLevel)
	setString(&cfg.Log.Format, env.LogFormat)
	if env.RateLimitRPS > 0 {
		cfg.RateLimit.RPS = env.RateLimitRPS
	}
	if env.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = env.RateLimitBurst
	}
	if env.OTLPEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.OTLPEndpoint = env.OTLPEndpoint
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSeconds(dst *Duration, v float64) {
	if v > 0 {
		*dst = Seconds(v)
	}
}
