package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for the lucas-download CLI.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	DownloadRoot   string        `yaml:"download_root"`
	YearsBack      int           `yaml:"years_back"`
	Workers        int           `yaml:"workers"`
	BatchSize      int           `yaml:"batch_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PacingDelay    time.Duration `yaml:"pacing_delay"`
	UserAgent      string        `yaml:"user_agent"`
	ProgressObject string        `yaml:"progress_object"`
	LogFile        string        `yaml:"log_file"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig defines download retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:        "https://imagem.camara.leg.br/",
		DownloadRoot:   "./downloads",
		YearsBack:      2,
		Workers:        40,
		BatchSize:      100,
		RequestTimeout: 15 * time.Second,
		PacingDelay:    20 * time.Millisecond,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		ProgressObject: "download_progress.json",
		LogFile:        "lucas-download.log",
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	BaseURL        string          `yaml:"base_url"`
	DownloadRoot   string          `yaml:"download_root"`
	YearsBack      int             `yaml:"years_back"`
	Workers        int             `yaml:"workers"`
	BatchSize      int             `yaml:"batch_size"`
	RequestTimeout string          `yaml:"request_timeout"`
	PacingDelay    string          `yaml:"pacing_delay"`
	UserAgent      string          `yaml:"user_agent"`
	ProgressObject string          `yaml:"progress_object"`
	LogFile        string          `yaml:"log_file"`
	Retry          yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Backoff  string `yaml:"backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.DownloadRoot != "" {
		cfg.DownloadRoot = yc.DownloadRoot
	}
	if yc.YearsBack != 0 {
		cfg.YearsBack = yc.YearsBack
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.BatchSize != 0 {
		cfg.BatchSize = yc.BatchSize
	}
	if yc.RequestTimeout != "" {
		d, err := time.ParseDuration(yc.RequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if yc.PacingDelay != "" {
		d, err := time.ParseDuration(yc.PacingDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse pacing_delay: %w", err)
		}
		cfg.PacingDelay = d
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.ProgressObject != "" {
		cfg.ProgressObject = yc.ProgressObject
	}
	if yc.LogFile != "" {
		cfg.LogFile = yc.LogFile
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LUCAS_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LUCAS_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LUCAS_DOWNLOAD_ROOT"); v != "" {
		c.DownloadRoot = v
	}
	if v := os.Getenv("LUCAS_YEARS_BACK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_YEARS_BACK: %w", err)
		}
		c.YearsBack = n
	}
	if v := os.Getenv("LUCAS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("LUCAS_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	if v := os.Getenv("LUCAS_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("LUCAS_PACING_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_PACING_DELAY: %w", err)
		}
		c.PacingDelay = d
	}
	if v := os.Getenv("LUCAS_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("LUCAS_PROGRESS_OBJECT"); v != "" {
		c.ProgressObject = v
	}
	if v := os.Getenv("LUCAS_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("LUCAS_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("LUCAS_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse LUCAS_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.DownloadRoot == "" {
		return errors.New("config: download_root is required")
	}
	if c.YearsBack < 0 {
		return errors.New("config: years_back must not be negative")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("config: batch_size must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.ProgressObject == "" {
		return errors.New("config: progress_object is required")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so a years_back of 0 cannot be
// expressed through Merge; callers carrying an explicit 0 set the
// field directly after merging.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.DownloadRoot != "" {
		c.DownloadRoot = override.DownloadRoot
	}
	if override.YearsBack != 0 {
		c.YearsBack = override.YearsBack
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.BatchSize != 0 {
		c.BatchSize = override.BatchSize
	}
	if override.RequestTimeout != 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.PacingDelay != 0 {
		c.PacingDelay = override.PacingDelay
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.ProgressObject != "" {
		c.ProgressObject = override.ProgressObject
	}
	if override.LogFile != "" {
		c.LogFile = override.LogFile
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	return c
}
