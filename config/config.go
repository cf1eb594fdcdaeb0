package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Subreddit        string `yaml:"subreddit"`
	ThreadCount      int    `yaml:"thread_count"`
	OutputPath       string `yaml:"output_path"`
	CredentialsPath  string `yaml:"credentials_path"`
	LanguageBaseURL  string `yaml:"language_base_url"`
	Language         string `yaml:"language"`
	CommentLimit     int    `yaml:"comment_limit"`
	RetryBackoffSecs int    `yaml:"retry_backoff_secs"`
	MaxRetries       int    `yaml:"max_retries"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs"`
	ScrapeLinks      bool   `yaml:"scrape_links"`
	MaxArticleLen    int    `yaml:"max_article_len"`
	DBPath           string `yaml:"db_path"`
	Schedule         string `yaml:"schedule"`
	Timezone         string `yaml:"timezone"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
	LogLevel         string `yaml:"log_level"`
}

// scheduleRegex validates HH:MM format with proper ranges.
var scheduleRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads configuration from a YAML file and applies defaults. A missing
// file is not an error; the defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("REDDIT_NLP_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// RetryBackoff is the pause between attempts after a transient failure.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSecs) * time.Second
}

// FetchTimeout is the per-request HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func applyDefaults(cfg *Config) {
	if cfg.Subreddit == "" {
		cfg.Subreddit = "news"
	}
	if cfg.ThreadCount == 0 {
		cfg.ThreadCount = 10
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "./commentData.json"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = "./apiKeys.yaml"
	}
	if cfg.RetryBackoffSecs == 0 {
		cfg.RetryBackoffSecs = 30
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 30
	}
	if cfg.MaxArticleLen == 0 {
		cfg.MaxArticleLen = 4000
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if out := os.Getenv("REDDIT_NLP_OUTPUT"); out != "" {
		cfg.OutputPath = out
	}
	if dbPath := os.Getenv("REDDIT_NLP_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
}

// Validate checks the configuration. Call it again after applying flag
// overrides.
func (c *Config) Validate() error {
	if c.Subreddit == "" {
		return fmt.Errorf("subreddit is required")
	}
	if c.ThreadCount < 1 {
		return fmt.Errorf("thread_count must be at least 1, got %d", c.ThreadCount)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	if c.RetryBackoffSecs < 0 {
		return fmt.Errorf("retry_backoff_secs must not be negative, got %d", c.RetryBackoffSecs)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.FetchTimeoutSecs < 0 {
		return fmt.Errorf("fetch_timeout_secs must not be negative, got %d", c.FetchTimeoutSecs)
	}
	if c.Schedule != "" && !scheduleRegex.MatchString(c.Schedule) {
		return fmt.Errorf("schedule must be in HH:MM format (00:00-23:59), got %q", c.Schedule)
	}
	if c.CommentLimit < 0 {
		return fmt.Errorf("comment_limit must not be negative, got %d", c.CommentLimit)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}
