// Package config loads and validates application configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	CacheDir         string        `mapstructure:"cache_dir"`
	CacheBackend     string        `mapstructure:"cache_backend"`
	CacheEnabled     bool          `mapstructure:"cache_enabled"`
	MaxCacheAgeDays  int           `mapstructure:"max_cache_age_days"`
	RemoteBatchSize  int           `mapstructure:"remote_batch_size"`
	TextFetchWorkers int           `mapstructure:"text_fetch_workers"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	LogLevel         string        `mapstructure:"log_level"`

	IMAP IMAPSettings `mapstructure:"imap"`
}

// IMAPSettings configures the remote mailbox connection.
type IMAPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
}

// Load reads mailcache.yaml from the working directory or ~/.mailcache,
// overlays MAILCACHE_* environment variables, and applies defaults. An
// explicit path overrides the search.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_dir", "~/.mailcache/cache")
	v.SetDefault("cache_backend", "file")
	v.SetDefault("cache_enabled", true)
	v.SetDefault("max_cache_age_days", 90)
	v.SetDefault("remote_batch_size", 25)
	v.SetDefault("text_fetch_workers", 3)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay", 500*time.Millisecond)
	v.SetDefault("log_level", "info")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.mailbox", "INBOX")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mailcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mailcache")
	}

	v.SetEnvPrefix("MAILCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; env and defaults cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.CacheDir = expandHome(cfg.CacheDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate rejects values the rest of the system cannot work with.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid cache_backend %q (want file or sqlite)", c.CacheBackend)
	}
	if c.MaxCacheAgeDays <= 0 {
		return fmt.Errorf("max_cache_age_days must be positive, got %d", c.MaxCacheAgeDays)
	}
	if c.RemoteBatchSize <= 0 {
		return fmt.Errorf("remote_batch_size must be positive, got %d", c.RemoteBatchSize)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry_max_attempts must be positive, got %d", c.RetryMaxAttempts)
	}
	return nil
}
