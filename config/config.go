package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration fields.
const (
	DefaultFeedURL      = "public/raw_realtime_data.csv"
	DefaultPollInterval = 5 * time.Second
	DefaultFetchTimeout = 4 * time.Second
	DefaultHTTPAddr     = ":8080"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultEnvironment  = "dev"
	DefaultLogMaxSizeMB = 10
	DefaultLogBackups   = 5
	DefaultLogMaxAge    = 7
)

type Config struct {
	Feed FeedConfig `mapstructure:"feed"`
	Log  LogConfig  `mapstructure:"log"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// FeedConfig locates the transaction CSV and sets the refresh cadence.
type FeedConfig struct {
	URL          string        `mapstructure:"url"`           // http(s)://, file:// or a bare path
	URLParameter string        `mapstructure:"url_parameter"` // SSM parameter holding the URL (prod only)
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"

	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Load loads application configuration using Viper.
// It reads config.yaml from dir (or next to the executable when dir is empty)
// and overrides with environment variables such as FEED_URL.
// A missing config file is not an error; defaults and env still apply.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir(dir))

	setDefaults(v)

	// Support environment variables with dot notation (e.g., FEED_POLL_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configDir(dir string) string {
	if dir != "" {
		return dir
	}
	ex, err := os.Executable()
	if err != nil || strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return filepath.Join(pwd, "config")
	}
	return filepath.Join(filepath.Dir(ex), "../config")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.url", DefaultFeedURL)
	v.SetDefault("feed.url_parameter", "")
	v.SetDefault("feed.poll_interval", DefaultPollInterval)
	v.SetDefault("feed.fetch_timeout", DefaultFetchTimeout)

	v.SetDefault("http.addr", DefaultHTTPAddr)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", DefaultEnvironment)
	v.SetDefault("log.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("log.max_backups", DefaultLogBackups)
	v.SetDefault("log.max_age_days", DefaultLogMaxAge)
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Feed.URL == "" && c.Feed.URLParameter == "" {
		return errors.New("feed.url or feed.url_parameter is required")
	}
	if c.Feed.URL != "" {
		if _, err := url.Parse(c.Feed.URL); err != nil {
			return fmt.Errorf("feed.url is invalid: %w", err)
		}
	}
	if c.Feed.PollInterval <= 0 {
		return errors.New("feed.poll_interval must be > 0")
	}
	if c.Feed.FetchTimeout <= 0 {
		return errors.New("feed.fetch_timeout must be > 0")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	switch c.Log.Environment {
	case "dev", "prod":
	default:
		return fmt.Errorf("log.environment must be dev or prod, got %q", c.Log.Environment)
	}
	return nil
}
