package cognivoice

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Session   SessionConfig   `mapstructure:"session"`
	Store     StoreConfig     `mapstructure:"store"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
}

type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
	Retries        int    `mapstructure:"retries"`
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type AnalysisConfig struct {
	SubmitTimeoutMS int `mapstructure:"submit_timeout_ms"`
}

type SessionConfig struct {
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type MetricsConfig struct {
	Path   string `mapstructure:"path"`
	Buffer int    `mapstructure:"buffer"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.timeout_ms", 30000)
	v.SetDefault("server.retries", 2)
	v.SetDefault("server.retry_backoff_ms", 200)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("analysis.submit_timeout_ms", 0)
	v.SetDefault("session.path", defaultSessionPath())
	v.SetDefault("store.path", "")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.address", "127.0.0.1:8090")
	v.SetDefault("metrics.path", "")
	v.SetDefault("metrics.buffer", 256)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Dashboard.Enabled && strings.TrimSpace(c.Dashboard.Address) == "" {
		return fmt.Errorf("dashboard.address is required when dashboard.enabled")
	}
	return nil
}

// ServerTimeout is the per-request gateway timeout.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutMS) * time.Millisecond
}

// SubmitTimeout bounds a whole analysis submission. Zero defers to the
// analyzer's default.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Analysis.SubmitTimeoutMS) * time.Millisecond
}

// RetryBackoff is the pause between retried gateway reads.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Server.RetryBackoffMS) * time.Millisecond
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.cognivoice/session.json"
}

func expandEnvStrings(cfg *Config) {
	cfg.Server.BaseURL = os.ExpandEnv(cfg.Server.BaseURL)
	cfg.Session.Path = os.ExpandEnv(cfg.Session.Path)
	cfg.Store.Path = os.ExpandEnv(cfg.Store.Path)
	cfg.Dashboard.Address = os.ExpandEnv(cfg.Dashboard.Address)
	cfg.Metrics.Path = os.ExpandEnv(cfg.Metrics.Path)
}
