// Package config loads and validates agent config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the workforce backend base URL (e.g. https://api.example.com). Required.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// DataDir is the application-private directory holding the queue file, the
	// device identity, and the sealed-session fallback. Defaults to
	// <user config dir>/hybrid-workforce-agent.
	DataDir string `mapstructure:"AGENT_DATA_DIR"`
	// AllowedApps is a comma-separated app allow-list; empty means every app passes.
	AllowedApps string `mapstructure:"ALLOWED_APPS"`
	// BlockedWindowKeywords is a comma-separated list of window-title keywords that violate policy.
	BlockedWindowKeywords string `mapstructure:"BLOCKED_WINDOW_KEYWORDS"`
	// PolicyAlertCooldownSeconds is the per-rule minimum between policy alerts (default 300, floor 30).
	PolicyAlertCooldownSeconds int `mapstructure:"POLICY_ALERT_COOLDOWN_SECONDS"`
	// PolicyScreenshotCooldownSeconds is the per-rule minimum between violation screenshots (default 60, floor 10).
	PolicyScreenshotCooldownSeconds int `mapstructure:"POLICY_SCREENSHOT_COOLDOWN_SECONDS"`
	// SampleInterval is the activity sampling period (e.g. "10s").
	SampleInterval string `mapstructure:"SAMPLE_INTERVAL"`
	// ScreenshotInterval is the unconditional screenshot period (e.g. "15m").
	ScreenshotInterval string `mapstructure:"SCREENSHOT_INTERVAL"`
	// FlushInterval is the queue flush period (e.g. "60s").
	FlushInterval string `mapstructure:"FLUSH_INTERVAL"`
	// HeartbeatInterval is the device heartbeat period (e.g. "5m").
	HeartbeatInterval string `mapstructure:"HEARTBEAT_INTERVAL"`
	// BatchLimit is the max events shipped per flush (default 500).
	BatchLimit int `mapstructure:"BATCH_LIMIT"`
	// HTTPTimeout bounds every outbound request (e.g. "15s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// KeyringService is the OS keyring service name the session is stored under.
	KeyringService string `mapstructure:"KEYRING_SERVICE"`

	// OTLPEndpoint is the OTLP gRPC endpoint for agent metrics (e.g. http://localhost:4317).
	// Empty disables metric export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("AGENT_DATA_DIR", "")
	v.SetDefault("ALLOWED_APPS", "")
	v.SetDefault("BLOCKED_WINDOW_KEYWORDS", "")
	v.SetDefault("POLICY_ALERT_COOLDOWN_SECONDS", 300)
	v.SetDefault("POLICY_SCREENSHOT_COOLDOWN_SECONDS", 60)
	v.SetDefault("SAMPLE_INTERVAL", "10s")
	v.SetDefault("SCREENSHOT_INTERVAL", "15m")
	v.SetDefault("FLUSH_INTERVAL", "60s")
	v.SetDefault("HEARTBEAT_INTERVAL", "5m")
	v.SetDefault("BATCH_LIMIT", 500)
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("KEYRING_SERVICE", "HybridWorkforceAgent")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	if cfg.KeyringService == "" {
		cfg.KeyringService = "HybridWorkforceAgent"
	}

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.New("config: AGENT_DATA_DIR must be set when no user config dir exists")
		}
		cfg.DataDir = filepath.Join(base, "hybrid-workforce-agent")
	}

	return &cfg, nil
}

// AllowedAppsList splits AllowedApps on commas, trimming entries and dropping empties.
func (c *Config) AllowedAppsList() []string {
	return splitList(c.AllowedApps)
}

// BlockedWindowKeywordsList splits BlockedWindowKeywords on commas, trimming entries and dropping empties.
func (c *Config) BlockedWindowKeywordsList() []string {
	return splitList(c.BlockedWindowKeywords)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AlertCooldown returns the policy alert cooldown. Returns 5m if unset or invalid; never below 30s.
func (c *Config) AlertCooldown() time.Duration {
	return cooldown(c.PolicyAlertCooldownSeconds, 5*time.Minute, 30*time.Second)
}

// ScreenshotCooldown returns the violation screenshot cooldown. Returns 60s if unset or invalid; never below 10s.
func (c *Config) ScreenshotCooldown() time.Duration {
	return cooldown(c.PolicyScreenshotCooldownSeconds, time.Minute, 10*time.Second)
}

func cooldown(seconds int, def, floor time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	d := time.Duration(seconds) * time.Second
	if d < floor {
		return floor
	}
	return d
}

// SampleEvery parses SampleInterval as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) SampleEvery() time.Duration {
	return duration(c.SampleInterval, 10*time.Second)
}

// ScreenshotEvery parses ScreenshotInterval as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) ScreenshotEvery() time.Duration {
	return duration(c.ScreenshotInterval, 15*time.Minute)
}

// FlushEvery parses FlushInterval as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) FlushEvery() time.Duration {
	return duration(c.FlushInterval, time.Minute)
}

// HeartbeatEvery parses HeartbeatInterval as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) HeartbeatEvery() time.Duration {
	return duration(c.HeartbeatInterval, 5*time.Minute)
}

// Timeout parses HTTPTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return duration(c.HTTPTimeout, 15*time.Second)
}

func duration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
