// Package config handles application configuration from an optional YAML
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath  string            `yaml:"database_path"`
	LogLevel      string            `yaml:"log_level"`
	Timezone      string            `yaml:"timezone"`
	DetailWorkers int               `yaml:"detail_workers"`
	HTTPTimeout   time.Duration     `yaml:"http_timeout"`
	HTTPRetries   int               `yaml:"http_retries"`
	Weasyl        WeasylConfig      `yaml:"weasyl"`
	FurAffinity   FurAffinityConfig `yaml:"furaffinity"`
}

// WeasylConfig holds the Weasyl API credentials.
type WeasylConfig struct {
	APIKey  string `yaml:"api_key"`
	User    string `yaml:"user"`
	BaseURL string `yaml:"base_url"`
}

// FurAffinityConfig holds the FurAffinity session cookies.
type FurAffinityConfig struct {
	CookieA  string `yaml:"cookie_a"`
	CookieB  string `yaml:"cookie_b"`
	User     string `yaml:"user"`
	BaseURL  string `yaml:"base_url"`
	MaxPages int    `yaml:"max_pages"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabasePath:  "submissions.db",
		LogLevel:      "info",
		Timezone:      "Local",
		DetailWorkers: 4,
		HTTPTimeout:   30 * time.Second,
		HTTPRetries:   2,
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from the YAML file at path, then applies
// environment overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Timezone, "TIMEZONE")

	setString(&c.Weasyl.APIKey, "WEASYL_API_KEY")
	setString(&c.Weasyl.User, "WEASYL_USER")
	setString(&c.Weasyl.BaseURL, "WEASYL_BASE_URL")

	setString(&c.FurAffinity.CookieA, "FURAFFINITY_COOKIE_A")
	setString(&c.FurAffinity.CookieB, "FURAFFINITY_COOKIE_B")
	setString(&c.FurAffinity.User, "FURAFFINITY_USER")
	setString(&c.FurAffinity.BaseURL, "FURAFFINITY_BASE_URL")

	if err := setInt(&c.FurAffinity.MaxPages, "FURAFFINITY_MAX_PAGES"); err != nil {
		return err
	}
	if err := setInt(&c.DetailWorkers, "DETAIL_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&c.HTTPRetries, "HTTP_RETRIES"); err != nil {
		return err
	}
	if raw := os.Getenv("HTTP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", raw, err)
		}
		c.HTTPTimeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = n
	return nil
}

// Validate checks value ranges and credential completeness.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.DatabasePath == "" {
		return errors.New("database path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DetailWorkers < 1 {
		return fmt.Errorf("detail workers must be at least 1, got %d", c.DetailWorkers)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("http retries must not be negative, got %d", c.HTTPRetries)
	}
	if c.FurAffinity.MaxPages < 0 {
		return fmt.Errorf("furaffinity max pages must not be negative, got %d", c.FurAffinity.MaxPages)
	}

	w := c.Weasyl
	if partial(w.APIKey, w.User) {
		return errors.New("weasyl needs both WEASYL_API_KEY and WEASYL_USER")
	}
	fa := c.FurAffinity
	if partial(fa.CookieA, fa.CookieB, fa.User) {
		return errors.New("furaffinity needs FURAFFINITY_COOKIE_A, FURAFFINITY_COOKIE_B and FURAFFINITY_USER")
	}
	return nil
}

// Location returns the reference timezone submissions are normalized to.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// WeasylEnabled reports whether Weasyl credentials are configured.
func (c *Config) WeasylEnabled() bool {
	return c.Weasyl.APIKey != "" && c.Weasyl.User != ""
}

// FurAffinityEnabled reports whether FurAffinity credentials are configured.
func (c *Config) FurAffinityEnabled() bool {
	fa := c.FurAffinity
	return fa.CookieA != "" && fa.CookieB != "" && fa.User != ""
}

// RequireSite returns an error when no site has credentials.
func (c *Config) RequireSite() error {
	if !c.WeasylEnabled() && !c.FurAffinityEnabled() {
		return errors.New("no site configured: set Weasyl or FurAffinity credentials")
	}
	return nil
}

// partial reports whether some but not all values are set.
func partial(values ...string) bool {
	set := 0
	for _, v := range values {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < len(values)
}
