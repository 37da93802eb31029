// Package config provides configuration loading for bookwatch.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	API           APIConfig          `yaml:"api"`
	Auth          AuthConfig         `yaml:"auth"`
	Poll          PollConfig         `yaml:"poll"`
	Filters       FilterConfig       `yaml:"filters"`
	Notifications NotificationConfig `yaml:"notifications"`
	Export        ExportConfig       `yaml:"export"`
	Mirror        MirrorConfig       `yaml:"mirror"`
}

// APIConfig configures the bookings backend.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
	RateBurst int           `yaml:"rate_burst"`
}

// AuthConfig configures where the bearer token comes from.
// Exactly one of Token, TokenCmd, Keyring or MSAL is normally set.
type AuthConfig struct {
	Token    string      `yaml:"token,omitempty"`
	TokenCmd string      `yaml:"token_cmd,omitempty"`
	Keyring  bool        `yaml:"keyring,omitempty"` // read the token from the OS keyring
	MSAL     *MSALConfig `yaml:"msal,omitempty"`
}

// MSALConfig configures Azure AD device code login.
type MSALConfig struct {
	ClientID  string   `yaml:"client_id"`
	Authority string   `yaml:"authority"`
	Scopes    []string `yaml:"scopes"`
}

// PollConfig configures the refresh loop.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Back     time.Duration `yaml:"back"`      // how far back the fetch window reaches
	Ahead    time.Duration `yaml:"ahead"`     // how far ahead the fetch window reaches
	Timezone string        `yaml:"timezone"`  // IANA zone for date/time fields, default local
	SyncCron string        `yaml:"sync_cron"` // optional schedule for re-triggering calendar sync
}

// FilterConfig configures appointment filtering.
type FilterConfig struct {
	Mode  string       `yaml:"mode"` // "or" or "and"
	Rules []FilterRule `yaml:"rules"`
}

// FilterRule defines a single filter rule.
// Use exactly one of: Contains, Exact, Prefix, Suffix, or Regex.
type FilterRule struct {
	Field           string `yaml:"field"` // "title", "location", "description"
	Contains        string `yaml:"contains,omitempty"`
	Exact           string `yaml:"exact,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Suffix          string `yaml:"suffix,omitempty"`
	Regex           string `yaml:"regex,omitempty"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// NotificationConfig configures conflict notifications.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ExportConfig configures the ICS snapshot.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// MirrorConfig configures publishing to a CalDAV collection.
type MirrorConfig struct {
	URL         string `yaml:"url"`
	Collection  string `yaml:"collection"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordCmd string `yaml:"password_cmd,omitempty"`
}

// Enabled reports whether the mirror is configured.
func (m *MirrorConfig) Enabled() bool {
	return m.URL != "" && m.Collection != ""
}

// Load reads configuration from the default location (~/.config/bookwatch/config.yaml).
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(configDir, "bookwatch", "config.yaml"), nil
}

// LoadFrom reads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.Export.Path = expandPath(cfg.Export.Path)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = 5
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = 10
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 6 * time.Second
	}
	if c.Poll.Back == 0 {
		c.Poll.Back = 365 * 24 * time.Hour
	}
	if c.Poll.Ahead == 0 {
		c.Poll.Ahead = 365 * 24 * time.Hour
	}
	if c.Filters.Mode == "" {
		c.Filters.Mode = "or"
	}
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Poll.Timezone != "" {
		if _, err := time.LoadLocation(c.Poll.Timezone); err != nil {
			return fmt.Errorf("poll.timezone: %w", err)
		}
	}
	if c.Poll.SyncCron != "" {
		if _, err := cron.ParseStandard(c.Poll.SyncCron); err != nil {
			return fmt.Errorf("poll.sync_cron: %w", err)
		}
	}
	switch c.Filters.Mode {
	case "or", "and":
	default:
		return fmt.Errorf("filters.mode: unknown mode %q", c.Filters.Mode)
	}
	return nil
}

// Location returns the zone appointment date/time fields are interpreted in.
func (c *Config) Location() *time.Location {
	if c.Poll.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Poll.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetPassword returns the mirror password, executing password_cmd if needed.
func (m *MirrorConfig) GetPassword() (string, error) {
	if m.Password != "" {
		return m.Password, nil
	}
	return runSecretCmd(m.PasswordCmd)
}

// GetToken returns the static token, executing token_cmd if needed.
// An empty result means no static token is configured.
func (a *AuthConfig) GetToken() (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	return runSecretCmd(a.TokenCmd)
}

func runSecretCmd(command string) (string, error) {
	if command == "" {
		return "", nil
	}

	cmd := exec.Command("sh", "-c", command)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("execute %q: %w", command, err)
	}

	return strings.TrimSpace(string(out)), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// parseDuration extends time.ParseDuration with day (d) and week (w) units.
// Negative values are rejected.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}

	if unit != 0 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// UnmarshalYAML implements custom unmarshaling for duration fields.
func (c *APIConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		BaseURL   string  `yaml:"base_url"`
		Timeout   string  `yaml:"timeout"`
		RateLimit float64 `yaml:"rate_limit"`
		RateBurst int     `yaml:"rate_burst"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	d, err := parseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("parse timeout: %w", err)
	}
	c.BaseURL = strings.TrimRight(raw.BaseURL, "/")
	c.Timeout = d
	c.RateLimit = raw.RateLimit
	c.RateBurst = raw.RateBurst
	return nil
}

// UnmarshalYAML implements custom unmarshaling for poll config.
func (c *PollConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Interval string `yaml:"interval"`
		Back     string `yaml:"back"`
		Ahead    string `yaml:"ahead"`
		Timezone string `yaml:"timezone"`
		SyncCron string `yaml:"sync_cron"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	var err error
	if c.Interval, err = parseDuration(raw.Interval); err != nil {
		return fmt.Errorf("parse interval: %w", err)
	}
	if c.Back, err = parseDuration(raw.Back); err != nil {
		return fmt.Errorf("parse back: %w", err)
	}
	if c.Ahead, err = parseDuration(raw.Ahead); err != nil {
		return fmt.Errorf("parse ahead: %w", err)
	}
	c.Timezone = raw.Timezone
	c.SyncCron = raw.SyncCron
	return nil
}
