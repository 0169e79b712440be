// ABOUTME: Configuration loading and parsing for opencoder
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "OPENCODER_CONFIG"

// Config represents the complete opencoder configuration
type Config struct {
	Coder      CoderConfig      `yaml:"coder" toml:"coder"`
	Stream     StreamConfig     `yaml:"stream" toml:"stream"`
	Workspaces WorkspacesConfig `yaml:"workspaces" toml:"workspaces"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// CoderConfig describes the Coder deployment. URL and Token are optional;
// a session saved by `opencoder login` is used when they are empty.
type CoderConfig struct {
	URL   string `yaml:"url" toml:"url"`
	Token string `yaml:"token" toml:"token"`

	// WildcardHostname like "*.coder.example.com" enables subdomain app URLs.
	// When empty it is fetched from the deployment.
	WildcardHostname string `yaml:"wildcard_hostname" toml:"wildcard_hostname"`
	// PathAppURL replaces the deployment URL in path-based app URLs.
	PathAppURL string `yaml:"path_app_url" toml:"path_app_url"`
}

// StreamConfig bounds event stream retries
type StreamConfig struct {
	MaxRetries  int           `yaml:"max_retries" toml:"max_retries"`
	BackoffBase time.Duration `yaml:"-" toml:"-"`
	BackoffMax  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	BackoffBaseRaw string `yaml:"backoff_base" toml:"backoff_base"`
	BackoffMaxRaw  string `yaml:"backoff_max" toml:"backoff_max"`
}

// WorkspacesConfig controls the workspace list watcher
type WorkspacesConfig struct {
	RefreshInterval    time.Duration `yaml:"-" toml:"-"`
	RefreshIntervalRaw string        `yaml:"refresh_interval" toml:"refresh_interval"`
}

// ServerConfig holds the local API listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// Token, when set, is required as a bearer token on /v1 routes.
	Token string `yaml:"token" toml:"token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := parseDurations(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// DefaultPath returns the config file location: $OPENCODER_CONFIG, else
// $XDG_CONFIG_HOME/opencoder/config.yaml (~/.config when unset).
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "opencoder", "config.yaml")
}

// DefaultDatabasePath returns $XDG_DATA_HOME/opencoder/opencoder.db
// (~/.local/share when unset).
func DefaultDatabasePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "opencoder", "opencoder.db")
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// LoadDefault loads DefaultPath. A missing file yields Default() and an
// empty path.
func LoadDefault() (*Config, string, error) {
	path := DefaultPath()
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), "", nil
	}
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal([]byte(expanded), &cfg)
	} else {
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.MaxRetries == 0 {
		cfg.Stream.MaxRetries = 5
	}
	if cfg.Stream.BackoffBaseRaw == "" {
		cfg.Stream.BackoffBaseRaw = "3s"
	}
	if cfg.Stream.BackoffMaxRaw == "" {
		cfg.Stream.BackoffMaxRaw = "30s"
	}
	if cfg.Workspaces.RefreshIntervalRaw == "" {
		cfg.Workspaces.RefreshIntervalRaw = "10s"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:7420"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	cfg.Coder.URL = strings.TrimRight(cfg.Coder.URL, "/")
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Coder.URL != "" {
		u, err := url.Parse(c.Coder.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("coder.url must be an absolute http(s) URL, got %q", c.Coder.URL)
		}
	}
	if c.Coder.Token != "" && c.Coder.URL == "" {
		return fmt.Errorf("coder.url is required when coder.token is set")
	}
	if w := c.Coder.WildcardHostname; w != "" && strings.Count(w, "*") != 1 {
		return fmt.Errorf("coder.wildcard_hostname must contain exactly one '*', got %q", w)
	}

	if c.Stream.MaxRetries < 1 {
		return fmt.Errorf("stream.max_retries must be at least 1")
	}
	if c.Stream.BackoffBase <= 0 || c.Stream.BackoffMax <= 0 {
		return fmt.Errorf("stream backoff durations must be positive")
	}
	if c.Stream.BackoffBase > c.Stream.BackoffMax {
		return fmt.Errorf("stream.backoff_base (%s) exceeds stream.backoff_max (%s)", c.Stream.BackoffBase, c.Stream.BackoffMax)
	}
	if c.Workspaces.RefreshInterval <= 0 {
		return fmt.Errorf("workspaces.refresh_interval must be positive")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Stream.BackoffBase, err = time.ParseDuration(cfg.Stream.BackoffBaseRaw); err != nil {
		return fmt.Errorf("parsing backoff_base %q: %w", cfg.Stream.BackoffBaseRaw, err)
	}
	if cfg.Stream.BackoffMax, err = time.ParseDuration(cfg.Stream.BackoffMaxRaw); err != nil {
		return fmt.Errorf("parsing backoff_max %q: %w", cfg.Stream.BackoffMaxRaw, err)
	}
	if cfg.Workspaces.RefreshInterval, err = time.ParseDuration(cfg.Workspaces.RefreshIntervalRaw); err != nil {
		return fmt.Errorf("parsing refresh_interval %q: %w", cfg.Workspaces.RefreshIntervalRaw, err)
	}

	return nil
}
