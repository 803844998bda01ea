// ABOUTME: Configuration loading and parsing for coven-compose
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default endpoint paths on the compose server.
const (
	DefaultChatStreamPath = "/api/chat/stream"
	DefaultEditStreamPath = "/api/posts/edit-selection/stream"
	DefaultDraftPath      = "/api/posts/{id}/draft"
	DefaultHistoryPath    = "/api/conversations/{id}"
)

// Config represents the complete coven-compose configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Chat     ChatConfig     `yaml:"chat" toml:"chat"`
	Editor   EditorConfig   `yaml:"editor" toml:"editor"`
	Preview  PreviewConfig  `yaml:"preview" toml:"preview"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the compose server location and endpoint paths
type ServerConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	ChatStreamPath string `yaml:"chat_stream_path" toml:"chat_stream_path"`
	EditStreamPath string `yaml:"edit_stream_path" toml:"edit_stream_path"`
	DraftPath      string `yaml:"draft_path" toml:"draft_path"`
	HistoryPath    string `yaml:"history_path" toml:"history_path"`
}

// AuthConfig holds the bearer token settings
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// DatabaseConfig holds the local cache location. An empty path disables the cache.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ChatConfig holds chat stream behaviour
type ChatConfig struct {
	Tools []string `yaml:"tools" toml:"tools"`

	DuplicateWindow    time.Duration `yaml:"-" toml:"-"`
	DuplicateWindowRaw string        `yaml:"duplicate_window" toml:"duplicate_window"`
}

// EditorConfig holds selection-edit animation timing
type EditorConfig struct {
	DeleteInterval    time.Duration `yaml:"-" toml:"-"`
	DeleteIntervalRaw string        `yaml:"delete_interval" toml:"delete_interval"`
}

// PreviewConfig holds post preview settings
type PreviewConfig struct {
	MaxLength int `yaml:"max_length" toml:"max_length"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a
// validated Config.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Read parses a configuration file without validating it, so callers can
// apply overrides first. Files ending in .toml are decoded as TOML,
// everything else as YAML. Environment variables in the format ${VAR_NAME}
// are expanded. Duration strings are parsed into time.Duration values.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https scheme")
	}

	if !strings.Contains(c.Server.DraftPath, "{id}") {
		return fmt.Errorf("server.draft_path must contain the {id} placeholder")
	}
	if !strings.Contains(c.Server.HistoryPath, "{id}") {
		return fmt.Errorf("server.history_path must contain the {id} placeholder")
	}

	if c.Chat.DuplicateWindow < 0 {
		return fmt.Errorf("chat.duplicate_window must not be negative")
	}
	if c.Editor.DeleteInterval < 0 {
		return fmt.Errorf("editor.delete_interval must not be negative")
	}
	if c.Preview.MaxLength < 0 {
		return fmt.Errorf("preview.max_length must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// applyDefaults fills optional fields that were left empty
func applyDefaults(cfg *Config) {
	if cfg.Server.ChatStreamPath == "" {
		cfg.Server.ChatStreamPath = DefaultChatStreamPath
	}
	if cfg.Server.EditStreamPath == "" {
		cfg.Server.EditStreamPath = DefaultEditStreamPath
	}
	if cfg.Server.DraftPath == "" {
		cfg.Server.DraftPath = DefaultDraftPath
	}
	if cfg.Server.HistoryPath == "" {
		cfg.Server.HistoryPath = DefaultHistoryPath
	}
	if cfg.Chat.DuplicateWindowRaw == "" && cfg.Chat.DuplicateWindow == 0 {
		cfg.Chat.DuplicateWindow = 2 * time.Second
	}
	if cfg.Editor.DeleteIntervalRaw == "" && cfg.Editor.DeleteInterval == 0 {
		cfg.Editor.DeleteInterval = 15 * time.Millisecond
	}
	if cfg.Preview.MaxLength == 0 {
		cfg.Preview.MaxLength = 3000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.DuplicateWindowRaw != "" {
		cfg.Chat.DuplicateWindow, err = time.ParseDuration(cfg.Chat.DuplicateWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing duplicate_window %q: %w", cfg.Chat.DuplicateWindowRaw, err)
		}
	}

	if cfg.Editor.DeleteIntervalRaw != "" {
		cfg.Editor.DeleteInterval, err = time.ParseDuration(cfg.Editor.DeleteIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing delete_interval %q: %w", cfg.Editor.DeleteIntervalRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the path to the compose config file.
// Priority: COVEN_COMPOSE_CONFIG env var > XDG_CONFIG_HOME/coven/compose.yaml > ~/.config/coven/compose.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_COMPOSE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "compose.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "compose.yaml")
}
