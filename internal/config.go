package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDomain is the backend integration domain used to prefix commands
const DefaultDomain = "ai_code_task"

// Cache backends
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"
)

// Config holds the client configuration
type Config struct {
	Server      string            `yaml:"server,omitempty"`
	Token       string            `yaml:"token,omitempty"`
	UserID      string            `yaml:"user_id,omitempty"`
	Domain      string            `yaml:"domain,omitempty"`
	Cache       CacheConfig       `yaml:"cache"`
	Retry       RetryConfig       `yaml:"retry"`
	Notices     NoticesConfig     `yaml:"notices"`
	Editor      EditorConfig      `yaml:"editor"`
	History     HistoryConfig     `yaml:"history"`
	Attachments AttachmentsConfig `yaml:"attachments"`
}

// CacheConfig selects and sizes the session cache backend
type CacheConfig struct {
	Backend    string `yaml:"backend,omitempty"`
	Path       string `yaml:"path,omitempty"`
	QuotaBytes int    `yaml:"quota_bytes,omitempty"`
}

// RetryConfig controls RemoteChannel retries
type RetryConfig struct {
	Attempts  int           `yaml:"attempts,omitempty"`
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`
}

// NoticesConfig controls notice expiry
type NoticesConfig struct {
	Duration time.Duration `yaml:"duration,omitempty"`
}

// EditorConfig controls buffer persistence
type EditorConfig struct {
	SaveDebounce time.Duration `yaml:"save_debounce,omitempty"`
}

// HistoryConfig controls transcript sizes
type HistoryConfig struct {
	MaxEntries      int `yaml:"max_entries,omitempty"`
	FallbackEntries int `yaml:"fallback_entries,omitempty"`
	SyncLimit       int `yaml:"sync_limit,omitempty"`
}

// AttachmentsConfig controls attachment validation
type AttachmentsConfig struct {
	MaxBytes int `yaml:"max_bytes,omitempty"`
}

// DefaultConfig returns a Config with the standard limits
func DefaultConfig() Config {
	return Config{
		Server: "ws://homeassistant.local:8123/api/websocket",
		Domain: DefaultDomain,
		Cache: CacheConfig{
			Backend:    CacheBackendSQLite,
			QuotaBytes: DefaultQuotaBytes,
		},
		Retry: RetryConfig{
			Attempts:  DefaultRetryAttempts,
			BaseDelay: DefaultRetryBaseDelay,
		},
		Notices: NoticesConfig{Duration: DefaultNoticeDuration},
		Editor:  EditorConfig{SaveDebounce: DefaultSaveDebounce},
		History: HistoryConfig{
			MaxEntries:      DefaultMaxHistory,
			FallbackEntries: DefaultFallbackHistory,
			SyncLimit:       SyncHistoryLimit,
		},
		Attachments: AttachmentsConfig{MaxBytes: DefaultMaxAttachmentBytes},
	}
}

// Merge applies non-zero values from source into c
func (c *Config) Merge(source *Config) {
	if source.Server != "" {
		c.Server = source.Server
	}
	if source.Token != "" {
		c.Token = source.Token
	}
	if source.UserID != "" {
		c.UserID = source.UserID
	}
	if source.Domain != "" {
		c.Domain = source.Domain
	}

	if source.Cache.Backend != "" {
		c.Cache.Backend = source.Cache.Backend
	}
	if source.Cache.Path != "" {
		c.Cache.Path = source.Cache.Path
	}
	if source.Cache.QuotaBytes > 0 {
		c.Cache.QuotaBytes = source.Cache.QuotaBytes
	}

	if source.Retry.Attempts > 0 {
		c.Retry.Attempts = source.Retry.Attempts
	}
	if source.Retry.BaseDelay > 0 {
		c.Retry.BaseDelay = source.Retry.BaseDelay
	}
	if source.Notices.Duration > 0 {
		c.Notices.Duration = source.Notices.Duration
	}
	if source.Editor.SaveDebounce > 0 {
		c.Editor.SaveDebounce = source.Editor.SaveDebounce
	}

	if source.History.MaxEntries > 0 {
		c.History.MaxEntries = source.History.MaxEntries
	}
	if source.History.FallbackEntries > 0 {
		c.History.FallbackEntries = source.History.FallbackEntries
	}
	if source.History.SyncLimit > 0 {
		c.History.SyncLimit = source.History.SyncLimit
	}
	if source.Attachments.MaxBytes > 0 {
		c.Attachments.MaxBytes = source.Attachments.MaxBytes
	}
}

// ApplyEnv overrides connection settings from CODETASK_* environment variables
func (c *Config) ApplyEnv() {
	c.Merge(&Config{
		Server: os.Getenv("CODETASK_SERVER"),
		Token:  os.Getenv("CODETASK_TOKEN"),
		UserID: os.Getenv("CODETASK_USER"),
	})
}

// Validate checks the settings needed to connect
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is not configured")
	}
	if c.Token == "" {
		return fmt.Errorf("token is not configured (set it in the config file or CODETASK_TOKEN)")
	}
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendFile, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend: %s (supported: sqlite, file, memory)", c.Cache.Backend)
	}
	return nil
}

// LoadConfig reads a YAML config file and merges it over the defaults.
// A missing file yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogDebug("Config file %s not found, using defaults", filename)
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
