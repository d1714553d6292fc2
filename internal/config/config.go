// Package config loads keeper configuration from defaults, an optional YAML
// file and KEEPER_* environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Generator providers.
const (
	ProviderScripted  = "scripted"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Redis      RedisConfig      `koanf:"redis"`
	Generator  GeneratorConfig  `koanf:"generator"`
	Log        LogConfig        `koanf:"log"`
	Session    SessionConfig    `koanf:"session"`
	Encryption EncryptionConfig `koanf:"encryption"`
	Scenario   ScenarioConfig   `koanf:"scenario"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	// Path is the directory for the file driver and the database file for sqlite.
	Path string `koanf:"path"`
	// Redact lists regular expressions masked in history before saving.
	Redact []string `koanf:"redact"`
}

// RedisConfig configures the redis driver and the distributed locker.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// GeneratorConfig selects the narrative generator.
type GeneratorConfig struct {
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Script      string  `koanf:"script"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SessionConfig tunes the session manager and the engine.
type SessionConfig struct {
	RejectBusy    bool          `koanf:"reject_busy"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
	HistoryWindow int           `koanf:"history_window"`
}

// EncryptionConfig enables encryption at rest. Keys are base64 encoded
// 32-byte AES keys.
type EncryptionConfig struct {
	Key          string   `koanf:"key"`
	FallbackKeys []string `koanf:"fallback_keys"`
}

// ScenarioConfig locates scenario files.
type ScenarioConfig struct {
	Dir string `koanf:"dir"`
	// ID is the scenario new sessions run.
	ID     string `koanf:"id"`
	Ending string `koanf:"ending"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverFile
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "keeper:session:"
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = ProviderScripted
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Session.LockTTL == 0 {
		cfg.Session.LockTTL = 30 * time.Second
	}
	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = 20
	}
	if cfg.Scenario.Dir == "" {
		cfg.Scenario.Dir = "scenarios"
	}
	if cfg.Scenario.ID == "" {
		cfg.Scenario.ID = "haunting"
	}
	if cfg.Scenario.Ending == "" {
		cfg.Scenario.Ending = "victory"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("store.driver: unsupported driver %q", c.Store.Driver)
	}
	switch c.Generator.Provider {
	case ProviderScripted:
	case ProviderOpenAI, ProviderAnthropic:
		if c.Generator.Model == "" {
			return fmt.Errorf("generator.model is required for provider %s", c.Generator.Provider)
		}
	default:
		return fmt.Errorf("generator.provider: unsupported provider %q", c.Generator.Provider)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Session.LockTTL < 0 {
		return fmt.Errorf("session.lock_ttl must not be negative")
	}
	if c.Session.HistoryWindow < 0 {
		return fmt.Errorf("session.history_window must not be negative")
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	return nil
}

// EncryptionKeys decodes the configured keys. active is nil when encryption
// is disabled.
func (c *Config) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if c.Encryption.Key == "" {
		if len(c.Encryption.FallbackKeys) > 0 {
			return nil, nil, fmt.Errorf("encryption.fallback_keys set without encryption.key")
		}
		return nil, nil, nil
	}
	active, err = decodeKey(c.Encryption.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption.key: %w", err)
	}
	for i, k := range c.Encryption.FallbackKeys {
		b, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}
	return b, nil
}
