package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Legacy   LegacyConfig   `yaml:"legacy"`
	Content  ContentConfig  `yaml:"content"`
	Settings SettingsConfig `yaml:"settings"`
	Session  SessionConfig  `yaml:"session"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig contains progress store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LegacyConfig locates the pre-migration relational store.
type LegacyConfig struct {
	Path string `yaml:"path"`
}

// ContentConfig locates the bundled question content documents.
type ContentConfig struct {
	BundleDir string `yaml:"bundle_dir"`
}

// SettingsConfig locates the persisted key/value settings file.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig contains background answer-writer settings.
type SessionConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// ServerConfig contains inspection HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("PASSPORT_CONFIG_PATH", "config/passport.yaml")

	// Missing file is not an error; defaults apply
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/progress.db",
		},
		Legacy: LegacyConfig{
			Path: "data/answer_history.db",
		},
		Content: ContentConfig{
			BundleDir: "content",
		},
		Settings: SettingsConfig{
			Path: "data/settings.yaml",
		},
		Session: SessionConfig{
			QueueSize: 64,
		},
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PASSPORT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PASSPORT_LEGACY_DB_PATH"); v != "" {
		cfg.Legacy.Path = v
	}
	if v := os.Getenv("PASSPORT_CONTENT_DIR"); v != "" {
		cfg.Content.BundleDir = v
	}
	if v := os.Getenv("PASSPORT_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}
	if v := os.Getenv("PASSPORT_SESSION_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.QueueSize = n
		}
	}

	if v := os.Getenv("PASSPORT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PASSPORT_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("PASSPORT_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("PASSPORT_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	if v := os.Getenv("PASSPORT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PASSPORT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Session.QueueSize <= 0 {
		return fmt.Errorf("session queue size must be positive, got %d", c.Session.QueueSize)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
