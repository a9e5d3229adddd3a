package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreFile      = "file"
	StoreSurrealDB = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// Persistence
	Store   string `yaml:"store"`
	DataDir string `yaml:"data_dir"`

	// Corpus and vocabularies
	AudioRoot    string `yaml:"audio_root"`
	IntentsFile  string `yaml:"intents_file"`
	SlotKeysFile string `yaml:"slot_keys_file"`

	// HTTP server
	ServerPort string `yaml:"server_port"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// fileConfig mirrors Config for YAML decoding; the level is kept as text.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables. If TURNMARK_CONFIG
// names a YAML file its values replace the defaults, and environment
// variables override both.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("TURNMARK_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Store:   StoreFile,
		DataDir: "annotations",

		AudioRoot: "audio",

		ServerPort: "8080",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "turnmark",
		SurrealDBDatabase:  "annotations",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LogFile:  "/tmp/turnmark.log",
		LogLevel: slog.LevelInfo,
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSurrealDB:
	default:
		return fmt.Errorf("config: unknown store %q (want %q or %q)", c.Store, StoreFile, StoreSurrealDB)
	}
	if c.Store == StoreFile && c.DataDir == "" {
		return fmt.Errorf("config: data dir is required for the file store")
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	level := c.LogLevel
	if fc.LogLevel != "" {
		level = parseLogLevel(fc.LogLevel)
	}
	*c = fc.Config
	c.LogLevel = level
	return nil
}

func (c *Config) applyEnv() {
	c.Store = getEnv("TURNMARK_STORE", c.Store)
	c.DataDir = getEnv("TURNMARK_DATA_DIR", c.DataDir)
	c.AudioRoot = getEnv("TURNMARK_AUDIO_ROOT", c.AudioRoot)
	c.IntentsFile = getEnv("TURNMARK_INTENTS_FILE", c.IntentsFile)
	c.SlotKeysFile = getEnv("TURNMARK_SLOT_KEYS_FILE", c.SlotKeysFile)
	c.ServerPort = getEnv("TURNMARK_SERVER_PORT", c.ServerPort)

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.LogFile = getEnv("TURNMARK_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("TURNMARK_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
