// Package config loads application configuration from a YAML file, .env and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// database
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`

	// telegram
	TGApiID        int     `yaml:"api_id"`
	TGApiHash      string  `yaml:"api_hash"`
	TGPhone        string  `yaml:"phone"`
	SessionPath    string  `yaml:"session_path"`
	TGRateLimitRPS float64 `yaml:"rate_limit_rps"`

	// sync
	SyncPageSize           int `yaml:"page_size"`
	SyncMaxThrottleRetries int `yaml:"max_throttle_retries"`

	// nats, empty url disables event publishing
	NatsURL string `yaml:"nats_url"`

	// server
	HTTPPort int `yaml:"http_port"`

	// logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// ErrMissingCredentials is returned by Validate when telegram api credentials are absent.
var ErrMissingCredentials = errors.New("TG_API_ID and TG_API_HASH are required")

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	dataDir := DataDir()
	return &Config{
		DatabasePath:           filepath.Join(dataDir, "telememo.db"),
		SessionPath:            filepath.Join(dataDir, "session.db"),
		TGRateLimitRPS:         2.0,
		SyncPageSize:           100,
		SyncMaxThrottleRetries: 5,
		HTTPPort:               3100,
		LogLevel:               "info",
	}
}

// Load reads configuration with the precedence defaults < config file < .env < environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, FilePath()); err != nil {
		return nil, err
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.TGApiID = getEnvInt("TG_API_ID", cfg.TGApiID)
	cfg.TGApiHash = getEnv("TG_API_HASH", cfg.TGApiHash)
	cfg.TGPhone = getEnv("TG_PHONE", cfg.TGPhone)
	cfg.SessionPath = getEnv("SESSION_PATH", cfg.SessionPath)
	cfg.TGRateLimitRPS = getEnvFloat("TG_RATE_LIMIT_RPS", cfg.TGRateLimitRPS)
	cfg.SyncPageSize = getEnvInt("SYNC_PAGE_SIZE", cfg.SyncPageSize)
	cfg.SyncMaxThrottleRetries = getEnvInt("SYNC_MAX_THROTTLE_RETRIES", cfg.SyncMaxThrottleRetries)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	if cfg.SyncPageSize <= 0 || cfg.SyncPageSize > 100 {
		cfg.SyncPageSize = 100
	}
	if cfg.SyncMaxThrottleRetries < 0 {
		cfg.SyncMaxThrottleRetries = 0
	}

	return cfg, nil
}

// Validate checks the settings needed to talk to telegram.
func (c *Config) Validate() error {
	if c.TGApiID == 0 || c.TGApiHash == "" {
		return ErrMissingCredentials
	}
	return nil
}

// FilePath returns the config file location, TELEMEMO_CONFIG wins over the XDG default.
func FilePath() string {
	if p := os.Getenv("TELEMEMO_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "telememo", "config.yaml")
}

// DataDir returns the directory holding the database and session files.
func DataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "telememo")
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
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

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
