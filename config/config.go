// Package config provides centralized configuration for the uni-sqlite server.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	Port           string `yaml:"port"`             // HTTP server port (e.g., ":8080")
	DataDir        string `yaml:"data_dir"`         // Allowed root for database, backup, and export paths
	Driver         string `yaml:"driver"`           // database/sql driver name ("sqlite3" or "libsql")
	BusyTimeout    int    `yaml:"busy_timeout"`     // SQLite busy timeout in seconds
	MaxRows        int    `yaml:"max_rows"`         // Maximum rows returned per query (0 = unlimited)
	MaxRequestBody int64  `yaml:"max_request_body"` // Maximum request body size in bytes

	APIKey         string   `yaml:"api_key"`         // Bearer API key (empty disables auth)
	RateLimit      int      `yaml:"rate_limit"`      // Requests per minute per IP (0 = disabled)
	CORSOrigins    []string `yaml:"cors_origins"`    // Allowed CORS origins (empty allows none, "*" allows all)
	RequestTimeout int      `yaml:"request_timeout"` // Request timeout in seconds

	AuditLogPath      string `yaml:"audit_log_path"`      // Request audit database path (empty = disabled)
	AuditLogRetention int    `yaml:"audit_log_retention"` // Days to keep audit entries (0 = forever)
}

// Cfg is the global configuration instance, loaded at startup.
var Cfg Config

func init() {
	Cfg = Load()
}

// Load builds configuration from defaults, an optional YAML file, and
// environment variables, in increasing order of precedence. The YAML file
// path comes from UNISQLITE_CONFIG, falling back to ./uni-sqlite.yaml.
func Load() Config {
	cfg := Config{
		Port:           ":8080",
		DataDir:        ".",
		Driver:         "sqlite3",
		BusyTimeout:    5,
		MaxRows:        10000,
		MaxRequestBody: 1 << 20, // 1MB
		RequestTimeout: 30,
	}

	file := os.Getenv("UNISQLITE_CONFIG")
	if file == "" {
		file = "uni-sqlite.yaml"
	}
	if data, err := os.ReadFile(file); err == nil {
		yaml.Unmarshal(data, &cfg)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.Driver = getEnv("DB_DRIVER", cfg.Driver)
	cfg.BusyTimeout = getEnvInt("DB_BUSY_TIMEOUT", cfg.BusyTimeout)
	cfg.MaxRows = getEnvInt("MAX_ROWS", cfg.MaxRows)
	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", cfg.RateLimit)
	cfg.RequestTimeout = getEnvInt("REQUEST_TIMEOUT", cfg.RequestTimeout)
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		cfg.CORSOrigins = strings.Split(val, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	}
	cfg.AuditLogPath = getEnv("AUDIT_LOG_PATH", cfg.AuditLogPath)
	cfg.AuditLogRetention = getEnvInt("AUDIT_LOG_RETENTION", cfg.AuditLogRetention)

	return cfg
}

// getEnv returns the environment variable value or a default if not set.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable parsed as an int or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
