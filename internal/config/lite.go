package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the report database and exports

	// Cache settings
	CacheMaxItems int           // Maximum reports in memory cache
	CacheTTL      time.Duration // Report cache TTL

	// Validation
	SafetyThreshold float64 // Overall score needed for safe_for_use
	MinConfidence   float64 // Facts below this confidence get a warning

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".clinical-fact-validator")

	return &LiteConfig{
		DataDir:         dataDir,
		CacheMaxItems:   1000,
		CacheTTL:        time.Hour,
		SafetyThreshold: 85,
		MinConfidence:   0.7,
		Transport:       "stdio",
		HTTPPort:        8081,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("CLINVAL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("CLINVAL_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("CLINVAL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("CLINVAL_SAFETY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 100 {
			cfg.SafetyThreshold = f
		}
	}
	if v := os.Getenv("CLINVAL_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.MinConfidence = f
		}
	}

	if v := os.Getenv("CLINVAL_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("CLINVAL_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("CLINVAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CLINVAL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ReportDBPath returns the path to the report SQLite database.
func (c *LiteConfig) ReportDBPath() string {
	return filepath.Join(c.DataDir, "reports.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
