// Package config loads service configuration. Manager reads YAML files and CLINVAL_*
// environment variables through viper; LiteConfig reads plain environment variables
// for the stand-alone MCP server.
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"

	"github.com/clinical-fact-validator/internal/domain"
)

const envPrefix = "CLINVAL"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a manager reading an explicit config file. An empty path
// searches the default locations.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clinical-fact-validator/")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and environment variables apply without one
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	fillValidationTables(&config.Validation)

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls_enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "clinical_facts")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	// empty uses the migrations embedded in the binary
	v.SetDefault("database.migrations_path", "")

	// Cache defaults
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.breaker_timeout", "30s")

	// Events defaults
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "clinical.validation.reports")
	v.SetDefault("events.write_timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "clinical-fact-validator")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "stdio")
	v.SetDefault("mcp.http_host", "127.0.0.1")
	v.SetDefault("mcp.http_port", 8081)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	// Validation defaults; reference tables are filled after unmarshaling
	d := domain.DefaultValidationConfig()
	v.SetDefault("validation.min_confidence", d.MinConfidence)
	v.SetDefault("validation.safety_threshold", d.SafetyThreshold)
	v.SetDefault("validation.max_day_offset", d.MaxDayOffset)
	v.SetDefault("validation.resolution_warning_rate", d.ResolutionWarningRate)
	v.SetDefault("validation.weights.completeness", d.Weights.Completeness)
	v.SetDefault("validation.weights.accuracy", d.Weights.Accuracy)
	v.SetDefault("validation.weights.temporal", d.Weights.Temporal)
	v.SetDefault("validation.weights.contradiction", d.Weights.Contradiction)
	v.SetDefault("validation.weights.cross_validation", d.Weights.CrossValidation)
	v.SetDefault("validation.parallel", d.Parallel)
	v.SetDefault("validation.rejection_recommendation", d.RejectionRecommendation)
}

// fillValidationTables supplies the default lists for any the configuration left
// empty.
func fillValidationTables(cfg *domain.ValidationConfig) {
	d := domain.DefaultValidationConfig()
	if len(cfg.RequiredTypes) == 0 {
		cfg.RequiredTypes = d.RequiredTypes
	}
	if len(cfg.ExpectedTypes) == 0 {
		cfg.ExpectedTypes = d.ExpectedTypes
	}
	if len(cfg.LabRanges) == 0 {
		cfg.LabRanges = d.LabRanges
	}
	if len(cfg.MedicationRanges) == 0 {
		cfg.MedicationRanges = d.MedicationRanges
	}
	if len(cfg.LabSwingLimits) == 0 {
		cfg.LabSwingLimits = d.LabSwingLimits
	}
	if len(cfg.Anticoagulants) == 0 {
		cfg.Anticoagulants = d.Anticoagulants
	}
	if len(cfg.HemorrhageTerms) == 0 {
		cfg.HemorrhageTerms = d.HemorrhageTerms
	}
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetValidationConfig returns a copy of the validation configuration
func (m *Manager) GetValidationConfig() domain.ValidationConfig {
	return m.config.Validation
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if err := ValidateValidationConfig(config.Validation); err != nil {
		return err
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// ValidateValidationConfig checks thresholds, weights and reference ranges.
func ValidateValidationConfig(cfg domain.ValidationConfig) error {
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return fmt.Errorf("validation.min_confidence must be within [0,1]: %v", cfg.MinConfidence)
	}
	if cfg.SafetyThreshold < 0 || cfg.SafetyThreshold > 100 {
		return fmt.Errorf("validation.safety_threshold must be within [0,100]: %v", cfg.SafetyThreshold)
	}
	if cfg.ResolutionWarningRate < 0 || cfg.ResolutionWarningRate > 1 {
		return fmt.Errorf("validation.resolution_warning_rate must be within [0,1]: %v", cfg.ResolutionWarningRate)
	}
	if cfg.MaxDayOffset <= 0 {
		return fmt.Errorf("validation.max_day_offset must be positive: %d", cfg.MaxDayOffset)
	}
	if sum := cfg.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("validation.weights must sum to 1.0, got %.6f", sum)
	}
	for _, r := range append(append([]domain.ReferenceRange{}, cfg.LabRanges...), cfg.MedicationRanges...) {
		if r.Name == "" || r.Low > r.High {
			return fmt.Errorf("invalid reference range %q: %v-%v", r.Name, r.Low, r.High)
		}
	}
	for _, et := range append(append([]domain.EntityType{}, cfg.RequiredTypes...), cfg.ExpectedTypes...) {
		if !et.IsValid() {
			return fmt.Errorf("invalid entity type in validation config: %q", et)
		}
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection as a URL, as required by migrate.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
