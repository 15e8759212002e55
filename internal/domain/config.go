package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents report cache configuration
type CacheConfig struct {
	RedisURL       string        `mapstructure:"redis_url"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PoolSize       int           `mapstructure:"pool_size"`
	PoolTimeout    time.Duration `mapstructure:"pool_timeout"`
	MemorySize     int           `mapstructure:"memory_size"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
}

// EventsConfig configures report event publishing. Publishing is disabled when no
// brokers are configured.
type EventsConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "stdio", "http"
	HTTPHost      string `mapstructure:"http_host"`
	HTTPPort      int    `mapstructure:"http_port"`
}

// RateLimitConfig configures the per-client token bucket of the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ReferenceRange is a physiologic or dosing range. Values outside [Low, High] are
// warnings; values below Low*CriticalLowFactor or above High*CriticalHighFactor are
// critical.
type ReferenceRange struct {
	Name               string  `mapstructure:"name" json:"name"`
	Low                float64 `mapstructure:"low" json:"low"`
	High               float64 `mapstructure:"high" json:"high"`
	Unit               string  `mapstructure:"unit" json:"unit,omitempty"`
	CriticalLowFactor  float64 `mapstructure:"critical_low_factor" json:"critical_low_factor"`
	CriticalHighFactor float64 `mapstructure:"critical_high_factor" json:"critical_high_factor"`
}

// LabSwingLimit is the largest plausible change of one lab test within Window.
type LabSwingLimit struct {
	Test     string        `mapstructure:"test" json:"test"`
	MaxDelta float64       `mapstructure:"max_delta" json:"max_delta"`
	Window   time.Duration `mapstructure:"window" json:"window"`
}

// ScoreWeights are the contributions of each scored stage to the overall score.
type ScoreWeights struct {
	Completeness    float64 `mapstructure:"completeness"`
	Accuracy        float64 `mapstructure:"accuracy"`
	Temporal        float64 `mapstructure:"temporal"`
	Contradiction   float64 `mapstructure:"contradiction"`
	CrossValidation float64 `mapstructure:"cross_validation"`
}

// Sum returns the total weight.
func (w ScoreWeights) Sum() float64 {
	return w.Completeness + w.Accuracy + w.Temporal + w.Contradiction + w.CrossValidation
}

// ValidationConfig holds every tunable of the temporal resolution and validation core.
type ValidationConfig struct {
	MinConfidence           float64          `mapstructure:"min_confidence"`
	SafetyThreshold         float64          `mapstructure:"safety_threshold"`
	MaxDayOffset            int              `mapstructure:"max_day_offset"`
	ResolutionWarningRate   float64          `mapstructure:"resolution_warning_rate"`
	Weights                 ScoreWeights     `mapstructure:"weights"`
	RequiredTypes           []EntityType     `mapstructure:"required_types"`
	ExpectedTypes           []EntityType     `mapstructure:"expected_types"`
	LabRanges               []ReferenceRange `mapstructure:"lab_ranges"`
	MedicationRanges        []ReferenceRange `mapstructure:"medication_ranges"`
	LabSwingLimits          []LabSwingLimit  `mapstructure:"lab_swing_limits"`
	Anticoagulants          []string         `mapstructure:"anticoagulants"`
	HemorrhageTerms         []string         `mapstructure:"hemorrhage_terms"`
	Parallel                bool             `mapstructure:"parallel"`
	RejectionRecommendation string           `mapstructure:"rejection_recommendation"`
}

// DefaultValidationConfig returns the production defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinConfidence:         0.7,
		SafetyThreshold:       85,
		MaxDayOffset:          100,
		ResolutionWarningRate: 0.8,
		Weights: ScoreWeights{
			Completeness:    0.20,
			Accuracy:        0.25,
			Temporal:        0.20,
			Contradiction:   0.15,
			CrossValidation: 0.20,
		},
		RequiredTypes: []EntityType{EntityDiagnosis, EntityProcedure, EntityMedication},
		ExpectedTypes: []EntityType{EntityPhysicalExam, EntityImaging, EntityLabValue},
		LabRanges: []ReferenceRange{
			{Name: "sodium", Low: 135, High: 145, Unit: "mmol/L", CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
			{Name: "potassium", Low: 3.5, High: 5.0, Unit: "mmol/L", CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
			{Name: "hemoglobin", Low: 12, High: 17, Unit: "g/dL", CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
			{Name: "platelet", Low: 150, High: 400, Unit: "K/uL", CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
			{Name: "inr", Low: 0.8, High: 1.2, CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
			{Name: "glucose", Low: 70, High: 140, Unit: "mg/dL", CriticalLowFactor: 0.7, CriticalHighFactor: 1.5},
		},
		MedicationRanges: []ReferenceRange{
			{Name: "dexamethasone", Low: 0.5, High: 24, Unit: "mg", CriticalLowFactor: 0.5, CriticalHighFactor: 2},
			{Name: "levetiracetam", Low: 250, High: 3000, Unit: "mg", CriticalLowFactor: 0.5, CriticalHighFactor: 2},
			{Name: "phenytoin", Low: 100, High: 600, Unit: "mg", CriticalLowFactor: 0.5, CriticalHighFactor: 2},
			{Name: "enoxaparin", Low: 20, High: 150, Unit: "mg", CriticalLowFactor: 0.5, CriticalHighFactor: 2},
		},
		LabSwingLimits: []LabSwingLimit{
			{Test: "sodium", MaxDelta: 30, Window: 24 * time.Hour},
			{Test: "potassium", MaxDelta: 3.0, Window: 24 * time.Hour},
			{Test: "hemoglobin", MaxDelta: 6.0, Window: 24 * time.Hour},
		},
		Anticoagulants:          []string{"warfarin", "heparin", "enoxaparin"},
		HemorrhageTerms:         []string{"hemorrhage"},
		Parallel:                true,
		RejectionRecommendation: "Re-extract the fact; it was excluded from temporal and numeric checks",
	}
}
