package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
)

// NewLogger builds a logrus logger from the logging configuration. Unknown levels fall
// back to info.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger.SetOutput(outputFor(cfg.Output))
	return logger
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "", "stdout":
		return os.Stdout
	default:
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return os.Stderr
		}
		return f
	}
}

// Logging returns the logging section of the lite configuration.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	// stdout carries the MCP stdio transport
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// Validation returns the validation configuration of the lite server.
func (c *LiteConfig) Validation() domain.ValidationConfig {
	cfg := domain.DefaultValidationConfig()
	cfg.SafetyThreshold = c.SafetyThreshold
	cfg.MinConfidence = c.MinConfidence
	return cfg
}
