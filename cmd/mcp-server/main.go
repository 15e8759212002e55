// Package main provides the stand-alone MCP server. It needs no external services:
// reports are kept in SQLite and cached in memory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/cache"
	"github.com/clinical-fact-validator/internal/config"
	"github.com/clinical-fact-validator/internal/mcp"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/store"
)

func main() {
	cfg := config.LoadLiteConfig()
	logger := config.NewLogger(cfg.Logging())

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("MCP server stopped")
}

func run(cfg *config.LiteConfig, logger *logrus.Logger) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"data_dir":  cfg.DataDir,
	}).Info("Starting clinical fact validation MCP server")

	reports, err := store.NewSQLiteStore(cfg.ReportDBPath())
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer reports.Close()

	svc := service.NewValidationService(cfg.Validation(), logger,
		service.WithStore(reports),
		service.WithCache(cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)),
	)

	server, err := mcp.NewServer(svc, "", logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cfg.Transport {
	case "http":
		return server.RunHTTP(ctx, fmt.Sprintf(":%d", cfg.HTTPPort))
	case "stdio", "":
		return server.Run(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
