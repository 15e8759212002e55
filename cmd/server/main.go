package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/api"
	"github.com/clinical-fact-validator/internal/cache"
	"github.com/clinical-fact-validator/internal/config"
	"github.com/clinical-fact-validator/internal/database"
	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/events"
	"github.com/clinical-fact-validator/internal/metrics"
	"github.com/clinical-fact-validator/internal/repository"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/store"
	"github.com/clinical-fact-validator/migrations"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"production": configManager.IsProduction(),
	}).Info("Starting clinical fact validation server")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runMigrations(configManager, logger); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	reports, err := store.NewPostgresStoreFromURL(configManager.GetDatabaseURL(), cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open report store")
	}
	defer reports.Close()

	reportCache, redisCache := newReportCache(cfg.Cache, logger)
	defer reportCache.Close()

	publisher := newPublisher(cfg.Events, logger)
	defer publisher.Close()

	recorder := metrics.NewRecorder()
	svc := service.NewValidationService(cfg.Validation, logger,
		service.WithFactRepository(repository.NewFactRepository(db.Pool, logger)),
		service.WithStore(reports),
		service.WithCache(reportCache),
		service.WithPublisher(publisher),
		service.WithMetrics(recorder),
	)

	opts := []api.Option{
		api.WithMetrics(recorder),
		api.WithHealthCheck("database", db.Health),
	}
	if redisCache != nil {
		opts = append(opts, api.WithHealthCheck("cache", redisCache.Ping))
	}

	server := api.NewServer(configManager, svc, logger, opts...)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Clinical fact validation server stopped")
}

func runMigrations(configManager *config.Manager, logger *logrus.Logger) error {
	dbURL := configManager.GetDatabaseURL()
	path := configManager.GetDatabaseConfig().MigrationsPath

	var (
		runner *database.MigrationRunner
		err    error
	)
	if path != "" {
		runner, err = database.NewMigrationRunner(dbURL, path, logger)
	} else {
		runner, err = database.NewEmbeddedMigrationRunner(dbURL, migrations.FS, logger)
	}
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up()
}

// newReportCache returns the Redis cache behind a circuit breaker, or an in-memory
// cache when Redis is not configured or unreachable at startup.
func newReportCache(cfg domain.CacheConfig, logger *logrus.Logger) (cache.ReportCache, *cache.RedisCache) {
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg)
		if err == nil {
			logger.Info("Using Redis report cache")
			return cache.NewResilientCache(redisCache, cfg.BreakerTimeout, logger), redisCache
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory report cache")
	}
	return cache.NewMemoryCache(cfg.MemorySize, cfg.DefaultTTL), nil
}

func newPublisher(cfg domain.EventsConfig, logger *logrus.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NoopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Report events disabled")
		return events.NoopPublisher{}
	}
	logger.WithField("topic", cfg.Topic).Info("Publishing report events")
	return publisher
}
