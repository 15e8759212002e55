package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/migrations"
)

func startPostgres(t *testing.T) (string, domain.DatabaseConfig) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return url, domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        "testpass",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestDSN(t *testing.T) {
	dsn := DSN(domain.DatabaseConfig{Host: "db", Port: 5432, Database: "clinval", Username: "u", Password: "p"})
	assert.Equal(t, "host=db port=5432 dbname=clinval user=u password=p sslmode=disable", dsn)
}

func TestDatabaseConnectionAndMigrations(t *testing.T) {
	url, config := startPostgres(t)
	ctx := context.Background()
	logger := quietLogger()

	runner, err := NewEmbeddedMigrationRunner(url, migrations.FS, logger)
	require.NoError(t, err)
	defer runner.Close()

	status, err := runner.Status()
	require.NoError(t, err)
	assert.False(t, status.Applied)

	require.NoError(t, runner.Up())
	require.NoError(t, runner.Up(), "second up is a no-op")

	status, err = runner.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(3), status.Version)
	assert.False(t, status.Dirty)

	db, err := NewConnection(ctx, config, logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Health(ctx))
	assert.NotZero(t, db.Stats().TotalConns())

	for _, table := range []string{"source_documents", "clinical_facts", "validation_reports"} {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	require.NoError(t, runner.Down(1))
	status, err = runner.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(2), status.Version)
}
