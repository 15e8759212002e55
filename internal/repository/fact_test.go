package repository

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

	"github.com/clinical-fact-validator/internal/database"
	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/migrations"
)

func setupTestRepository(t *testing.T) *FactRepository {
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

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewEmbeddedMigrationRunner(url, migrations.FS, logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	db, err := database.Connect(ctx, url, domain.DatabaseConfig{MaxOpenConns: 5}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewFactRepository(db.Pool, logger)
}

func TestFactRepository_SaveAndList(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC)
	pod := 2
	size := 32.5
	facts := []domain.ClinicalFact{
		{
			ID: "dx", Type: domain.EntityDiagnosis, Name: "glioblastoma", Confidence: 0.92,
			Detail: domain.AnatomyDetail{Laterality: domain.LateralityLeft, Region: "temporal lobe", SizeMM: &size},
		},
		{ID: "op", Type: domain.EntityProcedure, Name: "craniotomy", Confidence: 0.95, Timestamp: &ts},
		{ID: "na", Type: domain.EntityLabValue, Name: "sodium", Confidence: 0.9,
			Temporal: domain.TemporalMarkers{DayOffset: &pod}},
	}
	require.NoError(t, repo.SaveFacts(ctx, "patient-1", facts))

	got, err := repo.ListFactsBySubject(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "dx", got[0].ID)
	anatomy, ok := got[0].Anatomy()
	require.True(t, ok)
	assert.Equal(t, domain.LateralityLeft, anatomy.Laterality)
	require.NotNil(t, anatomy.SizeMM)
	assert.Equal(t, 32.5, *anatomy.SizeMM)

	require.NotNil(t, got[1].Timestamp)
	assert.True(t, ts.Equal(*got[1].Timestamp))
	require.NotNil(t, got[2].Temporal.DayOffset)
	assert.Equal(t, 2, *got[2].Temporal.DayOffset)

	require.NoError(t, repo.SaveFacts(ctx, "patient-1", facts[:1]))
	got, err = repo.ListFactsBySubject(ctx, "patient-1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "save replaces the previous set")
}

func TestFactRepository_ListUnknownSubject(t *testing.T) {
	repo := setupTestRepository(t)

	got, err := repo.ListFactsBySubject(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFactRepository_SourceText(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	later := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := repo.AddSourceDocument(ctx, "patient-1", "discharge", "Discharged home.", &later)
	require.NoError(t, err)
	_, err = repo.AddSourceDocument(ctx, "patient-1", "", "Admitted with headache.", &earlier)
	require.NoError(t, err)

	text, err := repo.SourceText(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, "Admitted with headache.\n\nDischarged home.", text)

	empty, err := repo.SourceText(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFactRepository_DeleteSubject(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveFacts(ctx, "patient-1", []domain.ClinicalFact{
		{ID: "dx", Type: domain.EntityDiagnosis, Name: "glioma", Confidence: 0.9},
	}))
	require.NoError(t, repo.DeleteSubject(ctx, "patient-1"))

	err := repo.DeleteSubject(ctx, "patient-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
