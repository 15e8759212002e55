package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/clinical-fact-validator/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL report store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL report store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, cfg domain.DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Save stores a record, replacing any record with the same ID.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	prepare(record)
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO validation_reports (
			id, subject_id, fingerprint, overall_score, safe_for_use,
			requires_review, critical_issues, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			fingerprint = EXCLUDED.fingerprint,
			overall_score = EXCLUDED.overall_score,
			safe_for_use = EXCLUDED.safe_for_use,
			requires_review = EXCLUDED.requires_review,
			critical_issues = EXCLUDED.critical_issues,
			report = EXCLUDED.report
		RETURNING created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		record.ID,
		record.SubjectID,
		record.Fingerprint,
		record.Report.OverallScore,
		record.Report.SafeForUse,
		record.Report.RequiresReview,
		record.Report.CriticalCount(),
		string(report),
		record.CreatedAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rec, nil
}

// ListBySubject returns a subject's records, newest first.
func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*Record, error) {
	return s.list(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		WHERE subject_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, subjectID, limit, offset)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM validation_reports").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

// Delete removes a record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM validation_reports WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// ExportJSON exports all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.list(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		ORDER BY created_at DESC, id
		LIMIT $1
	`, maxExportLimit)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
