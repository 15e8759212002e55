package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinical-fact-validator/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite report store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS validation_reports (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		overall_score REAL NOT NULL,
		safe_for_use INTEGER NOT NULL DEFAULT 0,
		requires_review INTEGER NOT NULL DEFAULT 1,
		critical_issues INTEGER NOT NULL DEFAULT 0,
		report TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reports_subject ON validation_reports(subject_id);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON validation_reports(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// scanRecord scans a row into a Record, decoding the report JSON.
func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var report []byte
	if err := s.Scan(&rec.ID, &rec.SubjectID, &rec.Fingerprint, &report, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(report, &rec.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Save stores a record, replacing any record with the same ID.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	prepare(record)
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_reports (
			id, subject_id, fingerprint, overall_score, safe_for_use,
			requires_review, critical_issues, report, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			fingerprint = excluded.fingerprint,
			overall_score = excluded.overall_score,
			safe_for_use = excluded.safe_for_use,
			requires_review = excluded.requires_review,
			critical_issues = excluded.critical_issues,
			report = excluded.report
	`,
		record.ID,
		record.SubjectID,
		record.Fingerprint,
		record.Report.OverallScore,
		record.Report.SafeForUse,
		record.Report.RequiresReview,
		record.Report.CriticalCount(),
		string(report),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// ListBySubject returns a subject's records, newest first.
func (s *SQLiteStore) ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*Record, error) {
	return s.list(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		WHERE subject_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, subjectID, limit, offset)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM validation_reports").Scan(&count)
	return count, err
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM validation_reports WHERE id = ?", id)
	return err
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.list(ctx, `
		SELECT id, subject_id, fingerprint, report, created_at
		FROM validation_reports
		ORDER BY created_at DESC, id
		LIMIT ?
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func writeExport(writer io.Writer, records []*Record) error {
	if records == nil {
		records = []*Record{}
	}
	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importRecords(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Records {
		_, err := s.Get(ctx, rec.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}
