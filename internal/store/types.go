// Package store persists validation reports. SQLiteStore backs the stand-alone MCP
// server and the CLI; PostgresStore backs the HTTP service.
package store

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/clinical-fact-validator/internal/domain"
)

// Record is a stored validation report.
type Record struct {
	ID          string                  `json:"id"`
	SubjectID   string                  `json:"subject_id"`
	Fingerprint string                  `json:"fingerprint"`
	Report      domain.ValidationReport `json:"report"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Store defines the interface for report storage operations.
type Store interface {
	// Save stores a record, replacing any record with the same ID.
	Save(ctx context.Context, record *Record) error

	// Get retrieves a record by ID. Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// ListBySubject returns a subject's records, newest first.
	ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*Record, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export, skipping records whose ID already exists.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of records to export at once.
const maxExportLimit = 1000000

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// prepare assigns an ID and creation time to new records.
func prepare(record *Record) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
