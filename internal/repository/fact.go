// Package repository loads a subject's extracted clinical facts and source documents
// from PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
)

// documentSeparator joins a subject's source documents into one text.
const documentSeparator = "\n\n"

// FactRepository handles clinical fact and source document persistence
type FactRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewFactRepository creates a new fact repository
func NewFactRepository(db *pgxpool.Pool, logger *logrus.Logger) *FactRepository {
	return &FactRepository{
		db:  db,
		log: logger,
	}
}

// SaveFacts replaces the stored facts of a subject, keeping the given order.
func (r *FactRepository) SaveFacts(ctx context.Context, subjectID string, facts []domain.ClinicalFact) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning fact transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM clinical_facts WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("clearing facts: %w", err)
	}

	batch := &pgx.Batch{}
	for i, fact := range facts {
		record := fact.Record()
		if record.ID == "" {
			record.ID = fmt.Sprintf("fact_%d", i)
		}
		batch.Queue(`
			INSERT INTO clinical_facts (subject_id, fact_id, position, entity_type, record)
			VALUES ($1, $2, $3, $4, $5)`,
			subjectID, record.ID, i, record.Type, record,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"facts":      len(facts),
			"error":      err,
		}).Error("Failed to save facts")
		return fmt.Errorf("inserting facts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing facts: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"subject_id": subjectID,
		"facts":      len(facts),
	}).Info("Facts saved successfully")
	return nil
}

// ListFactsBySubject returns a subject's facts in stored order.
func (r *FactRepository) ListFactsBySubject(ctx context.Context, subjectID string) ([]domain.ClinicalFact, error) {
	query := `
		SELECT record
		FROM clinical_facts
		WHERE subject_id = $1
		ORDER BY position, fact_id`

	rows, err := r.db.Query(ctx, query, subjectID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"error":      err,
		}).Error("Failed to list facts")
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	facts := []domain.ClinicalFact{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning fact row: %w", err)
		}
		var record domain.FactRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decoding fact record: %w", err)
		}
		facts = append(facts, record.ToFact())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fact rows: %w", err)
	}
	return facts, nil
}

// AddSourceDocument stores a source document and returns its ID.
func (r *FactRepository) AddSourceDocument(ctx context.Context, subjectID, documentType, content string, authoredAt *time.Time) (int64, error) {
	if documentType == "" {
		documentType = "note"
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO source_documents (subject_id, document_type, content, authored_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		subjectID, documentType, content, authoredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adding source document: %w", err)
	}
	return id, nil
}

// SourceText concatenates a subject's documents in authored order. Documents without an
// authored time sort by insertion time.
func (r *FactRepository) SourceText(ctx context.Context, subjectID string) (string, error) {
	query := `
		SELECT content
		FROM source_documents
		WHERE subject_id = $1
		ORDER BY COALESCE(authored_at, created_at), id`

	rows, err := r.db.Query(ctx, query, subjectID)
	if err != nil {
		return "", fmt.Errorf("loading source documents: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("scanning source document: %w", err)
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating source documents: %w", err)
	}
	return strings.Join(parts, documentSeparator), nil
}

// DeleteSubject removes every fact and document of a subject.
func (r *FactRepository) DeleteSubject(ctx context.Context, subjectID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	facts, err := tx.Exec(ctx, `DELETE FROM clinical_facts WHERE subject_id = $1`, subjectID)
	if err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	docs, err := tx.Exec(ctx, `DELETE FROM source_documents WHERE subject_id = $1`, subjectID)
	if err != nil {
		return fmt.Errorf("deleting source documents: %w", err)
	}
	if facts.RowsAffected() == 0 && docs.RowsAffected() == 0 {
		return fmt.Errorf("subject %s: %w", subjectID, domain.ErrNotFound)
	}
	return tx.Commit(ctx)
}
