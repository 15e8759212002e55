// Package cache keeps recently computed validation reports keyed by a fingerprint of
// their input, so identical requests skip the pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/clinical-fact-validator/internal/domain"
)

// Entry is a cached report together with the ID it was stored under.
type Entry struct {
	ReportID string                   `json:"report_id"`
	Report   *domain.ValidationReport `json:"report"`
	CachedAt time.Time                `json:"cached_at"`
}

// ReportCache stores entries by fingerprint. A miss is (nil, false, nil).
type ReportCache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type fingerprintInput struct {
	Config     domain.ValidationConfig `json:"config"`
	SubjectID  string                  `json:"subject_id"`
	Facts      []fingerprintFact       `json:"facts"`
	SourceText string                  `json:"source_text"`
	Anchor     string                  `json:"anchor,omitempty"`
}

// fingerprintFact shadows the numeric fields of FactRecord with their text form so
// NaN and infinite values still encode.
type fingerprintFact struct {
	domain.FactRecord
	Confidence string `json:"confidence"`
	SizeMM     string `json:"size_mm,omitempty"`
	Dose       string `json:"dose,omitempty"`
	Value      string `json:"value,omitempty"`
}

// Fingerprint identifies a validation request. Requests with the same configuration,
// subject, facts (in order), source text and anchor share a fingerprint. An error means
// the request cannot be keyed and must not be cached.
func Fingerprint(
	cfg domain.ValidationConfig,
	subjectID string,
	facts []domain.ClinicalFact,
	sourceText string,
	anchor *time.Time,
) (string, error) {
	in := fingerprintInput{
		Config:     cfg,
		SubjectID:  subjectID,
		Facts:      make([]fingerprintFact, len(facts)),
		SourceText: sourceText,
		Anchor:     domain.FormatTimestamp(anchor),
	}
	for i, f := range facts {
		r := f.Record()
		in.Facts[i] = fingerprintFact{
			FactRecord: r,
			Confidence: formatFloat(r.Confidence),
			SizeMM:     formatFloatPtr(r.SizeMM),
			Dose:       formatFloatPtr(r.Dose),
			Value:      formatFloatPtr(r.Value),
		}
	}

	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encoding fingerprint input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
