// Package validation scores the trustworthiness of a subject's clinical fact set. Six
// independent stages each produce issues and, except missing-data detection, a 0-100
// score; the aggregator weighs the scores into a ValidationReport with a safety
// determination.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinical-fact-validator/internal/domain"
)

// Input is what every stage evaluates. Eligible holds the facts that passed input
// screening and is the only set used for temporal and numeric checks.
type Input struct {
	SubjectID  string
	Facts      []domain.ClinicalFact
	Eligible   []domain.ClinicalFact
	SourceText string
	Anchor     *time.Time
}

// eligible falls back to all facts for inputs that were never screened.
func (in *Input) eligible() []domain.ClinicalFact {
	if in.Eligible == nil {
		return in.Facts
	}
	return in.Eligible
}

// StageResult is the outcome of one stage. Scored is false for stages that only
// contribute issues.
type StageResult struct {
	Score           float64
	Scored          bool
	Issues          []domain.ValidationIssue
	MissingRequired []domain.EntityType
	MissingExpected []domain.EntityType
}

// Stage is one independent validation check. Evaluate must not mutate the input.
type Stage interface {
	Name() string
	Category() domain.IssueCategory
	Evaluate(in *Input) StageResult
}

// Screen splits facts into those satisfying the input invariants and one warning issue
// per rejected fact.
func Screen(facts []domain.ClinicalFact, recommendation string) ([]domain.ClinicalFact, []domain.ValidationIssue) {
	eligible := make([]domain.ClinicalFact, 0, len(facts))
	var issues []domain.ValidationIssue
	for _, f := range facts {
		err := f.Validate()
		if err == nil {
			eligible = append(eligible, f)
			continue
		}
		field, msg := "fact", err.Error()
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			field, msg = verr.Field, verr.Message
		}
		issues = append(issues, domain.ValidationIssue{
			Severity:       domain.SeverityWarning,
			Category:       domain.CategoryAccuracy,
			Field:          field,
			Message:        fmt.Sprintf("Fact '%s' excluded from temporal and numeric checks: %s", f.Name, msg),
			FactID:         f.ID,
			Recommendation: recommendation,
		})
	}
	return eligible, issues
}

func percent(passed, total int, empty float64) float64 {
	if total == 0 {
		return empty
	}
	return float64(passed) / float64(total) * 100
}

func containsAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func presentTypes(facts []domain.ClinicalFact) map[domain.EntityType]bool {
	present := make(map[domain.EntityType]bool)
	for _, f := range facts {
		present[f.Type] = true
	}
	return present
}
