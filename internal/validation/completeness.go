package validation

import (
	"fmt"

	"github.com/clinical-fact-validator/internal/domain"
)

// CompletenessStage checks that required and expected classifications are present.
// Per-fact detail warnings are reported but do not count towards the score.
type CompletenessStage struct {
	required []domain.EntityType
	expected []domain.EntityType
}

// NewCompletenessStage creates the stage from the configured type lists.
func NewCompletenessStage(cfg domain.ValidationConfig) *CompletenessStage {
	return &CompletenessStage{required: cfg.RequiredTypes, expected: cfg.ExpectedTypes}
}

func (s *CompletenessStage) Name() string                   { return "completeness" }
func (s *CompletenessStage) Category() domain.IssueCategory { return domain.CategoryCompleteness }

func (s *CompletenessStage) Evaluate(in *Input) StageResult {
	present := presentTypes(in.Facts)
	var issues []domain.ValidationIssue
	passed, total := 0, 0

	for _, et := range s.required {
		total++
		if present[et] {
			passed++
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Severity:       domain.SeverityCritical,
			Category:       domain.CategoryCompleteness,
			Field:          string(et),
			Message:        fmt.Sprintf("Required entity type %s not found", et),
			Recommendation: fmt.Sprintf("Verify extraction captured %s from source document", et),
		})
	}
	for _, et := range s.expected {
		total++
		if present[et] {
			passed++
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Severity:       domain.SeverityWarning,
			Category:       domain.CategoryCompleteness,
			Field:          string(et),
			Message:        fmt.Sprintf("Expected entity type %s not found", et),
			Recommendation: fmt.Sprintf("Review document for %s information", et),
		})
	}

	for _, f := range in.Facts {
		if issue, ok := detailGap(f); ok {
			issues = append(issues, issue)
		}
	}

	// no facts means no check passed; an empty check list is vacuously complete
	score := percent(passed, total, 100)
	return StageResult{Score: score, Scored: true, Issues: issues}
}

func detailGap(f domain.ClinicalFact) (domain.ValidationIssue, bool) {
	issue := domain.ValidationIssue{
		Severity: domain.SeverityWarning,
		Category: domain.CategoryCompleteness,
		FactID:   f.ID,
	}
	switch f.Type {
	case domain.EntityDiagnosis:
		if f.HasAnatomicalContext() {
			return issue, false
		}
		issue.Field = "anatomical_context"
		issue.Message = fmt.Sprintf("Diagnosis '%s' missing anatomical context", f.Name)
	case domain.EntityMedication:
		if med, ok := f.Medication(); ok && med.Dose != nil {
			return issue, false
		}
		issue.Field = "medication_detail"
		issue.Message = fmt.Sprintf("Medication '%s' missing dosing information", f.Name)
	case domain.EntityProcedure:
		if f.EffectiveTimestamp() != nil {
			return issue, false
		}
		issue.Field = "timestamp"
		issue.Message = fmt.Sprintf("Procedure '%s' missing temporal information", f.Name)
	default:
		return issue, false
	}
	return issue, true
}
