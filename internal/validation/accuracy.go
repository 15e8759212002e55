package validation

import (
	"fmt"
	"strings"

	"github.com/clinical-fact-validator/internal/domain"
)

// AccuracyStage verifies facts against the source document.
type AccuracyStage struct {
	minConfidence float64
}

// NewAccuracyStage creates the stage.
func NewAccuracyStage(cfg domain.ValidationConfig) *AccuracyStage {
	return &AccuracyStage{minConfidence: cfg.MinConfidence}
}

func (s *AccuracyStage) Name() string                   { return "accuracy" }
func (s *AccuracyStage) Category() domain.IssueCategory { return domain.CategoryAccuracy }

// Evaluate counts a fact as verified when its extracted text, or failing that its
// context snippet, occurs in the source case-insensitively.
func (s *AccuracyStage) Evaluate(in *Input) StageResult {
	source := strings.ToLower(in.SourceText)
	var issues []domain.ValidationIssue
	verified := 0

	for _, f := range in.Facts {
		if occursIn(f.Text, source) || occursIn(f.Context, source) {
			verified++
		} else {
			issues = append(issues, domain.ValidationIssue{
				Severity:       domain.SeverityCritical,
				Category:       domain.CategoryAccuracy,
				Field:          "extracted_text",
				Message:        fmt.Sprintf("Cannot verify '%s' in source document", f.Name),
				FactID:         f.ID,
				Recommendation: "Review extraction - may be hallucinated",
			})
		}

		if f.Confidence < s.minConfidence {
			issues = append(issues, domain.ValidationIssue{
				Severity:       domain.SeverityWarning,
				Category:       domain.CategoryAccuracy,
				Field:          "confidence_score",
				Message:        fmt.Sprintf("Low confidence score (%.2f) for '%s'", f.Confidence, f.Name),
				FactID:         f.ID,
				Recommendation: "Consider manual review",
			})
		}
	}

	return StageResult{Score: percent(verified, len(in.Facts), 100), Scored: true, Issues: issues}
}

func occursIn(snippet, lowerSource string) bool {
	snippet = strings.TrimSpace(snippet)
	return snippet != "" && strings.Contains(lowerSource, strings.ToLower(snippet))
}
