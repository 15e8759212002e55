package validation

import (
	"github.com/shopspring/decimal"

	"github.com/clinical-fact-validator/internal/domain"
)

const scorePrecision = 4

// Scores are the five weighted stage scores.
type Scores struct {
	Completeness    float64
	Accuracy        float64
	Temporal        float64
	Contradiction   float64
	CrossValidation float64
}

// Aggregate weighs the stage scores into a report. A report is safe for use when the
// overall score reaches the threshold and no issue is critical; it requires review when
// the score falls short or any issue is critical. Both can hold at once.
func Aggregate(subjectID string, s Scores, issues []domain.ValidationIssue, missingRequired, missingExpected []domain.EntityType, cfg domain.ValidationConfig) *domain.ValidationReport {
	w := cfg.Weights
	overall := weighted(s.Completeness, w.Completeness).
		Add(weighted(s.Accuracy, w.Accuracy)).
		Add(weighted(s.Temporal, w.Temporal)).
		Add(weighted(s.Contradiction, w.Contradiction)).
		Add(weighted(s.CrossValidation, w.CrossValidation))

	critical := false
	for _, issue := range issues {
		if issue.IsCritical() {
			critical = true
			break
		}
	}
	// compared before rounding so a score just short of the threshold never rounds up into it
	meetsThreshold := overall.GreaterThanOrEqual(decimal.NewFromFloat(cfg.SafetyThreshold))

	if issues == nil {
		issues = []domain.ValidationIssue{}
	}
	if missingRequired == nil {
		missingRequired = []domain.EntityType{}
	}
	if missingExpected == nil {
		missingExpected = []domain.EntityType{}
	}

	return &domain.ValidationReport{
		SubjectID:            subjectID,
		CompletenessScore:    round(s.Completeness),
		AccuracyScore:        round(s.Accuracy),
		TemporalScore:        round(s.Temporal),
		ContradictionScore:   round(s.Contradiction),
		CrossValidationScore: round(s.CrossValidation),
		OverallScore:         overall.Round(scorePrecision).InexactFloat64(),
		Issues:               issues,
		SafeForUse:           meetsThreshold && !critical,
		RequiresReview:       !meetsThreshold || critical,
		MissingRequired:      missingRequired,
		MissingExpected:      missingExpected,
	}
}

func weighted(score, weight float64) decimal.Decimal {
	return decimal.NewFromFloat(score).Mul(decimal.NewFromFloat(weight))
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(scorePrecision).InexactFloat64()
}
