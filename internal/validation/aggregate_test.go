package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinical-fact-validator/internal/domain"
)

func uniform(v float64) Scores {
	return Scores{Completeness: v, Accuracy: v, Temporal: v, Contradiction: v, CrossValidation: v}
}

func TestAggregateSafetyGate(t *testing.T) {
	critical := []domain.ValidationIssue{{Severity: domain.SeverityCritical, Category: domain.CategoryAccuracy, Message: "x"}}
	warning := []domain.ValidationIssue{{Severity: domain.SeverityWarning, Category: domain.CategoryAccuracy, Message: "y"}}

	tests := []struct {
		name      string
		scores    Scores
		threshold float64
		issues    []domain.ValidationIssue
		safe      bool
		review    bool
	}{
		{"at threshold without criticals", uniform(85), 85, warning, true, false},
		{"at threshold with a critical", uniform(85), 85, critical, false, true},
		{"perfect at threshold 100", uniform(100), 100, nil, true, false},
		{"just below threshold", uniform(84.9999), 85, nil, false, true},
		{"below threshold within rounding", uniform(84.99996), 85, nil, false, true},
		{"above threshold with a critical", uniform(99), 85, critical, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultValidationConfig()
			cfg.SafetyThreshold = tt.threshold

			report := Aggregate("s", tt.scores, tt.issues, nil, nil, cfg)

			assert.Equal(t, tt.safe, report.SafeForUse)
			assert.Equal(t, tt.review, report.RequiresReview)
		})
	}
}

func TestAggregateWeights(t *testing.T) {
	cfg := domain.DefaultValidationConfig()

	report := Aggregate("s", Scores{Completeness: 0, Accuracy: 100, Temporal: 50, Contradiction: 100, CrossValidation: 100}, nil, nil, nil, cfg)

	assert.Equal(t, 70.0, report.OverallScore)
	assert.NotNil(t, report.Issues)
	assert.NotNil(t, report.MissingRequired)
	assert.NotNil(t, report.MissingExpected)

	report = Aggregate("s", Scores{Completeness: 100.0 / 3.0}, nil, nil, nil, cfg)
	assert.Equal(t, 6.6667, report.OverallScore)
	assert.Equal(t, 33.3333, report.CompletenessScore)
}

func TestAggregateRoundsOnlyTheStoredScore(t *testing.T) {
	cfg := domain.DefaultValidationConfig()
	cfg.SafetyThreshold = 85

	report := Aggregate("s", uniform(84.99996), nil, nil, nil, cfg)

	assert.Equal(t, 85.0, report.OverallScore)
	assert.False(t, report.SafeForUse)
	assert.True(t, report.RequiresReview)
}

func TestAggregateUsesInjectedWeights(t *testing.T) {
	cfg := domain.DefaultValidationConfig()
	cfg.Weights = domain.ScoreWeights{Accuracy: 1}

	report := Aggregate("s", Scores{Completeness: 0, Accuracy: 90}, nil, nil, nil, cfg)

	assert.Equal(t, 90.0, report.OverallScore)
	assert.True(t, report.SafeForUse)
}
