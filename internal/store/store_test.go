package store

import (
	"github.com/clinical-fact-validator/internal/domain"
)

func sampleReport(subject string, overall float64) domain.ValidationReport {
	return domain.ValidationReport{
		SubjectID:            subject,
		CompletenessScore:    100,
		AccuracyScore:        90,
		TemporalScore:        80,
		ContradictionScore:   100,
		CrossValidationScore: 100,
		OverallScore:         overall,
		Issues: []domain.ValidationIssue{
			{
				Severity: domain.SeverityCritical,
				Category: domain.CategoryContradiction,
				Field:    "medications",
				Message:  "Anticoagulant with active hemorrhage",
			},
		},
		RequiresReview:  true,
		MissingRequired: []domain.EntityType{},
		MissingExpected: []domain.EntityType{domain.EntityImaging},
	}
}
