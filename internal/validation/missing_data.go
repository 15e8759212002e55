package validation

import (
	"fmt"

	"github.com/clinical-fact-validator/internal/domain"
)

// MissingDataStage reports absent detail fields per fact and absent classifications.
// It contributes issues only, never a score.
type MissingDataStage struct {
	required []domain.EntityType
	expected []domain.EntityType
}

// NewMissingDataStage creates the stage.
func NewMissingDataStage(cfg domain.ValidationConfig) *MissingDataStage {
	return &MissingDataStage{required: cfg.RequiredTypes, expected: cfg.ExpectedTypes}
}

func (s *MissingDataStage) Name() string                   { return "missing_data" }
func (s *MissingDataStage) Category() domain.IssueCategory { return domain.CategoryMissingData }

func (s *MissingDataStage) Evaluate(in *Input) StageResult {
	present := presentTypes(in.Facts)
	result := StageResult{
		MissingRequired: []domain.EntityType{},
		MissingExpected: []domain.EntityType{},
	}
	for _, et := range s.required {
		if !present[et] {
			result.MissingRequired = append(result.MissingRequired, et)
		}
	}
	for _, et := range s.expected {
		if !present[et] {
			result.MissingExpected = append(result.MissingExpected, et)
		}
	}

	for _, f := range in.Facts {
		for _, field := range missingFields(f) {
			result.Issues = append(result.Issues, domain.ValidationIssue{
				Severity:       domain.SeverityWarning,
				Category:       domain.CategoryMissingData,
				Field:          field,
				Message:        fmt.Sprintf("%s '%s' missing: %s", f.Type, f.Name, field),
				FactID:         f.ID,
				Recommendation: "Review source document for additional details",
			})
		}
	}
	return result
}

// missingFields lists the expected detail fields a fact lacks.
func missingFields(f domain.ClinicalFact) []string {
	var missing []string
	switch f.Type {
	case domain.EntityDiagnosis:
		a, ok := f.Anatomy()
		if !ok || (a.Region == "" && a.Structure == "") {
			missing = append(missing, "anatomical_context")
		}
		if !ok || a.Laterality == "" {
			missing = append(missing, "laterality")
		}
	case domain.EntityMedication:
		med, ok := f.Medication()
		if !ok || med.Dose == nil {
			missing = append(missing, "dose")
		}
		if !ok || med.Frequency == "" {
			missing = append(missing, "frequency")
		}
	case domain.EntityProcedure:
		if f.EffectiveTimestamp() == nil {
			missing = append(missing, "timestamp")
		}
		if _, ok := f.Procedure(); !ok {
			missing = append(missing, "procedure_detail")
		}
	case domain.EntityImaging:
		img, ok := f.Imaging()
		if !ok {
			missing = append(missing, "imaging_detail")
		} else if img.Modality == "" {
			missing = append(missing, "modality")
		}
	}
	return missing
}
