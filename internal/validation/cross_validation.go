package validation

import (
	"fmt"
	"strings"

	"github.com/clinical-fact-validator/internal/domain"
)

// CrossValidationStage compares lab values and medication doses against reference
// ranges.
type CrossValidationStage struct {
	labRanges        []domain.ReferenceRange
	medicationRanges []domain.ReferenceRange
}

// NewCrossValidationStage creates the stage.
func NewCrossValidationStage(cfg domain.ValidationConfig) *CrossValidationStage {
	return &CrossValidationStage{labRanges: cfg.LabRanges, medicationRanges: cfg.MedicationRanges}
}

func (s *CrossValidationStage) Name() string                   { return "cross_validation" }
func (s *CrossValidationStage) Category() domain.IssueCategory { return domain.CategoryCrossValidation }

func (s *CrossValidationStage) Evaluate(in *Input) StageResult {
	var issues []domain.ValidationIssue
	passed, total := 0, 0

	for _, f := range in.eligible() {
		switch f.Type {
		case domain.EntityLabValue:
			lab, ok := f.Lab()
			if !ok || lab.Value == nil {
				continue
			}
			name := lab.TestName
			if name == "" {
				name = f.Name
			}
			for _, r := range matchingRanges(name, s.labRanges) {
				total++
				severity, inRange := r.classify(*lab.Value)
				if inRange {
					passed++
					continue
				}
				issues = append(issues, domain.ValidationIssue{
					Severity:       severity,
					Category:       domain.CategoryCrossValidation,
					Field:          "lab_value",
					Message:        fmt.Sprintf("%s value %g outside normal range (%g-%g)", f.Name, *lab.Value, r.Low, r.High),
					FactID:         f.ID,
					Recommendation: "Verify value from source, may require clinical intervention",
				})
			}
		case domain.EntityMedication:
			med, ok := f.Medication()
			if !ok || med.Dose == nil || *med.Dose == 0 {
				continue
			}
			for _, r := range matchingRanges(f.Name, s.medicationRanges) {
				if r.Unit != "" && !strings.EqualFold(med.DoseUnit, r.Unit) {
					continue
				}
				total++
				severity, inRange := r.classify(*med.Dose)
				if inRange {
					passed++
					continue
				}
				issues = append(issues, domain.ValidationIssue{
					Severity:       severity,
					Category:       domain.CategoryCrossValidation,
					Field:          "medication_dose",
					Message:        fmt.Sprintf("%s dose %g%s outside typical range (%g-%g%s)", f.Name, *med.Dose, r.Unit, r.Low, r.High, r.Unit),
					FactID:         f.ID,
					Recommendation: "Verify dose from source",
				})
			}
		}
	}

	return StageResult{Score: percent(passed, total, 100), Scored: true, Issues: issues}
}

type rangeCheck domain.ReferenceRange

func matchingRanges(name string, ranges []domain.ReferenceRange) []rangeCheck {
	name = strings.ToLower(name)
	var out []rangeCheck
	for _, r := range ranges {
		if strings.Contains(name, strings.ToLower(r.Name)) {
			out = append(out, rangeCheck(r))
		}
	}
	return out
}

// classify returns whether v is in range and, if not, how severe the deviation is.
func (r rangeCheck) classify(v float64) (domain.Severity, bool) {
	if v >= r.Low && v <= r.High {
		return "", true
	}
	if v < r.Low*r.CriticalLowFactor || v > r.High*r.CriticalHighFactor {
		return domain.SeverityCritical, false
	}
	return domain.SeverityWarning, false
}
