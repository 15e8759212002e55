// Package domain contains the core entities for clinical fact validation: extracted
// clinical assertions, their classification-specific detail payloads, validation issues
// and the validation report produced for one subject.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// EntityType is the closed set of classifications an extracted clinical fact can carry.
type EntityType string

const (
	EntityDiagnosis    EntityType = "diagnosis"
	EntityProcedure    EntityType = "procedure"
	EntityMedication   EntityType = "medication"
	EntityLabValue     EntityType = "lab_value"
	EntityImaging      EntityType = "imaging"
	EntityPhysicalExam EntityType = "physical_exam"
	EntitySymptom      EntityType = "symptom"
	EntityAdmission    EntityType = "admission"
	EntityDischarge    EntityType = "discharge"
	EntityOther        EntityType = "other"
)

// Laterality of an anatomical finding.
type Laterality string

const (
	LateralityLeft      Laterality = "left"
	LateralityRight     Laterality = "right"
	LateralityBilateral Laterality = "bilateral"
	LateralityMidline   Laterality = "midline"
)

// Severity of a validation issue or temporal conflict.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// IssueCategory names the validation stage an issue originates from.
type IssueCategory string

const (
	CategoryCompleteness    IssueCategory = "completeness"
	CategoryAccuracy        IssueCategory = "accuracy"
	CategoryTemporal        IssueCategory = "temporal"
	CategoryContradiction   IssueCategory = "contradiction"
	CategoryMissingData     IssueCategory = "missing_data"
	CategoryCrossValidation IssueCategory = "cross_validation"
)

// Input invariant and lookup errors
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidEntityType  = errors.New("invalid entity type")
	ErrInvalidConfidence  = errors.New("confidence must be within [0,1]")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
)

var entityAliases = map[string]EntityType{
	"lab":            EntityLabValue,
	"lab value":      EntityLabValue,
	"labvalue":       EntityLabValue,
	"physical exam":  EntityPhysicalExam,
	"physicalexam":   EntityPhysicalExam,
	"exam":           EntityPhysicalExam,
	"med":            EntityMedication,
	"admit":          EntityAdmission,
	"imaging_result": EntityImaging,
}

// IsValid reports whether the entity type belongs to the closed set.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityDiagnosis, EntityProcedure, EntityMedication, EntityLabValue, EntityImaging,
		EntityPhysicalExam, EntitySymptom, EntityAdmission, EntityDischarge, EntityOther:
		return true
	default:
		return false
	}
}

// String returns the wire representation.
func (e EntityType) String() string {
	return string(e)
}

// ParseEntityType normalizes a classification name, accepting common aliases
// ("lab", "physical exam", ...).
func ParseEntityType(s string) (EntityType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if et := EntityType(strings.ReplaceAll(norm, " ", "_")); et.IsValid() {
		return et, nil
	}
	if et, ok := entityAliases[norm]; ok {
		return et, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// IsValid reports whether the laterality is known.
func (l Laterality) IsValid() bool {
	switch l {
	case LateralityLeft, LateralityRight, LateralityBilateral, LateralityMidline:
		return true
	default:
		return false
	}
}

// IsValid reports whether the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Categories lists the issue categories in pipeline stage order.
func Categories() []IssueCategory {
	return []IssueCategory{
		CategoryCompleteness,
		CategoryAccuracy,
		CategoryTemporal,
		CategoryContradiction,
		CategoryMissingData,
		CategoryCrossValidation,
	}
}
