package validation

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
)

const neuroSource = `Admitted 01/01/2024 with left frontal glioblastoma. Craniotomy performed on 2024-01-02.
Dexamethasone 4 mg q6h started. Neuro exam: intact. MRI brain shows resection cavity. Sodium 139.`

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// neuroFacts is a complete, consistent fact set for neuroSource.
func neuroFacts() []domain.ClinicalFact {
	return []domain.ClinicalFact{
		{ID: "f-adm", Type: domain.EntityAdmission, Name: "admission", Text: "Admitted 01/01/2024", Confidence: 0.95, Timestamp: date(2024, 1, 1)},
		{
			ID: "f-dx", Type: domain.EntityDiagnosis, Name: "glioblastoma", Text: "left frontal glioblastoma", Confidence: 0.92,
			Timestamp: date(2024, 1, 1),
			Detail:    domain.AnatomyDetail{Laterality: domain.LateralityLeft, Region: "frontal lobe"},
		},
		{
			ID: "f-proc", Type: domain.EntityProcedure, Name: "craniotomy", Text: "Craniotomy performed", Confidence: 0.9,
			Timestamp: date(2024, 1, 2), Temporal: domain.TemporalMarkers{DayOffset: intPtr(0)},
			Detail: domain.ProcedureDetail{Approach: "open"},
		},
		{
			ID: "f-med", Type: domain.EntityMedication, Name: "dexamethasone", Text: "Dexamethasone 4 mg q6h", Confidence: 0.88,
			Temporal: domain.TemporalMarkers{DayOffset: intPtr(1)},
			Detail:   domain.MedicationDetail{Dose: floatPtr(4), DoseUnit: "mg", Frequency: "q6h"},
		},
		{
			ID: "f-exam", Type: domain.EntityPhysicalExam, Name: "neuro exam", Text: "Neuro exam: intact", Confidence: 0.85,
			Temporal: domain.TemporalMarkers{DayOffset: intPtr(1)},
		},
		{
			ID: "f-img", Type: domain.EntityImaging, Name: "MRI brain", Text: "MRI brain shows resection cavity", Confidence: 0.9,
			Temporal: domain.TemporalMarkers{DayOffset: intPtr(1)},
			Detail:   domain.ImagingDetail{Modality: "MRI", Findings: "resection cavity"},
		},
		{
			ID: "f-na", Type: domain.EntityLabValue, Name: "sodium", Text: "Sodium 139", Confidence: 0.97,
			Temporal: domain.TemporalMarkers{DayOffset: intPtr(1)},
			Detail:   domain.LabDetail{TestName: "sodium", Value: floatPtr(139), Unit: "mmol/L"},
		},
	}
}

func countCritical(issues []domain.ValidationIssue) int {
	n := 0
	for _, i := range issues {
		if i.IsCritical() {
			n++
		}
	}
	return n
}

func issueFields(issues []domain.ValidationIssue) []string {
	fields := make([]string, 0, len(issues))
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	return fields
}
