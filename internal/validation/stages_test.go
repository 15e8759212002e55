package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-fact-validator/internal/domain"
)

func TestCompletenessStage(t *testing.T) {
	cfg := domain.DefaultValidationConfig()
	stage := NewCompletenessStage(cfg)

	t.Run("complete fact set", func(t *testing.T) {
		result := stage.Evaluate(&Input{Facts: neuroFacts()})
		assert.Equal(t, 100.0, result.Score)
		assert.Empty(t, result.Issues)
	})

	t.Run("no facts", func(t *testing.T) {
		result := stage.Evaluate(&Input{})
		assert.Equal(t, 0.0, result.Score)
		assert.Equal(t, 3, countCritical(result.Issues))
		assert.Len(t, result.Issues, 6)
	})

	t.Run("detail gaps do not change the score", func(t *testing.T) {
		facts := []domain.ClinicalFact{{ID: "d", Type: domain.EntityDiagnosis, Name: "glioma"}}
		result := stage.Evaluate(&Input{Facts: facts})

		assert.InDelta(t, 100.0/6.0, result.Score, 1e-9)
		assert.Equal(t, 2, countCritical(result.Issues))
		assert.Contains(t, issueFields(result.Issues), "anatomical_context")
	})

	t.Run("procedure with only a relative marker lacks a timestamp", func(t *testing.T) {
		ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		facts := []domain.ClinicalFact{
			{Type: domain.EntityProcedure, Name: "biopsy", Temporal: domain.TemporalMarkers{HospitalDay: intPtr(2)}},
			{Type: domain.EntityProcedure, Name: "drain", Temporal: domain.TemporalMarkers{DayOffset: intPtr(2)}},
			{Type: domain.EntityProcedure, Name: "craniotomy", Timestamp: &ts},
			{Type: domain.EntityProcedure, Name: "shunt", ResolvedTimestamp: &ts},
		}
		result := stage.Evaluate(&Input{Facts: facts})

		var messages []string
		for _, i := range result.Issues {
			if i.Field == "timestamp" {
				messages = append(messages, i.Message)
			}
		}
		assert.ElementsMatch(t, []string{
			"Procedure 'biopsy' missing temporal information",
			"Procedure 'drain' missing temporal information",
		}, messages)
	})
}

func TestAccuracyStage(t *testing.T) {
	stage := NewAccuracyStage(domain.DefaultValidationConfig())
	source := "Patient started on KEPPRA 500 mg BID for seizure prophylaxis."

	tests := []struct {
		name      string
		facts     []domain.ClinicalFact
		score     float64
		criticals int
		warnings  int
	}{
		{name: "no facts", score: 100},
		{
			name:  "text found case-insensitively",
			facts: []domain.ClinicalFact{{Name: "keppra", Text: "keppra 500 mg", Confidence: 0.9}},
			score: 100,
		},
		{
			name:  "falls back to context",
			facts: []domain.ClinicalFact{{Name: "keppra", Text: "levetiracetam", Context: "for seizure prophylaxis", Confidence: 0.9}},
			score: 100,
		},
		{
			name: "hallucinated and low confidence",
			facts: []domain.ClinicalFact{
				{ID: "x", Name: "warfarin", Text: "warfarin 5 mg", Confidence: 0.5},
				{Name: "keppra", Text: "KEPPRA", Confidence: 0.9},
			},
			score:     50,
			criticals: 1,
			warnings:  1,
		},
		{
			name:      "empty text is never verified",
			facts:     []domain.ClinicalFact{{Name: "blank", Confidence: 0.9}},
			score:     0,
			criticals: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stage.Evaluate(&Input{Facts: tt.facts, SourceText: source})
			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.criticals, countCritical(result.Issues))
			assert.Equal(t, tt.criticals+tt.warnings, len(result.Issues))
		})
	}

	result := stage.Evaluate(&Input{
		Facts:      []domain.ClinicalFact{{ID: "x", Name: "warfarin", Text: "warfarin", Confidence: 0.9}},
		SourceText: source,
	})
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "Cannot verify 'warfarin' in source document", result.Issues[0].Message)
	assert.Equal(t, "Review extraction - may be hallucinated", result.Issues[0].Recommendation)
	assert.Equal(t, "x", result.Issues[0].FactID)
}

func TestTemporalStage(t *testing.T) {
	cfg := domain.DefaultValidationConfig()
	stage := NewTemporalStage(cfg, quietLogger())

	t.Run("fully resolved without conflicts", func(t *testing.T) {
		result := stage.Evaluate(&Input{SubjectID: "s", Facts: neuroFacts()})
		assert.Equal(t, 100.0, result.Score)
		assert.Empty(t, result.Issues)
	})

	t.Run("empty timeline", func(t *testing.T) {
		result := stage.Evaluate(&Input{SubjectID: "s"})
		assert.Equal(t, 50.0, result.Score)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, "temporal_resolution", result.Issues[0].Field)
	})

	t.Run("conflict penalty is capped", func(t *testing.T) {
		facts := []domain.ClinicalFact{{ID: "adm", Type: domain.EntityAdmission, Name: "admission", Timestamp: date(2024, 1, 10)}}
		for d := 1; d <= 6; d++ {
			facts = append(facts, domain.ClinicalFact{Type: domain.EntityProcedure, Name: "line placement", Timestamp: date(2024, 1, d)})
		}
		result := stage.Evaluate(&Input{SubjectID: "s", Facts: facts})

		assert.Equal(t, 50.0, result.Score)
		assert.Equal(t, 6, countCritical(result.Issues))
	})

	t.Run("one conflict and partial resolution", func(t *testing.T) {
		facts := []domain.ClinicalFact{
			{ID: "adm", Type: domain.EntityAdmission, Name: "admission", Timestamp: date(2024, 1, 1)},
			{ID: "proc", Type: domain.EntityProcedure, Name: "craniotomy", Timestamp: date(2023, 12, 31)},
			{ID: "sym", Type: domain.EntitySymptom, Name: "headache"},
			{ID: "sym2", Type: domain.EntitySymptom, Name: "nausea"},
		}
		result := stage.Evaluate(&Input{SubjectID: "s", Facts: facts})

		// 2/4 resolved: 25 + (50 - 10)
		assert.Equal(t, 65.0, result.Score)
		require.Len(t, result.Issues, 2)
		assert.Equal(t, domain.SeverityCritical, result.Issues[0].Severity)
		assert.Equal(t, "proc", result.Issues[0].FactID)
		assert.Equal(t, "Low temporal resolution rate: 50.0%", result.Issues[1].Message)
	})

	t.Run("uses only eligible facts", func(t *testing.T) {
		facts := neuroFacts()
		result := stage.Evaluate(&Input{SubjectID: "s", Facts: facts, Eligible: []domain.ClinicalFact{}})
		assert.Equal(t, 50.0, result.Score)
	})

	t.Run("supplied anchor", func(t *testing.T) {
		facts := []domain.ClinicalFact{{Type: domain.EntityMedication, Name: "heparin", Temporal: domain.TemporalMarkers{DayOffset: intPtr(2)}}}
		result := stage.Evaluate(&Input{SubjectID: "s", Facts: facts, Anchor: date(2024, 1, 1)})
		assert.Equal(t, 100.0, result.Score)
	})
}

func TestContradictionStage(t *testing.T) {
	stage := NewContradictionStage(domain.DefaultValidationConfig())

	t.Run("anticoagulant with active hemorrhage", func(t *testing.T) {
		facts := []domain.ClinicalFact{
			{Type: domain.EntityMedication, Name: "Enoxaparin"},
			{Type: domain.EntityMedication, Name: "warfarin"},
			{Type: domain.EntityDiagnosis, Name: "intracranial hemorrhage"},
			{Type: domain.EntityDiagnosis, Name: "subdural hemorrhage"},
		}
		result := stage.Evaluate(&Input{Facts: facts})

		require.Len(t, result.Issues, 1)
		assert.True(t, result.Issues[0].IsCritical())
		assert.Equal(t, "medications", result.Issues[0].Field)
		assert.Equal(t, 90.0, result.Score)
		assert.Less(t, result.Score, 100.0)
	})

	t.Run("historical or negated hemorrhage is not active", func(t *testing.T) {
		facts := []domain.ClinicalFact{
			{Type: domain.EntityMedication, Name: "heparin"},
			{Type: domain.EntityDiagnosis, Name: "hemorrhage", Historical: true},
			{Type: domain.EntityDiagnosis, Name: "hemorrhage", Negated: true},
			{Type: domain.EntityDiagnosis, Name: "hemorrhage", Hypothetical: true},
		}
		result := stage.Evaluate(&Input{Facts: facts})
		assert.Empty(t, result.Issues)
		assert.Equal(t, 100.0, result.Score)
	})

	t.Run("laterality", func(t *testing.T) {
		left := domain.ClinicalFact{Type: domain.EntityDiagnosis, Name: "Glioma", Detail: domain.AnatomyDetail{Laterality: domain.LateralityLeft}}
		right := domain.ClinicalFact{Type: domain.EntityDiagnosis, Name: "glioma", Detail: domain.AnatomyDetail{Laterality: domain.LateralityRight}}
		bilateral := domain.ClinicalFact{Type: domain.EntityDiagnosis, Name: "glioma", Detail: domain.AnatomyDetail{Laterality: domain.LateralityBilateral}}

		result := stage.Evaluate(&Input{Facts: []domain.ClinicalFact{left, right}})
		require.Len(t, result.Issues, 1)
		assert.Equal(t, "laterality", result.Issues[0].Field)

		result = stage.Evaluate(&Input{Facts: []domain.ClinicalFact{left, right, bilateral}})
		assert.Empty(t, result.Issues)

		result = stage.Evaluate(&Input{Facts: []domain.ClinicalFact{left, left}})
		assert.Empty(t, result.Issues)
	})

	t.Run("lab swings", func(t *testing.T) {
		base := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
		sodium := func(v float64, after time.Duration) domain.ClinicalFact {
			ts := base.Add(after)
			return domain.ClinicalFact{Type: domain.EntityLabValue, Name: "Sodium", Timestamp: &ts,
				Detail: domain.LabDetail{TestName: "sodium", Value: &v}}
		}

		tests := []struct {
			name     string
			facts    []domain.ClinicalFact
			expected int
		}{
			{"implausible swing", []domain.ClinicalFact{sodium(155, 12*time.Hour), sodium(120, 0)}, 1},
			{"plausible change", []domain.ClinicalFact{sodium(130, 0), sodium(140, 12*time.Hour)}, 0},
			{"outside window", []domain.ClinicalFact{sodium(120, 0), sodium(155, 30*time.Hour)}, 0},
			{"no timestamp", []domain.ClinicalFact{
				{Type: domain.EntityLabValue, Name: "sodium", Detail: domain.LabDetail{Value: floatPtr(120)}},
				sodium(155, 0),
			}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result := stage.Evaluate(&Input{Facts: tt.facts})
				assert.Len(t, result.Issues, tt.expected)
			})
		}
	})

	t.Run("penalty capped at ten contradictions", func(t *testing.T) {
		var facts []domain.ClinicalFact
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
			facts = append(facts,
				domain.ClinicalFact{Type: domain.EntityDiagnosis, Name: name, Detail: domain.AnatomyDetail{Laterality: domain.LateralityLeft}},
				domain.ClinicalFact{Type: domain.EntityDiagnosis, Name: name, Detail: domain.AnatomyDetail{Laterality: domain.LateralityRight}},
			)
		}
		result := stage.Evaluate(&Input{Facts: facts})
		assert.Len(t, result.Issues, 12)
		assert.Equal(t, 0.0, result.Score)
		assert.Contains(t, result.Issues[0].Message, "Contradictory laterality for a")
	})
}

func TestMissingDataStage(t *testing.T) {
	stage := NewMissingDataStage(domain.DefaultValidationConfig())

	facts := []domain.ClinicalFact{
		{ID: "dx", Type: domain.EntityDiagnosis, Name: "glioma"},
		{ID: "med", Type: domain.EntityMedication, Name: "keppra", Detail: domain.MedicationDetail{Dose: floatPtr(500)}},
		{ID: "proc", Type: domain.EntityProcedure, Name: "biopsy"},
		{ID: "img", Type: domain.EntityImaging, Name: "CT head", Detail: domain.ImagingDetail{Findings: "no bleed"}},
	}

	result := stage.Evaluate(&Input{Facts: facts})

	assert.False(t, result.Scored)
	assert.Equal(t, []string{"anatomical_context", "laterality", "frequency", "timestamp", "procedure_detail", "modality"}, issueFields(result.Issues))
	for _, i := range result.Issues {
		assert.Equal(t, domain.SeverityWarning, i.Severity)
		assert.Equal(t, domain.CategoryMissingData, i.Category)
	}
	assert.Equal(t, "diagnosis 'glioma' missing: anatomical_context", result.Issues[0].Message)
	assert.Empty(t, result.MissingRequired)
	assert.Equal(t, []domain.EntityType{domain.EntityPhysicalExam, domain.EntityLabValue}, result.MissingExpected)

	empty := stage.Evaluate(&Input{})
	assert.Equal(t, []domain.EntityType{domain.EntityDiagnosis, domain.EntityProcedure, domain.EntityMedication}, empty.MissingRequired)
	assert.Len(t, empty.MissingExpected, 3)
	assert.Empty(t, empty.Issues)
}

func TestCrossValidationStage(t *testing.T) {
	stage := NewCrossValidationStage(domain.DefaultValidationConfig())

	lab := func(name string, v float64) domain.ClinicalFact {
		return domain.ClinicalFact{Type: domain.EntityLabValue, Name: name, Detail: domain.LabDetail{Value: &v}}
	}
	med := func(name string, dose float64, unit string) domain.ClinicalFact {
		return domain.ClinicalFact{Type: domain.EntityMedication, Name: name, Detail: domain.MedicationDetail{Dose: &dose, DoseUnit: unit}}
	}

	tests := []struct {
		name      string
		facts     []domain.ClinicalFact
		score     float64
		criticals int
		warnings  int
	}{
		{name: "no applicable facts", score: 100},
		{name: "sodium in range", facts: []domain.ClinicalFact{lab("Serum sodium", 139)}, score: 100},
		{name: "sodium high", facts: []domain.ClinicalFact{lab("sodium", 150)}, score: 0, warnings: 1},
		{name: "sodium critically low", facts: []domain.ClinicalFact{lab("sodium", 90)}, score: 0, criticals: 1},
		{name: "enoxaparin critical", facts: []domain.ClinicalFact{med("enoxaparin", 400, "mg")}, score: 0, criticals: 1},
		{name: "enoxaparin high", facts: []domain.ClinicalFact{med("Enoxaparin", 160, "MG")}, score: 0, warnings: 1},
		{name: "non-mg dose skipped", facts: []domain.ClinicalFact{med("dexamethasone", 4, "g")}, score: 100},
		{name: "unknown drug", facts: []domain.ClinicalFact{med("ondansetron", 4, "mg")}, score: 100},
		{
			name:     "mixed",
			facts:    []domain.ClinicalFact{lab("potassium", 4.1), lab("glucose", 150), med("phenytoin", 300, "mg"), lab("hemoglobin", 13)},
			score:    75,
			warnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stage.Evaluate(&Input{Facts: tt.facts})
			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.criticals, countCritical(result.Issues))
			assert.Len(t, result.Issues, tt.criticals+tt.warnings)
		})
	}
}

func TestScreen(t *testing.T) {
	facts := []domain.ClinicalFact{
		{ID: "ok", Name: "sodium", Confidence: 0.9},
		{ID: "bad", Name: "potassium", Confidence: 1.5},
		domain.FactRecord{ID: "ts", Type: "lab", Name: "inr", Confidence: 0.9, Timestamp: "sometime"}.ToFact(),
	}

	eligible, issues := Screen(facts, "re-extract")

	require.Len(t, eligible, 1)
	assert.Equal(t, "ok", eligible[0].ID)
	require.Len(t, issues, 2)
	assert.Equal(t, "confidence", issues[0].Field)
	assert.Equal(t, "bad", issues[0].FactID)
	assert.Equal(t, "timestamp", issues[1].Field)
	assert.Equal(t, "re-extract", issues[1].Recommendation)
	assert.Equal(t, domain.SeverityWarning, issues[1].Severity)
}
