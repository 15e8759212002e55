package validation

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-fact-validator/internal/domain"
)

type panickingStage struct {
	category domain.IssueCategory
}

func (s panickingStage) Name() string                   { return string(s.category) }
func (s panickingStage) Category() domain.IssueCategory { return s.category }
func (s panickingStage) Evaluate(*Input) StageResult    { panic("boom") }

type recordingObserver struct {
	mu       sync.Mutex
	stages   []string
	failures int
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	if failed {
		o.failures++
	}
}

func newPipeline(parallel bool, opts ...Option) *Pipeline {
	cfg := domain.DefaultValidationConfig()
	cfg.Parallel = parallel
	return NewPipeline(cfg, quietLogger(), opts...)
}

func TestPipelineCompleteFactSet(t *testing.T) {
	report := newPipeline(true).Run(Input{SubjectID: "subj-1", Facts: neuroFacts(), SourceText: neuroSource})

	assert.Equal(t, "subj-1", report.SubjectID)
	assert.Equal(t, 100.0, report.CompletenessScore)
	assert.Equal(t, 100.0, report.AccuracyScore)
	assert.Equal(t, 100.0, report.TemporalScore)
	assert.Equal(t, 100.0, report.ContradictionScore)
	assert.Equal(t, 100.0, report.CrossValidationScore)
	assert.Equal(t, 100.0, report.OverallScore)
	assert.Empty(t, report.Issues)
	assert.Empty(t, report.MissingRequired)
	assert.Empty(t, report.MissingExpected)
	assert.True(t, report.SafeForUse)
	assert.False(t, report.RequiresReview)
}

func TestPipelineZeroFacts(t *testing.T) {
	report := newPipeline(true).Run(Input{SubjectID: "subj-1"})

	assert.Equal(t, 0.0, report.CompletenessScore)
	assert.Equal(t, 100.0, report.AccuracyScore)
	assert.Equal(t, 100.0, report.CrossValidationScore)
	assert.Equal(t, 100.0, report.ContradictionScore)
	assert.Equal(t, 50.0, report.TemporalScore)
	assert.Equal(t, 70.0, report.OverallScore)
	assert.Len(t, report.MissingRequired, 3)
	assert.Len(t, report.MissingExpected, 3)
	assert.False(t, report.SafeForUse)
	assert.True(t, report.RequiresReview)
}

func TestPipelineAnticoagulantWithHemorrhage(t *testing.T) {
	facts := append(neuroFacts(),
		domain.ClinicalFact{ID: "f-warf", Type: domain.EntityMedication, Name: "warfarin", Text: "Dexamethasone", Confidence: 0.9,
			Detail: domain.MedicationDetail{Dose: floatPtr(5), DoseUnit: "mg", Frequency: "daily"}},
		domain.ClinicalFact{ID: "f-bleed", Type: domain.EntityDiagnosis, Name: "intraparenchymal hemorrhage", Text: "glioblastoma", Confidence: 0.9,
			Detail: domain.AnatomyDetail{Laterality: domain.LateralityLeft, Region: "frontal lobe"}},
	)

	report := newPipeline(true).Run(Input{SubjectID: "subj-1", Facts: facts, SourceText: neuroSource})

	contradictions := report.IssuesByCategory(domain.CategoryContradiction)
	require.Len(t, contradictions, 1)
	assert.True(t, contradictions[0].IsCritical())
	assert.Equal(t, "medications", contradictions[0].Field)
	assert.Less(t, report.ContradictionScore, 100.0)
	assert.False(t, report.SafeForUse)
	assert.True(t, report.RequiresReview)
}

func TestPipelineStagePanicIsIsolated(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		observer := &recordingObserver{}
		p := newPipeline(parallel, WithStage(panickingStage{category: domain.CategoryAccuracy}), WithObserver(observer))

		report := p.Run(Input{SubjectID: "subj-1", Facts: neuroFacts(), SourceText: neuroSource})

		assert.Equal(t, 0.0, report.AccuracyScore)
		assert.Equal(t, 100.0, report.CompletenessScore)
		assert.Equal(t, 100.0, report.TemporalScore)
		assert.Equal(t, 100.0, report.ContradictionScore)
		assert.Equal(t, 100.0, report.CrossValidationScore)
		require.Len(t, report.Issues, 1)
		assert.True(t, report.Issues[0].IsCritical())
		assert.Equal(t, domain.CategoryAccuracy, report.Issues[0].Category)
		assert.Equal(t, "accuracy stage unavailable: boom", report.Issues[0].Message)
		assert.False(t, report.SafeForUse)
		assert.True(t, report.RequiresReview)

		assert.Len(t, observer.stages, 6)
		assert.Equal(t, 1, observer.failures)
	}
}

func TestPipelineMissingDataStageFailureKeepsScores(t *testing.T) {
	p := newPipeline(false, WithStage(panickingStage{category: domain.CategoryMissingData}))

	report := p.Run(Input{SubjectID: "subj-1", Facts: neuroFacts(), SourceText: neuroSource})

	assert.Equal(t, 100.0, report.OverallScore)
	assert.Equal(t, 1, report.CriticalCount())
	assert.False(t, report.SafeForUse)
	assert.Empty(t, report.MissingRequired)
}

func TestPipelineRejectsInvalidFactsFromNumericChecks(t *testing.T) {
	facts := append(neuroFacts(), domain.ClinicalFact{
		ID: "f-bad", Type: domain.EntityLabValue, Name: "sodium", Text: "Sodium 139", Confidence: 1.5,
		Detail: domain.LabDetail{TestName: "sodium", Value: floatPtr(90)},
	})

	report := newPipeline(true).Run(Input{SubjectID: "subj-1", Facts: facts, SourceText: neuroSource})

	assert.Equal(t, 100.0, report.CrossValidationScore)
	assert.Equal(t, 100.0, report.TemporalScore)
	accuracy := report.IssuesByCategory(domain.CategoryAccuracy)
	require.Len(t, accuracy, 1)
	assert.Equal(t, "confidence", accuracy[0].Field)
	assert.Equal(t, "f-bad", accuracy[0].FactID)
	assert.Equal(t, domain.SeverityWarning, accuracy[0].Severity)
	assert.Equal(t, domain.DefaultValidationConfig().RejectionRecommendation, accuracy[0].Recommendation)
}

func TestPipelineIsDeterministic(t *testing.T) {
	facts := append(neuroFacts(),
		domain.ClinicalFact{ID: "l", Type: domain.EntityDiagnosis, Name: "glioma", Text: "nowhere", Confidence: 0.4,
			Detail: domain.AnatomyDetail{Laterality: domain.LateralityLeft}},
		domain.ClinicalFact{ID: "r", Type: domain.EntityDiagnosis, Name: "glioma", Text: "nowhere", Confidence: 0.4,
			Detail: domain.AnatomyDetail{Laterality: domain.LateralityRight}},
		domain.ClinicalFact{ID: "k", Type: domain.EntityLabValue, Name: "potassium", Text: "Sodium", Confidence: 0.9,
			Temporal: domain.TemporalMarkers{DayOffset: intPtr(150)}, Detail: domain.LabDetail{Value: floatPtr(7.9)}},
	)
	in := Input{SubjectID: "subj-1", Facts: facts, SourceText: neuroSource}

	first, err := json.Marshal(newPipeline(true).Run(in))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		parallel, err := json.Marshal(newPipeline(true).Run(in))
		require.NoError(t, err)
		sequential, err := json.Marshal(newPipeline(false).Run(in))
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(parallel))
		assert.Equal(t, string(first), string(sequential))
	}
}

func TestPipelineDoesNotMutateInput(t *testing.T) {
	facts := neuroFacts()

	newPipeline(true).Run(Input{SubjectID: "subj-1", Facts: facts, SourceText: neuroSource})

	for _, f := range facts {
		assert.Nil(t, f.ResolvedTimestamp, f.ID)
	}
}

func TestPipelineStages(t *testing.T) {
	assert.Equal(t,
		[]string{"completeness", "accuracy", "temporal", "contradiction", "missing_data", "cross_validation"},
		newPipeline(false).Stages())
}
