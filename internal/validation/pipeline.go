package validation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/clinical-fact-validator/internal/domain"
)

// Observer is notified after every stage run.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, failed bool)
}

// Pipeline runs the six validation stages and aggregates their results.
type Pipeline struct {
	cfg      domain.ValidationConfig
	stages   []Stage
	observer Observer
	logger   *logrus.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithStage replaces the built-in stage of the same category.
func WithStage(s Stage) Option {
	return func(p *Pipeline) {
		for i, existing := range p.stages {
			if existing.Category() == s.Category() {
				p.stages[i] = s
				return
			}
		}
		p.stages = append(p.stages, s)
	}
}

// WithObserver registers a stage observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// NewPipeline creates a pipeline with the six standard stages in report order.
func NewPipeline(cfg domain.ValidationConfig, logger *logrus.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pipeline{
		cfg: cfg,
		stages: []Stage{
			NewCompletenessStage(cfg),
			NewAccuracyStage(cfg),
			NewTemporalStage(cfg, logger),
			NewContradictionStage(cfg),
			NewMissingDataStage(cfg),
			NewCrossValidationStage(cfg),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in run order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run screens the facts, evaluates every stage and aggregates the results. A stage
// that panics contributes a single critical issue and a zero score; the others are
// unaffected.
func (p *Pipeline) Run(in Input) *domain.ValidationReport {
	start := time.Now()
	eligible, rejected := Screen(in.Facts, p.cfg.RejectionRecommendation)

	results := make([]StageResult, len(p.stages))
	run := func(i int) {
		stageIn := Input{
			SubjectID:  in.SubjectID,
			Facts:      domain.CloneFacts(in.Facts),
			Eligible:   domain.CloneFacts(eligible),
			SourceText: in.SourceText,
			Anchor:     in.Anchor,
		}
		results[i] = p.runStage(p.stages[i], &stageIn)
	}

	if p.cfg.Parallel {
		var wg conc.WaitGroup
		for i := range p.stages {
			wg.Go(func() { run(i) })
		}
		wg.Wait()
	} else {
		for i := range p.stages {
			run(i)
		}
	}

	var scores Scores
	issues := append([]domain.ValidationIssue{}, rejected...)
	var missingRequired, missingExpected []domain.EntityType
	for i, stage := range p.stages {
		r := results[i]
		issues = append(issues, r.Issues...)
		if r.MissingRequired != nil {
			missingRequired = r.MissingRequired
		}
		if r.MissingExpected != nil {
			missingExpected = r.MissingExpected
		}
		if !r.Scored {
			continue
		}
		switch stage.Category() {
		case domain.CategoryCompleteness:
			scores.Completeness = r.Score
		case domain.CategoryAccuracy:
			scores.Accuracy = r.Score
		case domain.CategoryTemporal:
			scores.Temporal = r.Score
		case domain.CategoryContradiction:
			scores.Contradiction = r.Score
		case domain.CategoryCrossValidation:
			scores.CrossValidation = r.Score
		}
	}

	report := Aggregate(in.SubjectID, scores, issues, missingRequired, missingExpected, p.cfg)

	p.logger.WithFields(logrus.Fields{
		"subject_id":      in.SubjectID,
		"facts":           len(in.Facts),
		"rejected":        len(rejected),
		"overall_score":   report.OverallScore,
		"issues":          len(report.Issues),
		"critical_issues": report.CriticalCount(),
		"safe_for_use":    report.SafeForUse,
		"duration_ms":     time.Since(start).Milliseconds(),
	}).Info("Completed validation")

	return report
}

func (p *Pipeline) runStage(stage Stage, in *Input) StageResult {
	var (
		result StageResult
		catch  panics.Catcher
	)
	start := time.Now()
	catch.Try(func() {
		result = stage.Evaluate(in)
	})
	elapsed := time.Since(start)

	recovered := catch.Recovered()
	if p.observer != nil {
		p.observer.ObserveStage(stage.Name(), elapsed, recovered != nil)
	}
	if recovered == nil {
		p.logger.WithFields(logrus.Fields{
			"stage":  stage.Name(),
			"score":  result.Score,
			"issues": len(result.Issues),
		}).Debug("Stage completed")
		return result
	}

	p.logger.WithError(recovered.AsError()).WithFields(logrus.Fields{
		"stage":      stage.Name(),
		"subject_id": in.SubjectID,
	}).Warn("Validation stage failed")

	return StageResult{
		Score:  0,
		Scored: true,
		Issues: []domain.ValidationIssue{{
			Severity:       domain.SeverityCritical,
			Category:       stage.Category(),
			Message:        fmt.Sprintf("%s stage unavailable: %v", stage.Name(), recovered.Value),
			Recommendation: "Re-run validation; results of this stage are missing",
		}},
	}
}
