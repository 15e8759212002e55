package validation

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/temporal"
)

const (
	resolutionPoints   = 50.0
	conflictPoints     = 50.0
	conflictPenaltyPer = 10.0
)

// TemporalStage builds a private timeline and scores resolution coverage and
// conflicts.
type TemporalStage struct {
	builder     *temporal.Builder
	warningRate float64
}

// NewTemporalStage creates the stage.
func NewTemporalStage(cfg domain.ValidationConfig, logger *logrus.Logger) *TemporalStage {
	return &TemporalStage{
		builder:     temporal.NewBuilder(temporal.NewDetector(cfg.MaxDayOffset), logger),
		warningRate: cfg.ResolutionWarningRate,
	}
}

func (s *TemporalStage) Name() string                   { return "temporal" }
func (s *TemporalStage) Category() domain.IssueCategory { return domain.CategoryTemporal }

// Evaluate scores rate*50 plus 50 minus 10 per conflict, the conflict half floored
// at 0.
func (s *TemporalStage) Evaluate(in *Input) StageResult {
	tl := s.builder.Build(in.SubjectID, in.eligible(), in.Anchor)

	var issues []domain.ValidationIssue
	for _, c := range tl.Conflicts {
		severity := domain.SeverityWarning
		if c.Severity == domain.SeverityCritical {
			severity = domain.SeverityCritical
		}
		issue := domain.ValidationIssue{
			Severity:       severity,
			Category:       domain.CategoryTemporal,
			Field:          "timeline",
			Message:        c.Description,
			Recommendation: "Review temporal information and resolve conflict",
		}
		if len(c.First.FactIDs) > 0 {
			issue.FactID = c.First.FactIDs[0]
		}
		issues = append(issues, issue)
	}

	rate := tl.ResolutionRate()
	if rate < s.warningRate {
		issues = append(issues, domain.ValidationIssue{
			Severity:       domain.SeverityWarning,
			Category:       domain.CategoryTemporal,
			Field:          "temporal_resolution",
			Message:        fmt.Sprintf("Low temporal resolution rate: %.1f%%", rate*100),
			Recommendation: "Add more explicit dates/times to improve timeline accuracy",
		})
	}

	penalty := math.Min(conflictPenaltyPer*float64(len(tl.Conflicts)), conflictPoints)
	score := rate*resolutionPoints + math.Max(0, conflictPoints-penalty)
	return StageResult{Score: score, Scored: true, Issues: issues}
}
