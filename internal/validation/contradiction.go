package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clinical-fact-validator/internal/domain"
)

const maxContradictions = 10.0

// ContradictionStage finds mutually exclusive facts.
type ContradictionStage struct {
	swingLimits     []domain.LabSwingLimit
	anticoagulants  []string
	hemorrhageTerms []string
}

// NewContradictionStage creates the stage.
func NewContradictionStage(cfg domain.ValidationConfig) *ContradictionStage {
	return &ContradictionStage{
		swingLimits:     cfg.LabSwingLimits,
		anticoagulants:  cfg.Anticoagulants,
		hemorrhageTerms: cfg.HemorrhageTerms,
	}
}

func (s *ContradictionStage) Name() string                   { return "contradiction" }
func (s *ContradictionStage) Category() domain.IssueCategory { return domain.CategoryContradiction }

func (s *ContradictionStage) Evaluate(in *Input) StageResult {
	facts := in.eligible()

	var issues []domain.ValidationIssue
	issues = append(issues, lateralityConflicts(facts)...)
	issues = append(issues, s.labSwings(facts)...)
	if issue, ok := s.anticoagulationConflict(facts); ok {
		issues = append(issues, issue)
	}

	score := 100 - math.Min(float64(len(issues))/maxContradictions, 1)*100
	return StageResult{Score: score, Scored: true, Issues: issues}
}

// lateralityConflicts flags a diagnosis recorded on both the left and the right with
// no bilateral mention.
func lateralityConflicts(facts []domain.ClinicalFact) []domain.ValidationIssue {
	groups := make(map[string]map[domain.Laterality]bool)
	for _, f := range facts {
		if f.Type != domain.EntityDiagnosis {
			continue
		}
		a, ok := f.Anatomy()
		if !ok || a.Laterality == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(f.Name))
		if groups[key] == nil {
			groups[key] = make(map[domain.Laterality]bool)
		}
		groups[key][a.Laterality] = true
	}

	var out []domain.ValidationIssue
	for _, name := range sortedKeys(groups) {
		lats := groups[name]
		if lats[domain.LateralityLeft] && lats[domain.LateralityRight] && !lats[domain.LateralityBilateral] {
			out = append(out, domain.ValidationIssue{
				Severity:       domain.SeverityCritical,
				Category:       domain.CategoryContradiction,
				Field:          "laterality",
				Message:        fmt.Sprintf("Contradictory laterality for %s: left and right", name),
				Recommendation: "Verify correct laterality from source document",
			})
		}
	}
	return out
}

type labReading struct {
	fact  domain.ClinicalFact
	value float64
	at    time.Time
}

// labSwings flags consecutive readings of one test changing by more than the limit
// within the limit's window.
func (s *ContradictionStage) labSwings(facts []domain.ClinicalFact) []domain.ValidationIssue {
	groups := make(map[string][]labReading)
	for _, f := range facts {
		lab, ok := f.Lab()
		ts := f.EffectiveTimestamp()
		if !ok || lab.Value == nil || ts == nil {
			continue
		}
		name := lab.TestName
		if name == "" {
			name = f.Name
		}
		key := strings.ToLower(strings.TrimSpace(name))
		groups[key] = append(groups[key], labReading{fact: f, value: *lab.Value, at: *ts})
	}

	var out []domain.ValidationIssue
	for _, test := range sortedKeys(groups) {
		limit, ok := s.swingLimitFor(test)
		if !ok {
			continue
		}
		readings := groups[test]
		sort.SliceStable(readings, func(i, j int) bool { return readings[i].at.Before(readings[j].at) })
		for i := 0; i+1 < len(readings); i++ {
			a, b := readings[i], readings[i+1]
			elapsed := b.at.Sub(a.at)
			if elapsed < limit.Window && math.Abs(b.value-a.value) > limit.MaxDelta {
				out = append(out, domain.ValidationIssue{
					Severity:       domain.SeverityCritical,
					Category:       domain.CategoryContradiction,
					Field:          "lab_values",
					Message:        fmt.Sprintf("Implausible %s change: %g -> %g in %.1fh", limit.Test, a.value, b.value, elapsed.Hours()),
					FactID:         b.fact.ID,
					Recommendation: "Verify lab values from source",
				})
			}
		}
	}
	return out
}

func (s *ContradictionStage) swingLimitFor(test string) (domain.LabSwingLimit, bool) {
	for _, l := range s.swingLimits {
		if strings.Contains(test, strings.ToLower(l.Test)) {
			return l, true
		}
	}
	return domain.LabSwingLimit{}, false
}

// anticoagulationConflict reports at most one issue for anticoagulants given alongside
// an active hemorrhage.
func (s *ContradictionStage) anticoagulationConflict(facts []domain.ClinicalFact) (domain.ValidationIssue, bool) {
	var anticoagulant, hemorrhage bool
	for _, f := range facts {
		switch f.Type {
		case domain.EntityMedication:
			if containsAny(f.Name, s.anticoagulants) {
				anticoagulant = true
			}
		case domain.EntityDiagnosis:
			if f.IsActive() && containsAny(f.Name, s.hemorrhageTerms) {
				hemorrhage = true
			}
		}
	}
	if !anticoagulant || !hemorrhage {
		return domain.ValidationIssue{}, false
	}
	return domain.ValidationIssue{
		Severity:       domain.SeverityCritical,
		Category:       domain.CategoryContradiction,
		Field:          "medications",
		Message:        "Anticoagulant prescribed with active hemorrhage",
		Recommendation: "Verify clinical decision or correct extraction",
	}, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
