package domain

// ValidationIssue is one finding of a validation stage.
type ValidationIssue struct {
	Severity       Severity      `json:"severity"`
	Category       IssueCategory `json:"category"`
	Field          string        `json:"field,omitempty"`
	Message        string        `json:"message"`
	FactID         string        `json:"fact_id,omitempty"`
	Recommendation string        `json:"recommendation,omitempty"`
}

// IsCritical reports whether the issue blocks the safety determination.
func (i ValidationIssue) IsCritical() bool {
	return i.Severity == SeverityCritical
}

// ValidationReport is the immutable outcome of one validation run.
type ValidationReport struct {
	SubjectID            string            `json:"subject_id"`
	CompletenessScore    float64           `json:"completeness_score"`
	AccuracyScore        float64           `json:"accuracy_score"`
	TemporalScore        float64           `json:"temporal_score"`
	ContradictionScore   float64           `json:"contradiction_score"`
	CrossValidationScore float64           `json:"cross_validation_score"`
	OverallScore         float64           `json:"overall_score"`
	Issues               []ValidationIssue `json:"issues"`
	SafeForUse           bool              `json:"safe_for_use"`
	RequiresReview       bool              `json:"requires_review"`
	MissingRequired      []EntityType      `json:"missing_required"`
	MissingExpected      []EntityType      `json:"missing_expected"`
}

// CriticalCount returns the number of critical issues.
func (r *ValidationReport) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.IsCritical() {
			n++
		}
	}
	return n
}

// IssuesByCategory returns the issues raised by one stage.
func (r *ValidationReport) IssuesByCategory(c IssueCategory) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Category == c {
			out = append(out, issue)
		}
	}
	return out
}

// IssuesBySeverity returns the issues of a given severity.
func (r *ValidationReport) IssuesBySeverity(s Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == s {
			out = append(out, issue)
		}
	}
	return out
}
