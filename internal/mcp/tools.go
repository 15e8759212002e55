package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/store"
	"github.com/clinical-fact-validator/internal/temporal"
)

// ValidateFactsInput is the input schema for the validate_facts tool.
type ValidateFactsInput struct {
	SubjectID  string              `json:"subject_id" jsonschema:"identifier of the patient or case the facts belong to"`
	Facts      []domain.FactRecord `json:"facts" jsonschema:"extracted clinical facts to validate"`
	SourceText string              `json:"source_text,omitempty" jsonschema:"original clinical text the facts were extracted from"`
	Anchor     string              `json:"anchor,omitempty" jsonschema:"RFC 3339 reference instant for relative temporal markers (inferred when omitted)"`
}

// ValidateSubjectInput is the input schema for the validate_subject tool.
type ValidateSubjectInput struct {
	SubjectID string `json:"subject_id" jsonschema:"identifier of a subject whose facts are stored"`
}

// ValidateOutput is the output schema of the validation tools.
type ValidateOutput struct {
	ReportID         string                   `json:"report_id"`
	Fingerprint      string                   `json:"fingerprint"`
	Cached           bool                     `json:"cached"`
	ProcessingTimeMS int64                    `json:"processing_time_ms"`
	Report           *domain.ValidationReport `json:"report"`
}

// BuildTimelineInput is the input schema for the build_timeline tool.
type BuildTimelineInput struct {
	SubjectID string              `json:"subject_id,omitempty" jsonschema:"identifier of the patient or case"`
	Facts     []domain.FactRecord `json:"facts" jsonschema:"clinical facts to place on the timeline"`
	Anchor    string              `json:"anchor,omitempty" jsonschema:"RFC 3339 reference instant for relative temporal markers"`
}

// ParseMarkersInput is the input schema for the parse_temporal_markers tool.
type ParseMarkersInput struct {
	Text string `json:"text" jsonschema:"clinical text to scan for temporal references"`
}

// MarkersOutput lists the temporal references found in a text.
type MarkersOutput struct {
	Found          bool    `json:"found"`
	DayOffset      *int    `json:"day_offset,omitempty"`
	HospitalDay    *int    `json:"hospital_day,omitempty"`
	RelativePhrase string  `json:"relative_phrase,omitempty"`
	RelativeDays   *int    `json:"relative_days,omitempty"`
	Duration       string  `json:"duration,omitempty"`
	DurationHours  float64 `json:"duration_hours,omitempty"`
}

// GetReportInput is the input schema for the get_report tool.
type GetReportInput struct {
	ReportID string `json:"report_id" jsonschema:"identifier returned by a validation tool"`
}

// ReportOutput is a stored report.
type ReportOutput struct {
	ReportID    string                  `json:"report_id"`
	SubjectID   string                  `json:"subject_id"`
	Fingerprint string                  `json:"fingerprint"`
	CreatedAt   string                  `json:"created_at"`
	Report      domain.ValidationReport `json:"report"`
}

// ListReportsInput is the input schema for the list_reports tool.
type ListReportsInput struct {
	SubjectID string `json:"subject_id" jsonschema:"identifier of the patient or case"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of reports to return (default 20)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"number of reports to skip"`
}

// ListReportsOutput is a page of stored reports, newest first.
type ListReportsOutput struct {
	SubjectID string         `json:"subject_id"`
	Count     int            `json:"count"`
	Reports   []ReportOutput `json:"reports"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "validate_facts",
		Description: "Validate extracted clinical facts against the source text. Returns " +
			"per-dimension scores, issues and the safe-for-use determination",
	}, s.handleValidateFacts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "validate_subject",
		Description: "Validate the stored facts and source documents of a subject",
	}, s.handleValidateSubject)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_timeline",
		Description: "Resolve the temporal markers of clinical facts into an ordered timeline with conflicts",
	}, s.handleBuildTimeline)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "parse_temporal_markers",
		Description: "Extract post-operative day, hospital day, relative phrase and duration markers from text",
	}, s.handleParseMarkers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_report",
		Description: "Fetch a stored validation report by id",
	}, s.handleGetReport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_reports",
		Description: "List the stored validation reports of a subject, newest first",
	}, s.handleListReports)
}

func (s *Server) handleValidateFacts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateFactsInput,
) (*mcp.CallToolResult, ValidateOutput, error) {
	anchor, err := parseAnchor(input.Anchor)
	if err != nil {
		return nil, ValidateOutput{}, err
	}

	result, err := s.service.Validate(ctx, &service.ValidateRequest{
		SubjectID:  input.SubjectID,
		Facts:      domain.FactsFromRecords(input.Facts),
		SourceText: input.SourceText,
		Anchor:     anchor,
	})
	if err != nil {
		return nil, ValidateOutput{}, err
	}
	return nil, toValidateOutput(result), nil
}

func (s *Server) handleValidateSubject(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateSubjectInput,
) (*mcp.CallToolResult, ValidateOutput, error) {
	result, err := s.service.ValidateSubject(ctx, input.SubjectID)
	if err != nil {
		return nil, ValidateOutput{}, err
	}
	return nil, toValidateOutput(result), nil
}

func (s *Server) handleBuildTimeline(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildTimelineInput,
) (*mcp.CallToolResult, temporal.TimelineView, error) {
	anchor, err := parseAnchor(input.Anchor)
	if err != nil {
		return nil, temporal.TimelineView{}, err
	}

	timeline, err := s.service.BuildTimeline(ctx, input.SubjectID, domain.FactsFromRecords(input.Facts), anchor)
	if err != nil {
		return nil, temporal.TimelineView{}, err
	}
	return nil, timeline.View(), nil
}

func (s *Server) handleParseMarkers(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ParseMarkersInput,
) (*mcp.CallToolResult, MarkersOutput, error) {
	m := temporal.ParseMarkers(input.Text)
	out := MarkersOutput{
		Found:          !m.IsZero(),
		DayOffset:      m.DayOffset,
		HospitalDay:    m.HospitalDay,
		RelativePhrase: m.RelativePhrase,
		RelativeDays:   m.RelativeDays,
	}
	if m.Duration != nil {
		out.Duration = m.Duration.String()
		out.DurationHours = m.Duration.Hours()
	}
	return nil, out, nil
}

func (s *Server) handleGetReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetReportInput,
) (*mcp.CallToolResult, ReportOutput, error) {
	record, err := s.service.GetReport(ctx, input.ReportID)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	return nil, toReportOutput(record), nil
}

func (s *Server) handleListReports(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListReportsInput,
) (*mcp.CallToolResult, ListReportsOutput, error) {
	records, err := s.service.ListReports(ctx, input.SubjectID, input.Limit, input.Offset)
	if err != nil {
		return nil, ListReportsOutput{}, err
	}

	output := ListReportsOutput{
		SubjectID: input.SubjectID,
		Count:     len(records),
		Reports:   make([]ReportOutput, len(records)),
	}
	for i, record := range records {
		output.Reports[i] = toReportOutput(record)
	}
	return nil, output, nil
}

func parseAnchor(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: anchor: %v", domain.ErrInvalidInput, err)
	}
	return &t, nil
}

func toValidateOutput(result *service.ValidateResult) ValidateOutput {
	return ValidateOutput{
		ReportID:         result.ReportID,
		Fingerprint:      result.Fingerprint,
		Cached:           result.Cached,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
		Report:           result.Report,
	}
}

func toReportOutput(record *store.Record) ReportOutput {
	return ReportOutput{
		ReportID:    record.ID,
		SubjectID:   record.SubjectID,
		Fingerprint: record.Fingerprint,
		CreatedAt:   record.CreatedAt.UTC().Format(time.RFC3339),
		Report:      record.Report,
	}
}
