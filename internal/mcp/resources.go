package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clinical-fact-validator/internal/domain"
)

const uriScheme = "clinval://"

type configResource struct {
	SafetyThreshold       float64                 `json:"safety_threshold"`
	MinConfidence         float64                 `json:"min_confidence"`
	MaxDayOffset          int                     `json:"max_day_offset"`
	ResolutionWarningRate float64                 `json:"resolution_warning_rate"`
	Weights               map[string]float64      `json:"weights"`
	RequiredTypes         []domain.EntityType     `json:"required_types"`
	ExpectedTypes         []domain.EntityType     `json:"expected_types"`
	LabRanges             []domain.ReferenceRange `json:"lab_ranges"`
	MedicationRanges      []domain.ReferenceRange `json:"medication_ranges"`
	Anticoagulants        []string                `json:"anticoagulants"`
	Stages                []string                `json:"stages"`
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "config",
		Name:        "validation-config",
		Description: "Thresholds, score weights and reference ranges used by the validator",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "reports/{reportId}",
		Name:        "validation-report",
		Description: "A stored validation report",
		MIMEType:    "application/json",
	}, s.handleReportResource)
}

func (s *Server) handleConfigResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	cfg := s.service.Config()
	view := configResource{
		SafetyThreshold:       cfg.SafetyThreshold,
		MinConfidence:         cfg.MinConfidence,
		MaxDayOffset:          cfg.MaxDayOffset,
		ResolutionWarningRate: cfg.ResolutionWarningRate,
		Weights: map[string]float64{
			"completeness":     cfg.Weights.Completeness,
			"accuracy":         cfg.Weights.Accuracy,
			"temporal":         cfg.Weights.Temporal,
			"contradiction":    cfg.Weights.Contradiction,
			"cross_validation": cfg.Weights.CrossValidation,
		},
		RequiredTypes:    cfg.RequiredTypes,
		ExpectedTypes:    cfg.ExpectedTypes,
		LabRanges:        cfg.LabRanges,
		MedicationRanges: cfg.MedicationRanges,
		Anticoagulants:   cfg.Anticoagulants,
		Stages:           s.service.Stages(),
	}
	return jsonResource(req.Params.URI, view)
}

func (s *Server) handleReportResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractReportID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	record, err := s.service.GetReport(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return jsonResource(req.Params.URI, toReportOutput(record))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractReportID returns the id of clinval://reports/{id}, or "" for any other URI.
func extractReportID(uri string) string {
	id, ok := strings.CutPrefix(uri, uriScheme+"reports/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
