package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/middleware"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/store"
)

// ValidateRequest is the body of POST /api/v1/validate.
type ValidateRequest struct {
	SubjectID  string              `json:"subject_id"`
	Facts      []domain.FactRecord `json:"facts"`
	SourceText string              `json:"source_text"`
	Anchor     string              `json:"anchor,omitempty"`
}

// TimelineRequest is the body of POST /api/v1/timeline.
type TimelineRequest struct {
	SubjectID string              `json:"subject_id"`
	Facts     []domain.FactRecord `json:"facts"`
	Anchor    string              `json:"anchor,omitempty"`
}

// ValidateResponse wraps a report with its storage metadata.
type ValidateResponse struct {
	ReportID         string                   `json:"report_id"`
	Fingerprint      string                   `json:"fingerprint"`
	Cached           bool                     `json:"cached"`
	ProcessingTimeMS int64                    `json:"processing_time_ms"`
	Report           *domain.ValidationReport `json:"report"`
}

// ReportListResponse is a page of stored reports.
type ReportListResponse struct {
	SubjectID string          `json:"subject_id"`
	Count     int             `json:"count"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	Reports   []*store.Record `json:"reports"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid request body", err.Error())
		return
	}
	anchor, ok := s.parseAnchor(c, req.Anchor)
	if !ok {
		return
	}

	result, err := s.service.Validate(c.Request.Context(), &service.ValidateRequest{
		SubjectID:  req.SubjectID,
		Facts:      domain.FactsFromRecords(req.Facts),
		SourceText: req.SourceText,
		Anchor:     anchor,
	})
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toValidateResponse(result))
}

func (s *Server) handleTimeline(c *gin.Context) {
	var req TimelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid request body", err.Error())
		return
	}
	anchor, ok := s.parseAnchor(c, req.Anchor)
	if !ok {
		return
	}

	timeline, err := s.service.BuildTimeline(c.Request.Context(), req.SubjectID, domain.FactsFromRecords(req.Facts), anchor)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeline.View())
}

func (s *Server) handleValidateSubject(c *gin.Context) {
	result, err := s.service.ValidateSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toValidateResponse(result))
}

func (s *Server) handleListReports(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid limit", err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid offset", err.Error())
		return
	}

	subjectID := c.Param("id")
	records, err := s.service.ListReports(c.Request.Context(), subjectID, limit, offset)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ReportListResponse{
		SubjectID: subjectID,
		Count:     len(records),
		Limit:     limit,
		Offset:    offset,
		Reports:   records,
	})
}

func (s *Server) handleGetReport(c *gin.Context) {
	record, err := s.service.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) parseAnchor(c *gin.Context, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid anchor timestamp", err.Error())
		return nil, false
	}
	return &t, true
}

func (s *Server) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "Not found", err.Error())
	case errors.Is(err, service.ErrUnavailable):
		s.respondError(c, http.StatusServiceUnavailable, domain.CodeUnavailable, "Service unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(c, http.StatusGatewayTimeout, domain.CodeTimeout, "Request timeout", "")
	default:
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		s.respondError(c, http.StatusInternalServerError, domain.CodeInternalServer, "Internal server error", "")
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

func toValidateResponse(result *service.ValidateResult) ValidateResponse {
	return ValidateResponse{
		ReportID:         result.ReportID,
		Fingerprint:      result.Fingerprint,
		Cached:           result.Cached,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
		Report:           result.Report,
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
