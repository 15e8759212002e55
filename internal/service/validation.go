// Package service orchestrates validation runs: it fingerprints the request, consults
// the report cache, runs the validation pipeline and hands the result to the report
// store, the event publisher and the metrics recorder.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/cache"
	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/events"
	"github.com/clinical-fact-validator/internal/store"
	"github.com/clinical-fact-validator/internal/temporal"
	"github.com/clinical-fact-validator/internal/validation"
)

// ErrUnavailable is returned when an operation needs an adapter that is not configured.
var ErrUnavailable = errors.New("not configured")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// FactSource loads a subject's stored facts and source documents.
type FactSource interface {
	ListFactsBySubject(ctx context.Context, subjectID string) ([]domain.ClinicalFact, error)
	SourceText(ctx context.Context, subjectID string) (string, error)
}

// Metrics receives service level observations.
type Metrics interface {
	validation.Observer
	ObserveReport(report *domain.ValidationReport)
	ObserveCacheLookup(result string)
}

// ValidateRequest is one validation run's input.
type ValidateRequest struct {
	SubjectID  string
	Facts      []domain.ClinicalFact
	SourceText string
	Anchor     *time.Time
}

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	ReportID       string                   `json:"report_id"`
	Fingerprint    string                   `json:"fingerprint"`
	Cached         bool                     `json:"cached"`
	Report         *domain.ValidationReport `json:"report"`
	ProcessingTime time.Duration            `json:"processing_time"`
}

// ValidationService implements fact validation and timeline construction.
type ValidationService struct {
	logger    *logrus.Logger
	cfg       domain.ValidationConfig
	pipeline  *validation.Pipeline
	builder   *temporal.Builder
	facts     FactSource
	store     store.Store
	cache     cache.ReportCache
	publisher events.Publisher
	metrics   Metrics
}

// Option configures a ValidationService.
type Option func(*ValidationService)

// WithFactRepository enables ValidateSubject.
func WithFactRepository(facts FactSource) Option {
	return func(s *ValidationService) { s.facts = facts }
}

// WithStore persists every computed report.
func WithStore(st store.Store) Option {
	return func(s *ValidationService) { s.store = st }
}

// WithCache serves repeated requests from c.
func WithCache(c cache.ReportCache) Option {
	return func(s *ValidationService) { s.cache = c }
}

// WithPublisher announces every computed report.
func WithPublisher(p events.Publisher) Option {
	return func(s *ValidationService) { s.publisher = p }
}

// WithMetrics records run, stage and cache metrics.
func WithMetrics(m Metrics) Option {
	return func(s *ValidationService) { s.metrics = m }
}

// NewValidationService creates a new validation service
func NewValidationService(cfg domain.ValidationConfig, logger *logrus.Logger, opts ...Option) *ValidationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &ValidationService{
		logger:    logger,
		cfg:       cfg,
		publisher: events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}

	var pipelineOpts []validation.Option
	if s.metrics != nil {
		pipelineOpts = append(pipelineOpts, validation.WithObserver(s.metrics))
	}
	s.pipeline = validation.NewPipeline(cfg, logger, pipelineOpts...)
	s.builder = temporal.NewBuilder(temporal.NewDetector(cfg.MaxDayOffset), logger)
	return s
}

// Validate scores req's fact set. Only an empty subject ID is rejected; cache, store
// and publisher failures are logged and the report is still returned.
func (s *ValidationService) Validate(ctx context.Context, req *ValidateRequest) (*ValidateResult, error) {
	startTime := time.Now()
	if req == nil || req.SubjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", domain.ErrInvalidInput)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"subject_id": req.SubjectID,
		"facts":      len(req.Facts),
	})
	fingerprint, err := cache.Fingerprint(s.cfg, req.SubjectID, req.Facts, req.SourceText, req.Anchor)
	if err != nil {
		logger.WithError(err).Warn("Cannot fingerprint request, bypassing report cache")
	} else {
		logger = logger.WithField("fingerprint", fingerprint[:12])
	}

	if entry := s.lookup(ctx, fingerprint, logger); entry != nil {
		logger.WithField("report_id", entry.ReportID).Info("Served validation report from cache")
		return &ValidateResult{
			ReportID:       entry.ReportID,
			Fingerprint:    fingerprint,
			Cached:         true,
			Report:         entry.Report,
			ProcessingTime: time.Since(startTime),
		}, nil
	}

	report := s.pipeline.Run(validation.Input{
		SubjectID:  req.SubjectID,
		Facts:      req.Facts,
		SourceText: req.SourceText,
		Anchor:     req.Anchor,
	})
	reportID := uuid.NewString()

	if s.store != nil {
		record := &store.Record{
			ID:          reportID,
			SubjectID:   req.SubjectID,
			Fingerprint: fingerprint,
			Report:      *report,
		}
		if err := s.store.Save(ctx, record); err != nil {
			logger.WithError(err).Warn("Failed to store validation report")
		}
	}

	if s.cache != nil && fingerprint != "" {
		if err := s.cache.Set(ctx, fingerprint, &cache.Entry{ReportID: reportID, Report: report}); err != nil {
			logger.WithError(err).Warn("Failed to cache validation report")
		}
	}

	if err := s.publisher.PublishReport(ctx, events.NewReportEvent(reportID, report)); err != nil {
		logger.WithError(err).Warn("Failed to publish report event")
	}

	if s.metrics != nil {
		s.metrics.ObserveReport(report)
	}

	result := &ValidateResult{
		ReportID:       reportID,
		Fingerprint:    fingerprint,
		Report:         report,
		ProcessingTime: time.Since(startTime),
	}

	logger.WithFields(logrus.Fields{
		"report_id":       reportID,
		"overall_score":   report.OverallScore,
		"safe_for_use":    report.SafeForUse,
		"critical_issues": report.CriticalCount(),
		"processing_time": result.ProcessingTime,
	}).Info("Validation completed")

	return result, nil
}

func (s *ValidationService) lookup(ctx context.Context, fingerprint string, logger *logrus.Entry) *cache.Entry {
	if s.cache == nil || fingerprint == "" {
		return nil
	}
	entry, found, err := s.cache.Get(ctx, fingerprint)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Report cache lookup failed")
		s.observeCache("error")
		return nil
	case !found:
		s.observeCache("miss")
		return nil
	default:
		s.observeCache("hit")
		return entry
	}
}

func (s *ValidationService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(result)
	}
}

// ValidateSubject validates the stored facts and documents of a subject. A subject with
// neither facts nor documents is reported as not found.
func (s *ValidationService) ValidateSubject(ctx context.Context, subjectID string) (*ValidateResult, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", domain.ErrInvalidInput)
	}
	if s.facts == nil {
		return nil, fmt.Errorf("fact repository: %w", ErrUnavailable)
	}

	facts, err := s.facts.ListFactsBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	sourceText, err := s.facts.SourceText(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("loading source documents: %w", err)
	}
	if len(facts) == 0 && sourceText == "" {
		return nil, fmt.Errorf("subject %s: %w", subjectID, domain.ErrNotFound)
	}

	return s.Validate(ctx, &ValidateRequest{
		SubjectID:  subjectID,
		Facts:      facts,
		SourceText: sourceText,
	})
}

// BuildTimeline builds the resolved timeline of facts. Facts that fail input screening
// are left out, as they are for temporal validation.
func (s *ValidationService) BuildTimeline(ctx context.Context, subjectID string, facts []domain.ClinicalFact, anchor *time.Time) (*temporal.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eligible, rejected := validation.Screen(facts, s.cfg.RejectionRecommendation)
	if len(rejected) > 0 {
		s.logger.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"rejected":   len(rejected),
		}).Warn("Facts excluded from timeline")
	}
	return s.builder.Build(subjectID, eligible, anchor), nil
}

// GetReport returns a stored report.
func (s *ValidationService) GetReport(ctx context.Context, id string) (*store.Record, error) {
	if s.store == nil {
		return nil, fmt.Errorf("report store: %w", ErrUnavailable)
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting report %s: %w", id, err)
	}
	return record, nil
}

// ListReports returns a page of a subject's stored reports, newest first.
func (s *ValidationService) ListReports(ctx context.Context, subjectID string, limit, offset int) ([]*store.Record, error) {
	if s.store == nil {
		return nil, fmt.Errorf("report store: %w", ErrUnavailable)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.ListBySubject(ctx, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	if records == nil {
		records = []*store.Record{}
	}
	return records, nil
}

// Stages returns the pipeline's stage names in run order.
func (s *ValidationService) Stages() []string {
	return s.pipeline.Stages()
}

// Config returns the validation configuration in effect.
func (s *ValidationService) Config() domain.ValidationConfig {
	return s.cfg
}
