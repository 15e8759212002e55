// Package events announces completed validation reports to downstream consumers such as
// the clinical alerting service.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
)

// ReportCompleted is the event type emitted after every validation run.
const ReportCompleted = "validation.report.completed"

// ReportEvent is the JSON payload of a ReportCompleted event.
type ReportEvent struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	SubjectID      string    `json:"subject_id"`
	ReportID       string    `json:"report_id"`
	OverallScore   float64   `json:"overall_score"`
	SafeForUse     bool      `json:"safe_for_use"`
	RequiresReview bool      `json:"requires_review"`
	CriticalIssues int       `json:"critical_issues"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewReportEvent builds the event for a stored report.
func NewReportEvent(reportID string, report *domain.ValidationReport) ReportEvent {
	return ReportEvent{
		EventID:        uuid.NewString(),
		Type:           ReportCompleted,
		SubjectID:      report.SubjectID,
		ReportID:       reportID,
		OverallScore:   report.OverallScore,
		SafeForUse:     report.SafeForUse,
		RequiresReview: report.RequiresReview,
		CriticalIssues: report.CriticalCount(),
		OccurredAt:     time.Now().UTC(),
	}
}

// Publisher delivers report events.
type Publisher interface {
	PublishReport(ctx context.Context, event ReportEvent) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes report events to a Kafka topic keyed by subject ID, so a
// subject's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *logrus.Logger
}

// NewKafkaPublisher creates a synchronous publisher for config.
func NewKafkaPublisher(config domain.EventsConfig, logger *logrus.Logger) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("no Kafka topic configured")
	}
	timeout := config.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
	}
	return newKafkaPublisher(writer, config.Topic, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, log: logger}
}

// PublishReport writes event to the topic.
func (p *KafkaPublisher) PublishReport(ctx context.Context, event ReportEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.SubjectID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.EventID,
			"event_type": event.Type,
			"subject_id": event.SubjectID,
		}).Error("Failed to publish event")
		return fmt.Errorf("publishing report event: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"topic":      p.topic,
	}).Debug("Event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. It is used when no brokers are configured.
type NoopPublisher struct{}

// PublishReport does nothing.
func (NoopPublisher) PublishReport(context.Context, ReportEvent) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
