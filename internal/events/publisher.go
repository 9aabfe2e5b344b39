// Package events publishes bulk-run lifecycle events to Kafka. Consumers use
// them for billing reconciliation and operator dashboards; the service never
// reads them back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// messageWriter is the slice of *kafka.Writer the publisher depends on.
// Tests substitute fakes.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic run lifecycle events are published to.
	Topic string
	// BatchSize is the maximum number of messages batched before a send.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
	// ServiceName identifies the event source.
	ServiceName string
}

// RunEvent is the wire format of one lifecycle event.
type RunEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	Source         string    `json:"source"`
	OccurredAt     time.Time `json:"occurred_at"`
	RunID          string    `json:"run_id"`
	OrgID          string    `json:"org_id"`
	Kind           string    `json:"kind"`
	Mode           string    `json:"mode,omitempty"`
	TagID          string    `json:"tag_id,omitempty"`
	Status         string    `json:"status"`
	TotalItems     int       `json:"total_items"`
	CompletedItems int       `json:"completed_items"`
	FailedItems    int       `json:"failed_items"`
	CancelledItems int       `json:"cancelled_items"`
	Error          string    `json:"error,omitempty"`
}

// Compile-time interface verification.
var _ bulk.EventPublisher = (*Publisher)(nil)

// Publisher writes run lifecycle events to a Kafka topic. Events are keyed by
// run ID so one run's events land on one partition in order.
type Publisher struct {
	writer messageWriter
	source string
	logger zerolog.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "docrouter-bulk-service"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{
		writer: writer,
		source: cfg.ServiceName,
		logger: logger.With().Str("component", "event-publisher").Logger(),
	}
}

// PublishRunEvent publishes one lifecycle event for a run.
func (p *Publisher) PublishRunEvent(ctx context.Context, eventType string, run *domain.BulkRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if eventType == "" {
		return domain.NewValidationError("event_type", "event type is required")
	}

	event := RunEvent{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		Source:         p.source,
		OccurredAt:     time.Now().UTC(),
		RunID:          run.ID,
		OrgID:          run.OrgID,
		Kind:           string(run.Kind),
		Mode:           string(run.Mode),
		TagID:          run.TagID,
		Status:         string(run.Status),
		TotalItems:     run.TotalItems,
		CompletedItems: run.CompletedItems,
		FailedItems:    run.FailedItems,
		CancelledItems: run.CancelledItems,
		Error:          run.Error,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(run.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(p.source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write run event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("event_type", eventType).
		Str("run_id", run.ID).
		Msg("published run event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
