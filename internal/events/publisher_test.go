package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// fakeWriter captures written messages.
type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, source: "docrouter-bulk-service", logger: zerolog.Nop()}
}

func testRun() *domain.BulkRun {
	now := time.Now().UTC()
	finished := now.Add(time.Minute)
	return &domain.BulkRun{
		ID:             "run-1",
		OrgID:          "org-123",
		Kind:           domain.RunKindLLM,
		Mode:           domain.ModeMissing,
		TagID:          "tag-invoices",
		Status:         domain.RunStatusCompleted,
		TotalItems:     50,
		CompletedItems: 48,
		FailedItems:    2,
		CreatedAt:      now,
		FinishedAt:     &finished,
	}
}

func TestPublishRunEvent(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newTestPublisher(writer)

	err := publisher.PublishRunEvent(context.Background(), bulk.EventRunCompleted, testRun())
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "run-1", string(msg.Key), "messages are keyed by run ID")

	var event RunEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, bulk.EventRunCompleted, event.EventType)
	assert.Equal(t, "docrouter-bulk-service", event.Source)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "llm", event.Kind)
	assert.Equal(t, "missing", event.Mode)
	assert.Equal(t, 50, event.TotalItems)
	assert.Equal(t, 2, event.FailedItems)
	assert.False(t, event.OccurredAt.IsZero())

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, bulk.EventRunCompleted, string(msg.Headers[0].Value))
}

func TestPublishRunEventValidation(t *testing.T) {
	publisher := newTestPublisher(&fakeWriter{})

	err := publisher.PublishRunEvent(context.Background(), bulk.EventRunStarted, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = publisher.PublishRunEvent(context.Background(), "", testRun())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPublishRunEventWriteFailure(t *testing.T) {
	writeErr := errors.New("broker unavailable")
	publisher := newTestPublisher(&fakeWriter{err: writeErr})

	err := publisher.PublishRunEvent(context.Background(), bulk.EventRunStarted, testRun())
	assert.ErrorIs(t, err, writeErr)
}

func TestPublisherClose(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newTestPublisher(writer)
	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}
