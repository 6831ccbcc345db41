package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/models"
)

// ErrProducerNotInitialised is returned by publishers built without a
// producer.
var ErrProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer is the subset of producer behaviour the publishers need.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

var jsonHeaders = map[string][]byte{
	"content-type": []byte("application/json"),
}

// EventPublisher writes lead lifecycle events to a topic.
type EventPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewEventPublisher returns nil when prod is nil.
func NewEventPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *EventPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &EventPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishEvent writes event keyed by its idempotency key, falling back to
// the queue id, so every event of one lead lands on the same partition.
func (p *EventPublisher) PublishEvent(_ context.Context, event models.LeadEvent) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal lead event: %w", err)
	}
	key := event.IdempotencyKey
	if key == "" {
		key = event.QueueID
	}

	if err := p.producer.PublishSync(p.topic, []byte(key), jsonHeaders, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish lead event: %w", err)
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("event_type", event.EventType).
		Msg("lead event published")
	return nil
}

// DLQPublisher writes exhausted queue entries to the dead letter topic.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher returns nil when prod is nil.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishDLQ writes record keyed by its queue id.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotInitialised
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dlq record: %w", err)
	}
	headers := map[string][]byte{
		"content-type": jsonHeaders["content-type"],
		"failure-type": []byte(record.FailureType),
	}

	if err := p.producer.PublishSync(p.topic, []byte(record.QueueID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dlq record: %w", err)
	}
	p.logger.Warn().
		Str("topic", p.topic).
		Str("queue_id", record.QueueID).
		Str("failure_type", record.FailureType).
		Msg("lead sent to dlq")
	return nil
}
