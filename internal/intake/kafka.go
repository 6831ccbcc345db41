package intake

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/engine"
	"github.com/example/c2s-leadsync/internal/kafka/consumer"
	"github.com/example/c2s-leadsync/internal/models"
)

// Submitter accepts leads. *engine.Engine satisfies it.
type Submitter interface {
	Submit(ctx context.Context, sub engine.Submission) engine.Outcome
}

// Committer acknowledges a consumed record.
type Committer interface {
	Commit(ctx context.Context, record *consumer.Record) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, record *consumer.Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *consumer.Record) error {
	return f(ctx, record)
}

var errEmptyLead = errors.New("intake: record carries no lead name")

// KafkaHandler returns a consumer.Handler that submits every record to sub.
// Records are committed once handled, including undecodable ones which are
// logged and dropped. A record is left uncommitted only when ctx ends during
// submission, so it is redelivered after a restart.
func KafkaHandler(sub Submitter, committer Committer, logger zerolog.Logger) consumer.Handler {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "kafka_intake").Logger()

	return func(ctx context.Context, rec *consumer.Record) error {
		if sub == nil || rec == nil {
			return nil
		}
		log := logger.With().
			Str("topic", rec.Topic).
			Int32("partition", rec.Partition).
			Int64("offset", rec.Offset).
			Logger()

		submission, err := DecodeSubmission(rec.Value)
		if err != nil {
			log.Error().Err(err).Msg("kafka intake: record dropped")
			return commit(ctx, committer, rec)
		}

		out := sub.Submit(ctx, submission)
		if ctx.Err() != nil && !out.Accepted() {
			return ctx.Err()
		}
		log.Info().
			Str("idempotency_key", out.IdempotencyKey).
			Bool("success", out.Success).
			Bool("queued", out.Queued).
			Bool("duplicate", out.Duplicate).
			Msg("kafka intake: lead handled")
		return commit(ctx, committer, rec)
	}
}

// DecodeSubmission accepts either {"lead":{...},"property":{...}} or a bare
// lead object.
func DecodeSubmission(data []byte) (engine.Submission, error) {
	var sub engine.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return engine.Submission{}, err
	}
	if strings.TrimSpace(sub.Lead.Name) != "" {
		return sub, nil
	}

	var lead models.LeadInput
	if err := json.Unmarshal(data, &lead); err != nil {
		return engine.Submission{}, err
	}
	if strings.TrimSpace(lead.Name) == "" {
		return engine.Submission{}, errEmptyLead
	}
	return engine.Submission{Lead: lead}, nil
}

func commit(ctx context.Context, committer Committer, rec *consumer.Record) error {
	if committer == nil {
		return nil
	}
	return committer.Commit(ctx, rec)
}
