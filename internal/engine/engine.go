package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/crm/c2s"
	"github.com/example/c2s-leadsync/internal/crm/factory"
	"github.com/example/c2s-leadsync/internal/dedupe"
	"github.com/example/c2s-leadsync/internal/kafka/producer"
	kafkapublisher "github.com/example/c2s-leadsync/internal/kafka/publisher"
	"github.com/example/c2s-leadsync/internal/mapper"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/queue"
	"github.com/example/c2s-leadsync/internal/webhook"
)

const (
	msgDuplicate        = "Lead já recebido recentemente"
	msgDuplicatePending = "Lead já está sendo processado"
	msgQueued           = "CRM indisponível; o lead será reenviado automaticamente"
)

// Submission is one lead handed to the engine by a collaborator.
type Submission struct {
	Lead     models.LeadInput `json:"lead"`
	Property *models.Property `json:"property,omitempty"`
}

// Outcome extends the provider result with what the engine did with it.
type Outcome struct {
	crm.LeadResult
	IdempotencyKey string `json:"idempotencyKey"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Queued         bool   `json:"queued,omitempty"`
	QueueID        string `json:"queueId,omitempty"`
}

// Accepted reports whether the lead reached the CRM or is waiting for a
// retry.
func (o Outcome) Accepted() bool {
	return o.Success || o.Queued || o.Duplicate
}

// Health aggregates the status of the engine collaborators.
type Health struct {
	CRM    crm.HealthStatus `json:"crm"`
	Queue  queue.Stats      `json:"queue"`
	Events bool             `json:"events"`
}

// Option customises engine construction. Mostly useful in tests.
type Option func(*options)

type options struct {
	provider crm.LeadProvider
	store    dedupe.Store
	events   queue.EventPublisher
	dlq      queue.DLQPublisher
	now      func() time.Time
}

// WithProvider replaces the provider selected by the configuration.
func WithProvider(p crm.LeadProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithStore replaces the idempotency store selected by the configuration.
func WithStore(s dedupe.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPublishers replaces the Kafka publishers.
func WithPublishers(events queue.EventPublisher, dlq queue.DLQPublisher) Option {
	return func(o *options) {
		o.events = events
		o.dlq = dlq
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Engine owns the lead pipeline: idempotency check, CRM submission, retry
// queue and lifecycle events. It replaces process-wide singletons with one
// explicitly constructed value.
type Engine struct {
	cfg      *config.Config
	provider crm.LeadProvider
	direct   *c2s.Provider
	mapper   *mapper.Mapper
	queue    *queue.Queue
	store    dedupe.Store
	ttl      time.Duration
	events   queue.EventPublisher
	webhooks *webhook.Normalizer
	producer *producer.Producer
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds Config → client → mapper/tags → provider → queue and the
// optional Redis and Kafka collaborators.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	e := &Engine{
		cfg:      cfg,
		ttl:      time.Duration(cfg.Dedupe.TTLSeconds) * time.Second,
		webhooks: webhook.New(logger),
		logger:   logger.With().Str("component", "lead_engine").Logger(),
		now:      settings.now,
		mapper: mapper.New(logger,
			mapper.WithCountryCode(cfg.C2S.DefaultCountryCode),
			mapper.WithCompanyID(cfg.C2S.CompanyID),
			mapper.WithDefaultSellerID(cfg.C2S.DefaultSellerID),
		),
	}

	if settings.provider != nil {
		e.provider = settings.provider
		e.direct, _ = settings.provider.(*c2s.Provider)
	} else {
		provider, direct, err := factory.Provider(cfg, logger)
		if err != nil {
			return nil, err
		}
		e.provider, e.direct = provider, direct
	}

	var dlq queue.DLQPublisher
	switch {
	case settings.events != nil || settings.dlq != nil:
		e.events, dlq = settings.events, settings.dlq
	case cfg.Events.Enabled():
		prod, err := producer.New(cfg.Events.Brokers, logger, producer.WithClientID(cfg.Events.ClientLabel))
		if err != nil {
			return nil, fmt.Errorf("engine: kafka producer init: %w", err)
		}
		e.producer = prod
		e.events = kafkapublisher.NewEventPublisher(prod, cfg.Events.LeadsTopic, logger.With().Str("component", "event_publisher").Logger())
		dlq = kafkapublisher.NewDLQPublisher(prod, cfg.Events.DLQTopic, logger.With().Str("component", "dlq_publisher").Logger())
	}

	switch {
	case settings.store != nil:
		e.store = settings.store
	case e.ttl <= 0:
		// idempotency disabled
	case strings.TrimSpace(cfg.Dedupe.RedisURL) != "":
		store, err := dedupe.NewRedisStore(cfg.Dedupe.RedisURL)
		if err != nil {
			e.closeProducer()
			return nil, fmt.Errorf("engine: dedupe store init: %w", err)
		}
		e.store = store
	default:
		e.store = dedupe.NewMemoryStore(e.now)
	}

	q, err := queue.New(queue.Config{
		Interval:       time.Duration(cfg.Queue.IntervalSeconds) * time.Second,
		RetryAfter:     time.Duration(cfg.Queue.RetryAfterSeconds) * time.Second,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		AttemptTimeout: c2s.CallBudget(cfg.C2S),
	}, queue.Dependencies{
		Provider:   e.provider,
		Events:     e.events,
		DLQ:        dlq,
		OnResolved: e.queueResolved,
		Logger:     logger,
		Now:        e.now,
	})
	if err != nil {
		e.closeProducer()
		return nil, fmt.Errorf("engine: retry queue init: %w", err)
	}
	e.queue = q

	e.logger.Info().
		Bool("dedupe", e.store != nil).
		Bool("events", e.events != nil).
		Int("queue_max_attempts", cfg.Queue.MaxAttempts).
		Msg("lead engine ready")
	return e, nil
}

// Submit sends a lead to the CRM. Repeated submissions within the
// idempotency window return the first outcome; transient failures are
// handed to the retry queue.
func (e *Engine) Submit(ctx context.Context, sub Submission) Outcome {
	key := e.mapper.IdempotencyKey(sub.Lead)
	out := Outcome{IdempotencyKey: key}
	log := e.logger.With().Str("idempotency_key", key).Logger()

	if e.store != nil {
		if dup, ok := e.duplicate(ctx, key, sub); ok {
			return dup
		}
	}

	res := e.provider.CreateEnrichedLead(ctx, sub.Lead, sub.Property)
	out.LeadResult = res
	now := e.now()

	switch {
	case res.Success:
		e.remember(ctx, key, dedupe.Entry{State: dedupe.StateSynced, LeadID: res.LeadID, Message: res.Message, UpdatedAt: now})
		log.Info().Str("crm_lead_id", res.LeadID).Msg("lead synced")
		e.publish(ctx, models.LeadEvent{
			EventType:      models.LeadEventSynced,
			IdempotencyKey: key,
			CRMLeadID:      res.LeadID,
			LeadName:       sub.Lead.Name,
			PropertyCode:   propertyCode(sub),
			Attempt:        1,
			Timestamp:      now,
		})
	case res.Retryable():
		entry := e.queue.Enqueue(sub.Lead, sub.Property, errorText(res))
		out.Queued = true
		out.QueueID = entry.ID
		out.Message = msgQueued
		e.remember(ctx, key, dedupe.Entry{State: dedupe.StateQueued, QueueID: entry.ID, Message: msgQueued, UpdatedAt: now})
		log.Warn().Str("queue_id", entry.ID).Strs("errors", res.Errors).Msg("lead queued for retry")
	default:
		e.forget(ctx, key)
		log.Warn().Str("message", res.Message).Strs("errors", res.Errors).Msg("lead rejected")
		e.publish(ctx, models.LeadEvent{
			EventType:      models.LeadEventFailed,
			IdempotencyKey: key,
			LeadName:       sub.Lead.Name,
			PropertyCode:   propertyCode(sub),
			Attempt:        1,
			Error:          errorText(res),
			Timestamp:      now,
		})
	}
	return out
}

// duplicate answers from the idempotency store. Store failures are logged
// and the submission proceeds.
func (e *Engine) duplicate(ctx context.Context, key string, sub Submission) (Outcome, bool) {
	entry, err := e.store.Get(ctx, key)
	if err != nil && !errors.Is(err, dedupe.ErrNotFound) {
		e.logger.Error().Err(err).Str("idempotency_key", key).Msg("dedupe lookup failed")
		return Outcome{}, false
	}
	if err == nil {
		return e.duplicateOutcome(ctx, key, sub, entry), true
	}

	claimed, err := e.store.Claim(ctx, key, e.ttl)
	if err != nil {
		e.logger.Error().Err(err).Str("idempotency_key", key).Msg("dedupe claim failed")
		return Outcome{}, false
	}
	if !claimed {
		return e.duplicateOutcome(ctx, key, sub, dedupe.Entry{State: dedupe.StatePending}), true
	}
	return Outcome{}, false
}

func (e *Engine) duplicateOutcome(ctx context.Context, key string, sub Submission, entry dedupe.Entry) Outcome {
	out := Outcome{
		IdempotencyKey: key,
		Duplicate:      true,
		QueueID:        entry.QueueID,
		LeadResult: crm.LeadResult{
			Success: entry.State == dedupe.StateSynced,
			LeadID:  entry.LeadID,
			Message: msgDuplicate,
		},
	}
	switch entry.State {
	case dedupe.StatePending:
		out.Message = msgDuplicatePending
	case dedupe.StateQueued:
		out.Queued = true
	}
	e.logger.Info().Str("idempotency_key", key).Str("state", string(entry.State)).Msg("duplicate lead ignored")
	e.publish(ctx, models.LeadEvent{
		EventType:      models.LeadEventDuplicate,
		IdempotencyKey: key,
		QueueID:        entry.QueueID,
		CRMLeadID:      entry.LeadID,
		LeadName:       sub.Lead.Name,
		PropertyCode:   propertyCode(sub),
		Timestamp:      e.now(),
	})
	return out
}

func (e *Engine) remember(ctx context.Context, key string, entry dedupe.Entry) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, key, entry, e.ttl); err != nil {
		e.logger.Error().Err(err).Str("idempotency_key", key).Msg("dedupe save failed")
	}
}

func (e *Engine) forget(ctx context.Context, key string) {
	if e.store == nil {
		return
	}
	if err := e.store.Release(ctx, key); err != nil {
		e.logger.Error().Err(err).Str("idempotency_key", key).Msg("dedupe release failed")
	}
}

// queueResolved keeps the idempotency record in line with the retry queue.
// Records that no longer point at the resolved entry belong to a newer
// submission and are left alone.
func (e *Engine) queueResolved(ctx context.Context, entry queue.QueuedLead, res crm.LeadResult, how queue.Resolution) {
	if e.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	key := e.mapper.IdempotencyKey(entry.Lead)
	current, err := e.store.Get(ctx, key)
	switch {
	case errors.Is(err, dedupe.ErrNotFound):
		if how != queue.ResolutionSynced {
			return
		}
	case err != nil:
		e.logger.Error().Err(err).Str("idempotency_key", key).Msg("dedupe lookup failed")
		return
	case current.QueueID != entry.ID:
		return
	}

	if how == queue.ResolutionSynced {
		e.remember(ctx, key, dedupe.Entry{
			State:     dedupe.StateSynced,
			LeadID:    res.LeadID,
			Message:   res.Message,
			UpdatedAt: e.now(),
		})
		return
	}
	e.forget(ctx, key)
}

func (e *Engine) publish(ctx context.Context, event models.LeadEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishEvent(ctx, event); err != nil {
		e.logger.Error().Err(err).Str("event_type", event.EventType).Msg("failed to publish lead event")
	}
}

// Provider exposes the shared provider contract.
func (e *Engine) Provider() crm.LeadProvider { return e.provider }

// C2S returns the C2S provider, or nil when another backend is configured.
func (e *Engine) C2S() *c2s.Provider { return e.direct }

// Queue exposes the retry queue.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Webhooks exposes the webhook normalizer.
func (e *Engine) Webhooks() *webhook.Normalizer { return e.webhooks }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Health checks the CRM and reports queue counters.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{
		CRM:    e.provider.HealthCheck(ctx),
		Queue:  e.queue.Stats(),
		Events: e.events != nil,
	}
	if e.producer != nil {
		h.Events = e.producer.IsReady()
	}
	return h
}

// Start launches the retry scheduler.
func (e *Engine) Start() {
	e.queue.Start()
}

// Reset clears the retry queue and the in-process idempotency store.
func (e *Engine) Reset() {
	e.queue.Reset()
	if m, ok := e.store.(*dedupe.MemoryStore); ok {
		m.Reset()
	}
}

// Close stops the scheduler, letting an in-flight run finish, then releases
// the Redis and Kafka connections.
func (e *Engine) Close() error {
	e.queue.Stop()

	var errs []error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close dedupe store: %w", err))
		}
	}
	if e.producer != nil {
		if err := e.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close kafka producer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) closeProducer() {
	if e.producer == nil {
		return
	}
	if err := e.producer.Close(); err != nil {
		e.logger.Error().Err(err).Msg("failed to close kafka producer")
	}
}

func errorText(res crm.LeadResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return strings.Join(res.Errors, "; ")
}

func propertyCode(sub Submission) string {
	if sub.Property != nil && sub.Property.Code != "" {
		return sub.Property.Code
	}
	return sub.Lead.PropertyCode
}
