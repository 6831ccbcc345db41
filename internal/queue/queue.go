package queue

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/util"
)

const (
	defaultInterval       = time.Minute
	defaultRetryAfter     = 5 * time.Minute
	defaultAttemptTimeout = 2 * time.Minute
)

// Config contains the scheduler settings.
type Config struct {
	// Interval between scheduler wake-ups.
	Interval time.Duration
	// RetryAfter is the minimum time between two attempts of one entry.
	RetryAfter time.Duration
	// MaxAttempts is the attempt ceiling of every entry.
	MaxAttempts int
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration
}

// Submitter re-sends a lead to the CRM. crm.LeadProvider satisfies it.
type Submitter interface {
	CreateEnrichedLead(ctx context.Context, lead models.LeadInput, property *models.Property) crm.LeadResult
}

// EventPublisher receives lead lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.LeadEvent) error
}

// DLQPublisher receives entries that ran out of attempts.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Resolution tells how an entry left the queue.
type Resolution string

const (
	ResolutionSynced    Resolution = "synced"
	ResolutionExhausted Resolution = "exhausted"
	ResolutionRemoved   Resolution = "removed"
)

// ResolvedFunc is called once an entry leaves the queue, outside the queue
// lock. res is the zero value for removed entries.
type ResolvedFunc func(ctx context.Context, entry QueuedLead, res crm.LeadResult, how Resolution)

// Dependencies collects the collaborators of the queue. Events, DLQ and
// OnResolved are optional.
type Dependencies struct {
	Provider   Submitter
	Events     EventPublisher
	DLQ        DLQPublisher
	OnResolved ResolvedFunc
	Logger     zerolog.Logger
	Now        func() time.Time
	NewID      func(lead models.LeadInput, now time.Time) string
}

// QueuedLead is a failed submission waiting for another attempt.
type QueuedLead struct {
	ID          string           `json:"id"`
	Lead        models.LeadInput `json:"lead"`
	Property    *models.Property `json:"property,omitempty"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"maxAttempts"`
	LastAttempt *time.Time       `json:"lastAttempt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	LastError   string           `json:"lastError,omitempty"`

	seq uint64
}

func (q *QueuedLead) clone() QueuedLead {
	out := *q
	out.Lead = q.Lead.Clone()
	out.Property = q.Property.Clone()
	if q.LastAttempt != nil {
		at := *q.LastAttempt
		out.LastAttempt = &at
	}
	return out
}

// Report summarises one scheduler run.
type Report struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}

// Stats describes the queue at a point in time.
type Stats struct {
	Pending   int       `json:"pending"`
	Due       int       `json:"due"`
	Succeeded int       `json:"succeeded"`
	Exhausted int       `json:"exhausted"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
}

// Queue keeps failed submissions in memory and re-submits them on a fixed
// schedule until they succeed or run out of attempts.
type Queue struct {
	cfg        Config
	provider   Submitter
	events     EventPublisher
	dlq        DLQPublisher
	onResolved ResolvedFunc
	logger     zerolog.Logger
	now        func() time.Time
	newID      func(models.LeadInput, time.Time) string

	// running guards against overlapping runs.
	running *semaphore.Weighted

	mu        sync.Mutex
	entries   map[string]*QueuedLead
	seq       uint64
	succeeded int
	exhausted int
	lastRun   time.Time

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New constructs a queue. The scheduler does not run until Start is called.
func New(cfg Config, deps Dependencies) (*Queue, error) {
	if deps.Provider == nil {
		return nil, errors.New("queue: provider dependency is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("queue: max attempts must be >= 1")
	}
	if cfg.Interval < 0 || cfg.RetryAfter < 0 || cfg.AttemptTimeout < 0 {
		return nil, errors.New("queue: durations cannot be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryAfter == 0 {
		cfg.RetryAfter = defaultRetryAfter
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "retry_queue").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	idFunc := deps.NewID
	if idFunc == nil {
		idFunc = NewID
	}

	return &Queue{
		cfg:        cfg,
		provider:   deps.Provider,
		events:     deps.Events,
		dlq:        deps.DLQ,
		onResolved: deps.OnResolved,
		logger:     logger,
		now:        nowFunc,
		newID:      idFunc,
		running:    semaphore.NewWeighted(1),
		entries:    make(map[string]*QueuedLead),
	}, nil
}

// NewID builds an entry id from the lead name slug, the unix milliseconds
// and a random suffix.
func NewID(lead models.LeadInput, now time.Time) string {
	slug := util.Slugify(lead.Name)
	if slug == "" {
		slug = "lead"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slug + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// Enqueue stores a failed submission. The entry is due at the next run.
func (q *Queue) Enqueue(lead models.LeadInput, property *models.Property, lastErr string) QueuedLead {
	now := q.now()
	q.mu.Lock()
	q.seq++
	entry := &QueuedLead{
		ID:          q.newID(lead, now),
		Lead:        lead.Clone(),
		Property:    property.Clone(),
		MaxAttempts: q.cfg.MaxAttempts,
		CreatedAt:   now,
		LastError:   lastErr,
		seq:         q.seq,
	}
	q.entries[entry.ID] = entry
	out := entry.clone()
	pending := len(q.entries)
	q.mu.Unlock()

	q.logger.Info().
		Str("queue_id", out.ID).
		Int("pending", pending).
		Str("last_error", lastErr).
		Msg("retry queue: lead enqueued")
	q.publishEvent(context.Background(), models.LeadEvent{
		EventType:    models.LeadEventQueued,
		QueueID:      out.ID,
		LeadName:     lead.Name,
		PropertyCode: propertyCode(out),
		Error:        lastErr,
		Timestamp:    now,
	})
	return out
}

// ProcessDue runs one pass over the due entries, serially. It reports false
// without doing anything when another run is already in progress.
func (q *Queue) ProcessDue(ctx context.Context) (Report, bool) {
	if !q.running.TryAcquire(1) {
		q.logger.Debug().Msg("retry queue: run already in progress")
		return Report{}, false
	}
	defer q.running.Release(1)

	var report Report
	for _, id := range q.dueIDs(q.now()) {
		if ctx.Err() != nil {
			break
		}
		q.attempt(ctx, id, &report)
	}

	q.mu.Lock()
	q.lastRun = q.now()
	q.mu.Unlock()

	if report.Attempted > 0 {
		q.logger.Info().
			Int("attempted", report.Attempted).
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Int("exhausted", report.Exhausted).
			Msg("retry queue: run finished")
	}
	return report, true
}

func (q *Queue) dueIDs(now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	due := make([]*QueuedLead, 0, len(q.entries))
	for _, e := range q.entries {
		if q.isDue(e, now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	ids := make([]string, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	return ids
}

func (q *Queue) isDue(e *QueuedLead, now time.Time) bool {
	if e.Attempts >= e.MaxAttempts {
		return false
	}
	return e.LastAttempt == nil || now.Sub(*e.LastAttempt) >= q.cfg.RetryAfter
}

func (q *Queue) attempt(ctx context.Context, id string, report *Report) {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || !q.isDue(entry, q.now()) {
		q.mu.Unlock()
		return
	}
	snapshot := entry.clone()
	q.mu.Unlock()

	attemptNo := snapshot.Attempts + 1
	callCtx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	res := q.provider.CreateEnrichedLead(callCtx, snapshot.Lead, snapshot.Property)
	cancel()
	report.Attempted++

	now := q.now()
	if res.Success {
		q.mu.Lock()
		delete(q.entries, id)
		q.succeeded++
		q.mu.Unlock()
		report.Succeeded++

		q.logger.Info().
			Str("queue_id", id).
			Str("crm_lead_id", res.LeadID).
			Int("attempt", attemptNo).
			Msg("retry queue: lead synced")
		q.publishEvent(ctx, models.LeadEvent{
			EventType:    models.LeadEventSynced,
			QueueID:      id,
			CRMLeadID:    res.LeadID,
			LeadName:     snapshot.Lead.Name,
			PropertyCode: propertyCode(snapshot),
			Attempt:      attemptNo,
			Timestamp:    now,
		})
		q.resolved(ctx, snapshot, res, ResolutionSynced)
		return
	}

	errText := failureText(res)
	q.mu.Lock()
	entry, ok = q.entries[id]
	if !ok {
		// removed while the call was in flight
		q.mu.Unlock()
		return
	}
	entry.Attempts++
	at := now
	entry.LastAttempt = &at
	entry.LastError = errText
	exhausted := entry.Attempts >= entry.MaxAttempts
	var final QueuedLead
	if exhausted {
		final = entry.clone()
		delete(q.entries, id)
		q.exhausted++
	}
	q.mu.Unlock()

	if !exhausted {
		report.Failed++
		q.logger.Warn().
			Str("queue_id", id).
			Int("attempt", attemptNo).
			Int("max_attempts", snapshot.MaxAttempts).
			Str("error", errText).
			Msg("retry queue: attempt failed")
		q.publishEvent(ctx, models.LeadEvent{
			EventType:    models.LeadEventRetried,
			QueueID:      id,
			LeadName:     snapshot.Lead.Name,
			PropertyCode: propertyCode(snapshot),
			Attempt:      attemptNo,
			Error:        errText,
			Timestamp:    now,
		})
		return
	}

	report.Exhausted++
	q.logger.Error().
		Err(crm.ErrQueueExhausted).
		Str("queue_id", id).
		Str("lead_name", final.Lead.Name).
		Int("attempts", final.Attempts).
		Str("last_error", errText).
		Msg("retry queue: lead permanently failed")
	q.publishDLQ(ctx, models.DLQRecord{
		QueueID:       id,
		Lead:          final.Lead,
		Property:      final.Property,
		Attempts:      final.Attempts,
		FailureType:   failureType(res.Err),
		LastError:     errText,
		FirstFailedAt: final.CreatedAt,
		LastAttemptAt: now,
	})
	q.publishEvent(ctx, models.LeadEvent{
		EventType:    models.LeadEventExhausted,
		QueueID:      id,
		LeadName:     final.Lead.Name,
		PropertyCode: propertyCode(final),
		Attempt:      final.Attempts,
		Error:        errText,
		Timestamp:    now,
	})
	q.resolved(ctx, final, res, ResolutionExhausted)
}

func (q *Queue) resolved(ctx context.Context, entry QueuedLead, res crm.LeadResult, how Resolution) {
	if q.onResolved == nil {
		return
	}
	q.onResolved(ctx, entry, res, how)
}

// Start launches the scheduler goroutine. Calling Start on a running queue
// is a no-op.
func (q *Queue) Start() {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.stopCh != nil {
		return
	}
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	go q.loop(q.stopCh, q.doneCh)
	q.logger.Info().Dur("interval", q.cfg.Interval).Msg("retry queue: scheduler started")
}

// Stop halts the scheduler. A run already in progress is allowed to finish
// and Stop waits for it.
func (q *Queue) Stop() {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.stopCh == nil {
		return
	}
	close(q.stopCh)
	<-q.doneCh
	q.stopCh = nil
	q.doneCh = nil
	q.logger.Info().Msg("retry queue: scheduler stopped")
}

// Running reports whether the scheduler goroutine is active.
func (q *Queue) Running() bool {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	return q.stopCh != nil
}

func (q *Queue) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// runs are not tied to stop so an in-flight pass completes
			q.ProcessDue(context.Background())
		}
	}
}

// List returns copies of the pending entries in enqueue order.
func (q *Queue) List() []QueuedLead {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedLead, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Get returns a copy of the entry with id.
func (q *Queue) Get(id string) (QueuedLead, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return QueuedLead{}, false
	}
	return e.clone(), true
}

// Remove drops an entry. No events are published for it.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	removed := entry.clone()
	delete(q.entries, id)
	q.mu.Unlock()

	q.resolved(context.Background(), removed, crm.LeadResult{}, ResolutionRemoved)
	return true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Stats returns counters for monitoring.
func (q *Queue) Stats() Stats {
	running := q.Running()
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Stats{
		Pending:   len(q.entries),
		Succeeded: q.succeeded,
		Exhausted: q.exhausted,
		Running:   running,
		LastRun:   q.lastRun,
	}
	for _, e := range q.entries {
		if q.isDue(e, now) {
			st.Due++
		}
	}
	return st
}

// Reset drops every entry and counter. Intended for tests and teardown.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*QueuedLead)
	q.succeeded = 0
	q.exhausted = 0
	q.lastRun = time.Time{}
}

func (q *Queue) publishEvent(ctx context.Context, event models.LeadEvent) {
	if q.events == nil {
		return
	}
	if err := q.events.PublishEvent(ctx, event); err != nil {
		q.logger.Error().
			Err(err).
			Str("queue_id", event.QueueID).
			Str("event_type", event.EventType).
			Msg("retry queue: failed to publish lead event")
	}
}

func (q *Queue) publishDLQ(ctx context.Context, record models.DLQRecord) {
	if q.dlq == nil {
		return
	}
	if err := q.dlq.PublishDLQ(ctx, record); err != nil {
		q.logger.Error().
			Err(err).
			Str("queue_id", record.QueueID).
			Msg("retry queue: failed to publish dlq record")
	}
}

func failureText(res crm.LeadResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if len(res.Errors) > 0 {
		return strings.Join(res.Errors, "; ")
	}
	return res.Message
}

func failureType(err error) string {
	switch crm.Classify(err) {
	case crm.ErrValidation:
		return models.FailureTypeValidation
	case crm.ErrTransient:
		return models.FailureTypeTransient
	case crm.ErrPermanent, crm.ErrConfiguration:
		return models.FailureTypePermanent
	default:
		return models.FailureTypeUnknown
	}
}

func propertyCode(e QueuedLead) string {
	if e.Property != nil && e.Property.Code != "" {
		return e.Property.Code
	}
	return e.Lead.PropertyCode
}
