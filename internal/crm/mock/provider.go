package mock

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/mapper"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/tags"
)

// Scenario enumerates the behaviours supported by the mock CRM.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"
)

// ScenarioKey is the lead metadata key that overrides the default scenario.
const ScenarioKey = "scenario"

// Option customises the mock provider.
type Option func(*Provider)

// WithScenario sets the default scenario used when a lead does not specify one.
func WithScenario(s Scenario) Option {
	return func(p *Provider) {
		p.defaultScenario = s
	}
}

// WithLatency configures the artificial latency injected before every call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) {
		if d < 0 {
			d = 0
		}
		p.latency = d
	}
}

// WithIDGenerator overrides how lead ids are produced (useful for tests).
func WithIDGenerator(next func() string) Option {
	return func(p *Provider) {
		if next != nil {
			p.nextID = next
		}
	}
}

// Created is a lead accepted by the mock.
type Created struct {
	LeadID  string
	Payload crm.LeadPayload
	Details string
}

// Provider is an in-memory crm.LeadProvider for local runs and tests. It
// maps and tags leads exactly like the real provider but never touches the
// network.
type Provider struct {
	logger          zerolog.Logger
	defaultScenario Scenario
	latency         time.Duration
	nextID          func() string
	mapper          *mapper.Mapper
	tags            *tags.Engine

	mu      sync.Mutex
	created []Created
	tagged  map[string][]string
	visits  []crm.VisitInput
	deals   []crm.DealInput
}

var _ crm.LeadProvider = (*Provider)(nil)

// NewProvider constructs a mock CRM provider.
func NewProvider(logger zerolog.Logger, opts ...Option) *Provider {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	p := &Provider{
		logger:          logger.With().Str("component", "mock_crm").Logger(),
		defaultScenario: ScenarioSuccess,
		nextID:          func() string { return "mock-" + uuid.NewString() },
		tags:            tags.New(),
		tagged:          make(map[string][]string),
	}
	p.mapper = mapper.New(p.logger)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreateLead simulates lead creation without property enrichment.
func (p *Provider) CreateLead(ctx context.Context, lead models.LeadInput) crm.LeadResult {
	return p.CreateEnrichedLead(ctx, lead, nil)
}

// CreateEnrichedLead simulates lead creation according to the scenario
// selected by the lead metadata or the provider default.
func (p *Provider) CreateEnrichedLead(ctx context.Context, lead models.LeadInput, property *models.Property) crm.LeadResult {
	if strings.TrimSpace(lead.Name) == "" {
		return failure("Dados do lead inválidos", crm.WrapValidation(errors.New("lead name is required")))
	}
	if err := p.simulate(ctx, p.scenarioFor(lead)); err != nil {
		return failure("CRM simulado indisponível", err)
	}

	payload := p.mapper.BuildLeadPayload(lead, property)
	payload.Tags = p.tags.Generate(lead, property)
	id := p.nextID()

	p.mu.Lock()
	p.created = append(p.created, Created{
		LeadID:  id,
		Payload: payload,
		Details: mapper.BuildLeadDetailsMessage(lead, property),
	})
	p.mu.Unlock()

	p.logger.Info().Str("lead_id", id).Int("tags", len(payload.Tags)).Msg("mock crm: lead accepted")
	return crm.LeadResult{Success: true, LeadID: id, Message: "Lead registrado no CRM simulado"}
}

// UpdateLeadTags records tags for leadID.
func (p *Provider) UpdateLeadTags(ctx context.Context, leadID string, values []string) crm.LeadResult {
	if err := p.simulate(ctx, p.defaultScenario); err != nil {
		return failure("CRM simulado indisponível", err)
	}
	merged := tags.Merge(values)
	if strings.TrimSpace(leadID) == "" || len(merged) == 0 {
		return failure("Dados do lead inválidos", crm.WrapValidation(errors.New("lead id and tags are required")))
	}
	p.mu.Lock()
	p.tagged[leadID] = tags.Merge(p.tagged[leadID], merged)
	p.mu.Unlock()
	return crm.LeadResult{Success: true, LeadID: leadID, Message: "Tags registradas"}
}

// CreateVisitActivity records a visit.
func (p *Provider) CreateVisitActivity(ctx context.Context, visit crm.VisitInput) crm.LeadResult {
	if err := p.simulate(ctx, p.defaultScenario); err != nil {
		return failure("CRM simulado indisponível", err)
	}
	if strings.TrimSpace(visit.LeadID) == "" || visit.ScheduledAt.IsZero() {
		return failure("Dados do lead inválidos", crm.WrapValidation(errors.New("lead id and visit date are required")))
	}
	p.mu.Lock()
	p.visits = append(p.visits, visit)
	p.mu.Unlock()
	return crm.LeadResult{Success: true, LeadID: visit.LeadID, Message: "Visita registrada"}
}

// MarkDoneDeal records a closed deal.
func (p *Provider) MarkDoneDeal(ctx context.Context, deal crm.DealInput) crm.LeadResult {
	if err := p.simulate(ctx, p.defaultScenario); err != nil {
		return failure("CRM simulado indisponível", err)
	}
	if strings.TrimSpace(deal.LeadID) == "" {
		return failure("Dados do lead inválidos", crm.WrapValidation(errors.New("lead id is required")))
	}
	p.mu.Lock()
	p.deals = append(p.deals, deal)
	p.mu.Unlock()
	return crm.LeadResult{Success: true, LeadID: deal.LeadID, Message: "Negócio concluído"}
}

// HealthCheck reports healthy unless the default scenario simulates failure.
func (p *Provider) HealthCheck(ctx context.Context) crm.HealthStatus {
	start := time.Now()
	if err := p.simulate(ctx, p.defaultScenario); err != nil {
		return crm.HealthStatus{Healthy: false, Latency: time.Since(start), Message: err.Error()}
	}
	return crm.HealthStatus{Healthy: true, Latency: time.Since(start), Message: "mock"}
}

// Created returns a copy of the accepted leads in order.
func (p *Provider) Created() []Created {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Created, len(p.created))
	copy(out, p.created)
	return out
}

// Tags returns the tags recorded for leadID.
func (p *Provider) Tags(leadID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tagged[leadID]...)
}

func (p *Provider) scenarioFor(lead models.LeadInput) Scenario {
	if val, ok := lead.Metadata[ScenarioKey]; ok && strings.TrimSpace(val) != "" {
		return Scenario(strings.ToLower(strings.TrimSpace(val)))
	}
	return p.defaultScenario
}

func (p *Provider) simulate(ctx context.Context, scenario Scenario) error {
	// honour context cancellation before work begins
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	switch scenario {
	case ScenarioSuccess:
		return nil
	case ScenarioTransient:
		return &crm.APIError{StatusCode: 503, Message: "mock: service unavailable"}
	case ScenarioPermanent:
		return &crm.APIError{StatusCode: 422, Message: "mock: lead rejected", Errors: []crm.FieldError{{Field: "phone", Message: "inválido"}}}
	case ScenarioTimeout:
		return fmt.Errorf("%w: mock", crm.ErrRequestTimeout)
	default:
		return crm.WrapPermanent(fmt.Errorf("mock: unknown scenario %q", scenario))
	}
}

func failure(message string, err error) crm.LeadResult {
	res := crm.LeadResult{Success: false, Message: message, Err: err}
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		res.Errors = append(res.Errors, apiErr.Details()...)
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}
