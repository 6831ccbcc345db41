package c2s

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/mapper"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/tags"
	"github.com/example/c2s-leadsync/internal/util"
)

// User-facing messages. Callers may show these directly to end users.
const (
	msgLeadCreated        = "Lead enviado ao CRM com sucesso"
	msgTagsUpdated        = "Tags do lead atualizadas"
	msgVisitScheduled     = "Visita registrada no CRM"
	msgDealClosed         = "Negócio marcado como concluído"
	msgIntegrationOff     = "Integração com o CRM desativada"
	msgMissingCredentials = "Credenciais do CRM não configuradas"
	msgVisitsOff          = "Integração de visitas desativada"
	msgInvalidLead        = "Dados do lead inválidos"
	msgCRMUnavailable     = "CRM indisponível no momento; tente novamente mais tarde"
	msgCRMRejected        = "O CRM recusou a solicitação"
	msgHealthy            = "CRM acessível"
)

// Dependencies collects the collaborators of the C2S provider. Mapper and
// Tags are built from the configuration when omitted.
type Dependencies struct {
	Client *Client
	Mapper *mapper.Mapper
	Tags   *tags.Engine
	Logger zerolog.Logger
	Now    func() time.Time
}

// Provider implements crm.LeadProvider on top of the C2S API. It never
// returns raw errors: every outcome is reported as a crm.LeadResult.
type Provider struct {
	client   *Client
	mapper   *mapper.Mapper
	tags     *tags.Engine
	flags    config.FeatureFlags
	sellerID string
	logger   zerolog.Logger
	now      func() time.Time
}

var _ crm.LeadProvider = (*Provider)(nil)

// NewProvider wires a Provider.
func NewProvider(cfg config.C2SConfig, flags config.FeatureFlags, deps Dependencies) (*Provider, error) {
	if deps.Client == nil {
		return nil, errors.New("c2s provider: client dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "c2s_provider").Logger()

	m := deps.Mapper
	if m == nil {
		m = mapper.New(logger,
			mapper.WithCountryCode(cfg.DefaultCountryCode),
			mapper.WithCompanyID(cfg.CompanyID),
			mapper.WithDefaultSellerID(cfg.DefaultSellerID),
		)
	}
	t := deps.Tags
	if t == nil {
		t = tags.New()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{
		client:   deps.Client,
		mapper:   m,
		tags:     t,
		flags:    flags,
		sellerID: strings.TrimSpace(cfg.DefaultSellerID),
		logger:   logger,
		now:      now,
	}, nil
}

// CreateLead creates a lead without property enrichment.
func (p *Provider) CreateLead(ctx context.Context, lead models.LeadInput) crm.LeadResult {
	return p.CreateEnrichedLead(ctx, lead, nil)
}

// CreateEnrichedLead maps and tags the lead, creates it in the CRM, then
// attaches the details note and marks the first interaction. The last two
// steps are best effort: their failures are logged and do not fail the
// result.
func (p *Provider) CreateEnrichedLead(ctx context.Context, lead models.LeadInput, property *models.Property) crm.LeadResult {
	if res, ok := p.guard(); !ok {
		return res
	}
	if strings.TrimSpace(lead.Name) == "" {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("lead name is required")))
	}

	payload := p.mapper.BuildLeadPayload(lead, property)
	if p.flags.AutoTagging {
		payload.Tags = p.tags.Generate(lead, property)
	}

	created, err := p.client.CreateLead(ctx, payload)
	if err != nil {
		p.logger.Warn().
			Str("property_code", payload.PropertyRef).
			Err(err).
			Msg("c2s provider: lead creation failed")
		return fromError(err)
	}

	leadID := created.ID.String()
	log := p.logger.With().Str("lead_id", leadID).Logger()
	if leadID == "" {
		log.Warn().Msg("c2s provider: CRM response carried no lead id; skipping follow-up calls")
		return crm.LeadResult{Success: true, Message: msgLeadCreated}
	}

	details := mapper.BuildLeadDetailsMessage(lead, property)
	if err := p.client.CreateMessage(ctx, leadID, details); err != nil {
		log.Warn().Err(err).Msg("c2s provider: failed to attach lead details message")
	}
	if err := p.client.MarkInteracted(ctx, leadID); err != nil {
		log.Warn().Err(err).Msg("c2s provider: failed to mark lead as interacted")
	}

	log.Info().Int("tags", len(payload.Tags)).Msg("c2s provider: lead created")
	return crm.LeadResult{Success: true, LeadID: leadID, Message: msgLeadCreated}
}

// UpdateLeadTags attaches tags to an existing lead. The set is deduplicated
// and capped like generated tags.
func (p *Provider) UpdateLeadTags(ctx context.Context, leadID string, values []string) crm.LeadResult {
	if res, ok := p.guard(); !ok {
		return res
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("lead id is required")))
	}
	merged := tags.Merge(values)
	if len(merged) == 0 {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("at least one tag is required")))
	}

	if err := p.client.AddTags(ctx, leadID, merged); err != nil {
		return fromError(err)
	}
	return crm.LeadResult{Success: true, LeadID: leadID, Message: msgTagsUpdated}
}

// CreateVisitActivity schedules a visit and records it on the lead
// timeline. It requires the visit integration flag.
func (p *Provider) CreateVisitActivity(ctx context.Context, visit crm.VisitInput) crm.LeadResult {
	if res, ok := p.guard(); !ok {
		return res
	}
	if !p.flags.VisitIntegration {
		return failure(msgVisitsOff, crm.WrapConfiguration(errors.New("visit integration disabled")))
	}
	leadID := strings.TrimSpace(visit.LeadID)
	if leadID == "" {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("lead id is required")))
	}
	if visit.ScheduledAt.IsZero() {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("visit date is required")))
	}

	sellerID := strings.TrimSpace(visit.SellerID)
	if sellerID == "" {
		sellerID = p.sellerID
	}
	visitID, err := p.client.CreateVisit(ctx, VisitRequest{
		LeadID:      leadID,
		SellerID:    sellerID,
		PropertyRef: strings.TrimSpace(visit.PropertyCode),
		ScheduledAt: visit.ScheduledAt.UTC(),
		Notes:       strings.TrimSpace(visit.Notes),
	})
	if err != nil {
		return fromError(err)
	}

	due := visit.ScheduledAt.UTC()
	description := "Visita agendada"
	if code := strings.TrimSpace(visit.PropertyCode); code != "" {
		description += " ao imóvel " + code
	}
	if _, err := p.client.CreateActivity(ctx, ActivityRequest{
		LeadID:      leadID,
		Type:        "visit",
		Description: description,
		DueAt:       &due,
	}); err != nil {
		p.logger.Warn().Str("lead_id", leadID).Str("visit_id", visitID).Err(err).
			Msg("c2s provider: failed to record visit activity")
	}
	return crm.LeadResult{Success: true, LeadID: leadID, Message: msgVisitScheduled}
}

// MarkDoneDeal closes a lead as a won deal.
func (p *Provider) MarkDoneDeal(ctx context.Context, deal crm.DealInput) crm.LeadResult {
	if res, ok := p.guard(); !ok {
		return res
	}
	leadID := strings.TrimSpace(deal.LeadID)
	if leadID == "" {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("lead id is required")))
	}
	if deal.Value < 0 {
		return failure(msgInvalidLead, crm.WrapValidation(errors.New("deal value cannot be negative")))
	}

	if err := p.client.MarkDone(ctx, leadID, DoneRequest{Value: deal.Value, Notes: strings.TrimSpace(deal.Notes)}); err != nil {
		return fromError(err)
	}
	return crm.LeadResult{Success: true, LeadID: leadID, Message: msgDealClosed}
}

// HealthCheck probes the CRM with a single request.
func (p *Provider) HealthCheck(ctx context.Context) crm.HealthStatus {
	if res, ok := p.guard(); !ok {
		return crm.HealthStatus{Healthy: false, Message: res.Message}
	}

	start := p.now()
	err := p.client.HealthCheck(ctx)
	latency := p.now().Sub(start)
	if err != nil {
		p.logger.Warn().Dur("latency", latency).Err(err).Msg("c2s provider: health check failed")
		return crm.HealthStatus{Healthy: false, Latency: latency, Message: err.Error()}
	}
	return crm.HealthStatus{Healthy: true, Latency: latency, Message: msgHealthy}
}

// Sellers lists CRM sellers when seller sync is enabled.
func (p *Provider) Sellers(ctx context.Context) ([]Seller, error) {
	if res, ok := p.guard(); !ok {
		return nil, res.Err
	}
	if !p.flags.SellerSync {
		return nil, crm.WrapConfiguration(errors.New("seller sync disabled"))
	}
	return p.client.GetSellers(ctx)
}

// DistributionQueues lists distribution queues when distribution is
// enabled.
func (p *Provider) DistributionQueues(ctx context.Context) ([]DistributionQueue, error) {
	if res, ok := p.guard(); !ok {
		return nil, res.Err
	}
	if !p.flags.DistributionEnabled {
		return nil, crm.WrapConfiguration(errors.New("distribution disabled"))
	}
	return p.client.GetDistributionQueues(ctx)
}

// SubscribeWebhook registers hookURL for CRM callbacks when webhooks are
// enabled. Unsubscribe is requested instead when remove is true.
func (p *Provider) SubscribeWebhook(ctx context.Context, hookURL string, remove bool) error {
	if res, ok := p.guard(); !ok {
		return res.Err
	}
	if !p.flags.WebhookEnabled {
		return crm.WrapConfiguration(errors.New("webhooks disabled"))
	}
	hook, err := util.ValidateHTTPURL(hookURL)
	if err != nil {
		return crm.WrapValidation(err)
	}
	if remove {
		return p.client.Unsubscribe(ctx, hook)
	}
	return p.client.Subscribe(ctx, hook)
}

// guard short-circuits before any network call when the integration is
// disabled or credentials are missing.
func (p *Provider) guard() (crm.LeadResult, bool) {
	if !p.flags.IntegrationEnabled {
		return failure(msgIntegrationOff, crm.WrapConfiguration(errors.New("integration disabled"))), false
	}
	if !p.client.HasCredentials() {
		return failure(msgMissingCredentials, crm.WrapConfiguration(errors.New("api token is missing"))), false
	}
	return crm.LeadResult{}, true
}

func failure(message string, err error) crm.LeadResult {
	res := crm.LeadResult{Success: false, Message: message, Err: err}
	if err != nil {
		res.Errors = []string{err.Error()}
	}
	return res
}

// fromError converts a client error into a failed LeadResult, keeping the
// CRM validation details for diagnostics.
func fromError(err error) crm.LeadResult {
	message := msgCRMRejected
	if crm.IsRetryable(err) {
		message = msgCRMUnavailable
	}

	res := crm.LeadResult{Success: false, Message: message, Err: err}
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		res.Errors = append(res.Errors, apiErr.Details()...)
	}
	res.Errors = append(res.Errors, err.Error())
	return res
}
