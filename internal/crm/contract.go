package crm

import (
	"context"
	"time"

	"github.com/example/c2s-leadsync/internal/models"
)

// LeadProvider is the contract every CRM adapter satisfies. Implementations
// report failures through LeadResult instead of returning errors so that
// callers never need error handling on the common path.
type LeadProvider interface {
	CreateLead(ctx context.Context, lead models.LeadInput) LeadResult
	CreateEnrichedLead(ctx context.Context, lead models.LeadInput, property *models.Property) LeadResult
	UpdateLeadTags(ctx context.Context, leadID string, tags []string) LeadResult
	CreateVisitActivity(ctx context.Context, visit VisitInput) LeadResult
	MarkDoneDeal(ctx context.Context, deal DealInput) LeadResult
	HealthCheck(ctx context.Context) HealthStatus
}

// LeadResult is the structured outcome returned to collaborators.
type LeadResult struct {
	Success bool     `json:"success"`
	LeadID  string   `json:"leadId,omitempty"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`

	// Err keeps the classified cause for internal routing decisions.
	Err error `json:"-"`
}

// Retryable reports whether the failure is worth another attempt later.
func (r LeadResult) Retryable() bool {
	return !r.Success && IsRetryable(r.Err)
}

// HealthStatus reports CRM reachability.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency,omitempty"`
	Message string        `json:"message,omitempty"`
}

// VisitInput schedules a property visit for an existing CRM lead.
type VisitInput struct {
	LeadID       string    `json:"leadId"`
	PropertyCode string    `json:"propertyCode,omitempty"`
	SellerID     string    `json:"sellerId,omitempty"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	Notes        string    `json:"notes,omitempty"`
}

// DealInput closes a lead as a won deal.
type DealInput struct {
	LeadID string  `json:"leadId"`
	Value  float64 `json:"value,omitempty"`
	Notes  string  `json:"notes,omitempty"`
}
