package models

import "time"

// Lead lifecycle event types.
const (
	LeadEventSynced    = "synced"
	LeadEventFailed    = "failed"
	LeadEventQueued    = "queued"
	LeadEventRetried   = "retried"
	LeadEventExhausted = "exhausted"
	LeadEventDuplicate = "duplicate"
)

// Failure types for DLQ records.
const (
	FailureTypePermanent  = "permanent"
	FailureTypeTransient  = "transient"
	FailureTypeValidation = "validation"
	FailureTypeUnknown    = "unknown"
)

// LeadEvent is published whenever a lead changes synchronization state.
type LeadEvent struct {
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	QueueID        string    `json:"queue_id,omitempty"`
	CRMLeadID      string    `json:"crm_lead_id,omitempty"`
	LeadName       string    `json:"lead_name,omitempty"`
	PropertyCode   string    `json:"property_code,omitempty"`
	Attempt        int       `json:"attempt,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// DLQRecord captures a lead that the retry queue gave up on.
type DLQRecord struct {
	QueueID       string            `json:"queue_id"`
	Lead          LeadInput         `json:"lead"`
	Property      *Property         `json:"property,omitempty"`
	Attempts      int               `json:"attempts"`
	FailureType   string            `json:"failure_type"`
	LastError     string            `json:"last_error,omitempty"`
	FirstFailedAt time.Time         `json:"first_failed_at"`
	LastAttemptAt time.Time         `json:"last_attempt_at"`
	Meta          map[string]string `json:"meta,omitempty"`
}
