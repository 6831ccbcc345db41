package dedupe

import (
	"context"
	"errors"
	"time"
)

// State of a remembered submission.
type State string

const (
	StatePending State = "pending"
	StateSynced  State = "synced"
	StateQueued  State = "queued"
)

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("dedupe: key not found")

// Entry is what the store remembers about a submission.
type Entry struct {
	State     State     `json:"state"`
	LeadID    string    `json:"leadId,omitempty"`
	QueueID   string    `json:"queueId,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store remembers recent submissions by idempotency key so duplicates can be
// answered without calling the CRM again.
type Store interface {
	// Claim marks key as pending. It reports false when the key already
	// exists in any state.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Save records the final state for key.
	Save(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// Release forgets key so the submission can be attempted again.
	Release(ctx context.Context, key string) error
	Close() error
}
