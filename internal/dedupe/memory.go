package dedupe

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Expired keys are dropped lazily.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{items: make(map[string]memoryItem), now: now}
}

func (m *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, ok := m.live(key, now); ok {
		return false, nil
	}
	m.items[key] = memoryItem{
		entry:     Entry{State: StatePending, UpdatedAt: now},
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	m.items[key] = memoryItem{entry: entry, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.live(key, m.now())
	if !ok {
		return Entry{}, ErrNotFound
	}
	return item.entry, nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Reset forgets every key.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// live must be called with mu held.
func (m *MemoryStore) live(key string, now time.Time) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !now.Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}
