package session

import (
	"context"
	"sync"
	"time"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

// MemoryStore keeps session entries in process memory. It is the store used
// by tests and by single-instance deployments that do not need sessions to
// survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	notifier *Notifier
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]Entry),
		notifier: NewNotifier(),
		now:      time.Now,
	}
}

// Cache returns the cache view for sessionID.
func (s *MemoryStore) Cache(sessionID string) Cache {
	return &memoryCache{store: s, id: sessionID}
}

type memoryCache struct {
	store *MemoryStore
	id    string
}

func (c *memoryCache) Get(_ context.Context) (*Entry, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	e, ok := c.store.entries[c.id]
	if !ok {
		return nil, nil
	}
	return &Entry{Token: e.Token, Identity: e.Identity.Clone()}, nil
}

func (c *memoryCache) Valid(_ context.Context) bool {
	c.store.mu.RLock()
	e, ok := c.store.entries[c.id]
	c.store.mu.RUnlock()
	return ok && auth.TokenActive(e.Token, c.store.now())
}

func (c *memoryCache) Set(_ context.Context, e Entry) error {
	c.store.mu.Lock()
	c.store.entries[c.id] = Entry{Token: e.Token, Identity: e.Identity.Clone()}
	c.store.mu.Unlock()
	c.store.notifier.Publish(c.id)
	return nil
}

func (c *memoryCache) Clear(_ context.Context) error {
	c.store.mu.Lock()
	delete(c.store.entries, c.id)
	c.store.mu.Unlock()
	c.store.notifier.Publish(c.id)
	return nil
}

func (c *memoryCache) Subscribe() (<-chan struct{}, func()) {
	return c.store.notifier.Subscribe(c.id)
}
