package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

const defaultRegistrySize = 1024

// RegistryConfig holds tuning parameters for the resolver registry.
type RegistryConfig struct {
	Size            int      // max live resolvers; least recently used are closed first
	ResolverOptions []Option // applied to every resolver the registry starts
}

type liveResolver struct {
	resolver *Resolver
	lastSeen atomic.Int64 // unix nanos
}

// Registry keeps one started Resolver per browser session. Evicting a session
// (LRU pressure, idle purge, Forget or Close) closes its resolver.
type Registry struct {
	opener  Opener
	fetcher Fetcher
	opts    []Option
	now     func() time.Time

	mu   sync.Mutex // serializes get-or-start
	live *lru.Cache[string, *liveResolver]
}

// NewRegistry creates an empty registry.
func NewRegistry(opener Opener, fetcher Fetcher, cfg RegistryConfig) (*Registry, error) {
	size := cfg.Size
	if size <= 0 {
		size = defaultRegistrySize
	}
	live, err := lru.NewWithEvict[string, *liveResolver](size, func(sessionID string, lr *liveResolver) {
		lr.resolver.Close()
		slog.Debug("session resolver released", "session", fingerprint(sessionID))
	})
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &Registry{
		opener:  opener,
		fetcher: fetcher,
		opts:    cfg.ResolverOptions,
		now:     time.Now,
		live:    live,
	}, nil
}

// Resolver returns the started resolver for sessionID, starting one on first
// use.
func (g *Registry) Resolver(ctx context.Context, sessionID string) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()

	lr, ok := g.live.Get(sessionID)
	if !ok {
		lr = &liveResolver{resolver: NewResolver(g.opener.Cache(sessionID), g.fetcher, g.opts...)}
		lr.resolver.Start(ctx)
		g.live.Add(sessionID, lr)
		slog.Debug("session resolver started", "session", fingerprint(sessionID))
	}
	lr.lastSeen.Store(g.now().UnixNano())
	return lr.resolver
}

// Forget closes and drops the resolver for sessionID, if any.
func (g *Registry) Forget(sessionID string) {
	g.live.Remove(sessionID)
}

// PurgeIdle closes resolvers not used since before and returns how many were
// released.
func (g *Registry) PurgeIdle(before time.Time) int {
	cutoff := before.UnixNano()
	n := 0
	for _, id := range g.live.Keys() {
		lr, ok := g.live.Peek(id)
		if !ok || lr.lastSeen.Load() >= cutoff {
			continue
		}
		if g.live.Remove(id) {
			n++
		}
	}
	return n
}

// Len returns the number of live resolvers.
func (g *Registry) Len() int {
	return g.live.Len()
}

// Close releases every live resolver.
func (g *Registry) Close() {
	g.live.Purge()
}

// fingerprint returns a short log-safe form of a session ID.
func fingerprint(sessionID string) string {
	return auth.HashToken(sessionID)[:12]
}
