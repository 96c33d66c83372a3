package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

// Fetcher is the authoritative "who am I" call against the events API.
type Fetcher interface {
	FetchCurrentIdentity(ctx context.Context, token string) (*auth.Identity, error)
}

// Source records which layer produced the resolver's current identity.
type Source string

const (
	SourceNone   Source = ""
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// State is the resolver's view of the current session.
type State struct {
	User            *auth.Identity
	IsLoading       bool
	IsAuthenticated bool
	Source          Source
}

func (s State) equal(other State) bool {
	return s.IsLoading == other.IsLoading &&
		s.IsAuthenticated == other.IsAuthenticated &&
		s.Source == other.Source &&
		s.User.Equal(other.User)
}

const (
	defaultPollInterval = time.Second
	defaultFetchTimeout = 10 * time.Second
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithPollInterval sets how often the cache is re-read. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) { r.pollInterval = d }
}

// WithFetchTimeout bounds the background identity fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// Resolver produces a live, eventually consistent view of one session's
// identity from a local Cache and a remote Fetcher.
//
// Before Start the state is loading. Start reads the cache synchronously and,
// when the cache holds a valid session, confirms the identity in the
// background. Cache changes are picked up through the cache subscription and
// a polling ticker. Every cache read that changes the entry starts a new
// generation; fetch results from an older generation are discarded.
type Resolver struct {
	cache        Cache
	fetcher      Fetcher
	pollInterval time.Duration
	fetchTimeout time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc

	publishMu sync.Mutex // orders snapshot-and-send across goroutines

	mu         sync.Mutex
	started    bool
	closed     bool
	cached     *Entry
	user       *auth.Identity
	source     Source
	generation uint64
	pending    uint64 // generation of the fetch in flight for the current entry, 0 if none
	published  State
	watchers   map[int]chan State
	nextWatch  int

	stop chan struct{}
	done chan struct{}
}

// NewResolver creates an unstarted resolver.
func NewResolver(cache Cache, fetcher Fetcher, opts ...Option) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		cache:        cache,
		fetcher:      fetcher,
		pollInterval: defaultPollInterval,
		fetchTimeout: defaultFetchTimeout,
		baseCtx:      ctx,
		cancelBase:   cancel,
		published:    State{IsLoading: true},
		watchers:     make(map[int]chan State),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start hydrates the resolver from the cache and begins background work. It
// returns without waiting for the remote fetch. Calling Start more than once,
// or after Close, does nothing.
func (r *Resolver) Start(ctx context.Context) {
	entry := r.readCache(ctx)
	fetch := entry != nil && r.cache.Valid(ctx)

	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.applyEntryLocked(entry)
	gen := r.generation
	if fetch {
		r.pending = gen
	}
	r.mu.Unlock()

	changes, unsubscribe := r.cache.Subscribe()
	go r.watch(changes, unsubscribe)
	if fetch {
		go r.fetch(entry.Token, gen)
	}
	r.publish()
}

// State returns the current snapshot. IsAuthenticated is evaluated on every
// call from the cache's own validity check, independent of the remote fetch
// and of whether the resolver has been closed.
func (r *Resolver) State() State {
	r.mu.Lock()
	st := State{
		User:      r.user.Clone(),
		Source:    r.source,
		IsLoading: !r.started || (r.user == nil && r.pending != 0 && r.pending == r.generation),
	}
	r.mu.Unlock()

	st.IsAuthenticated = st.User != nil && r.cache.Valid(context.WithoutCancel(r.baseCtx))
	return st
}

// Refresh re-reads the cache. It reports whether the cached entry changed;
// an unchanged entry leaves the state untouched.
func (r *Resolver) Refresh(ctx context.Context) bool {
	entry := r.readCache(ctx)
	valid := entry != nil && r.cache.Valid(ctx)

	r.mu.Lock()
	if !r.started || r.closed || entry.equal(r.cached) {
		r.mu.Unlock()
		r.publish()
		return false
	}
	tokenChanged := entry == nil || r.cached == nil || entry.Token != r.cached.Token
	r.applyEntryLocked(entry)
	gen := r.generation
	fetch := tokenChanged && valid
	if fetch {
		r.pending = gen
	}
	r.mu.Unlock()

	slog.Debug("session cache changed", "generation", gen, "has_identity", entry != nil && entry.Identity != nil)
	if fetch {
		go r.fetch(entry.Token, gen)
	}
	r.publish()
	return true
}

// Watch returns a channel carrying state changes and a func that stops the
// watch. The channel holds only the latest undelivered state.
func (r *Resolver) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(c)
		}
	}
}

// Close stops polling, releases the cache subscription and closes all
// watchers. A fetch still in flight is cancelled and its result dropped.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.stop)
	for id, ch := range r.watchers {
		delete(r.watchers, id)
		close(ch)
	}
	r.mu.Unlock()

	r.cancelBase()
	if started {
		<-r.done
	}
}

func (r *Resolver) readCache(ctx context.Context) *Entry {
	entry, err := r.cache.Get(ctx)
	if err != nil {
		slog.Warn("session cache read failed, treating as signed out", "error", err)
		cacheReadFailures.Inc()
		return nil
	}
	return entry
}

// applyEntryLocked replaces the snapshot with a fresh cache read.
func (r *Resolver) applyEntryLocked(entry *Entry) {
	r.generation++
	r.cached = entry
	if entry == nil || entry.Identity == nil {
		r.user = nil
		r.source = SourceNone
		return
	}
	r.user = entry.Identity.Clone()
	r.source = SourceCache
}

func (r *Resolver) fetch(token string, gen uint64) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.fetchTimeout)
	defer cancel()

	id, err := r.fetcher.FetchCurrentIdentity(ctx, token)

	r.mu.Lock()
	if r.pending == gen {
		r.pending = 0
	}
	switch {
	case r.closed:
		r.mu.Unlock()
		remoteFetches.WithLabelValues("discarded").Inc()
		return
	case gen != r.generation:
		r.mu.Unlock()
		slog.Debug("discarding stale identity fetch", "generation", gen)
		remoteFetches.WithLabelValues("stale").Inc()
		r.publish()
		return
	case err != nil || id == nil:
		r.mu.Unlock()
		slog.Warn("identity fetch failed, keeping cached identity", "error", err)
		remoteFetches.WithLabelValues("error").Inc()
		r.publish()
		return
	}
	r.user = id.Clone()
	r.source = SourceRemote
	r.mu.Unlock()

	remoteFetches.WithLabelValues("ok").Inc()
	r.publish()
}

func (r *Resolver) watch(changes <-chan struct{}, unsubscribe func()) {
	defer close(r.done)
	defer unsubscribe()

	var tick <-chan time.Time
	if r.pollInterval > 0 {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.stop:
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			r.Refresh(r.baseCtx)
		case <-tick:
			r.Refresh(r.baseCtx)
		}
	}
}

// publish delivers the current state to watchers when it differs from the
// last delivered one.
// Publishes are serialized so the last one to run always snapshots the
// latest fields.
func (r *Resolver) publish() {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	st := r.State()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || st.equal(r.published) {
		return
	}
	r.published = st
	for _, ch := range r.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
