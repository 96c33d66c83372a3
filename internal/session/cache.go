package session

import (
	"context"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

// Entry is what a browser session keeps locally: the events API access token
// and the last identity returned with it.
type Entry struct {
	Token    string
	Identity *auth.Identity
}

func (e *Entry) equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Token == other.Token && e.Identity.Equal(other.Identity)
}

// Cache is the local, synchronous store of one session's entry. Writers
// (login and logout) call Set and Clear; resolvers only read and subscribe.
type Cache interface {
	// Get returns the stored entry, or nil when the session has none.
	Get(ctx context.Context) (*Entry, error)
	// Valid reports whether the stored token is present and unexpired.
	Valid(ctx context.Context) bool
	Set(ctx context.Context, e Entry) error
	Clear(ctx context.Context) error
	// Subscribe returns a channel that receives a value whenever the entry may
	// have changed, and a func that releases the subscription.
	Subscribe() (<-chan struct{}, func())
}

// Opener hands out the cache view for a session ID.
type Opener interface {
	Cache(sessionID string) Cache
}
