package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger deletes stored sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// IdlePurger releases live resolvers.
type IdlePurger interface {
	PurgeIdle(before time.Time) int
}

// Sessions returns the job that drops stored sessions older than sessionTTL
// (or with an expired token) and releases resolvers idle for resolverIdle.
// A zero duration skips that half.
func Sessions(store SessionPurger, resolvers IdlePurger, sessionTTL, resolverIdle time.Duration) Func {
	return func(ctx context.Context) error {
		now := time.Now()
		if resolvers != nil && resolverIdle > 0 {
			if n := resolvers.PurgeIdle(now.Add(-resolverIdle)); n > 0 {
				slog.Debug("released idle session resolvers", "count", n)
			}
		}
		if store != nil && sessionTTL > 0 {
			n, err := store.PurgeExpired(ctx, now.Add(-sessionTTL))
			if err != nil {
				return fmt.Errorf("purge sessions: %w", err)
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
		return nil
	}
}
