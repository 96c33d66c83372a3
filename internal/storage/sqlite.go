package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/session"
)

const defaultWatchInterval = 500 * time.Millisecond

// SQLiteStoreConfig holds tuning parameters for the SQLite store.
type SQLiteStoreConfig struct {
	// WatchInterval is how often the store checks for commits made by other
	// processes. 0 = default (500ms), negative disables the watcher.
	WatchInterval time.Duration
}

// SQLiteStore keeps session entries in SQLite (WAL mode) so every server
// process on the host shares them. It implements session.Opener.
type SQLiteStore struct {
	db       *sql.DB
	notifier *session.Notifier
	now      func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSQLiteStore opens (or creates) a SQLite database at path with WAL mode enabled.
func NewSQLiteStore(path string, cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: data_version is per connection and only moves for
	// commits made through other connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:       db,
		notifier: session.NewNotifier(),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	interval := cfg.WatchInterval
	if interval == 0 {
		interval = defaultWatchInterval
	}
	if interval > 0 {
		go s.watchCommits(interval)
	} else {
		close(s.done)
	}
	return s, nil
}

// Close stops the commit watcher, closes subscriber channels and the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.notifier.Close()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    token TEXT NOT NULL DEFAULT '',
    identity BLOB,
    expires_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// Cache returns the cache view for sessionID.
func (s *SQLiteStore) Cache(sessionID string) session.Cache {
	return &sqliteCache{store: s, id: sessionID}
}

// --- Sessions ---

// GetSession returns the stored row for sessionID, or nil if there is none.
// A corrupted identity payload is reported as an error.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var (
		sess                          Session
		blob                          []byte
		expiresAt, created, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, token, identity, expires_at, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&sess.ID, &sess.Token, &blob, &expiresAt, &created, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	sess.Identity, err = decodeIdentity(blob)
	if err != nil {
		return nil, err
	}
	if expiresAt > 0 {
		sess.ExpiresAt = time.Unix(expiresAt, 0)
	}
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// SaveSession inserts or replaces the entry for sessionID and notifies its
// subscribers.
func (s *SQLiteStore) SaveSession(ctx context.Context, sessionID string, e session.Entry) error {
	blob, err := encodeIdentity(e.Identity)
	if err != nil {
		return err
	}
	var expiresAt int64
	if exp, err := auth.TokenExpiry(e.Token); err == nil && !exp.IsZero() {
		expiresAt = exp.Unix()
	}

	now := s.now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (session_id, token, identity, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET token = excluded.token, identity = excluded.identity,
			expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		sessionID, e.Token, blob, expiresAt, now, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.notifier.Publish(sessionID)
	return nil
}

// DeleteSession removes the entry for sessionID and notifies its subscribers.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.notifier.Publish(sessionID)
	return nil
}

// PurgeExpired deletes sessions not written since before and sessions whose
// token has expired. It returns the number of rows removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ? OR (expires_at > 0 AND expires_at <= ?)`,
		before.Unix(), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.notifier.Broadcast()
	}
	return n, nil
}

// CountSessions returns the number of stored sessions.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Change detection ---

func (s *SQLiteStore) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v)
	return v, err
}

// watchCommits broadcasts to every subscriber whenever another connection
// commits to the database.
func (s *SQLiteStore) watchCommits(interval time.Duration) {
	defer close(s.done)

	ctx := context.Background()
	last, err := s.dataVersion(ctx)
	if err != nil {
		slog.Warn("read sqlite data_version", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			v, err := s.dataVersion(ctx)
			if err != nil {
				slog.Warn("read sqlite data_version", "error", err)
				continue
			}
			if v != last {
				last = v
				s.notifier.Broadcast()
			}
		}
	}
}

// sqliteCache is the session.Cache view of one session row.
type sqliteCache struct {
	store *SQLiteStore
	id    string
}

func (c *sqliteCache) Get(ctx context.Context) (*session.Entry, error) {
	sess, err := c.store.GetSession(ctx, c.id)
	if err != nil || sess == nil {
		return nil, err
	}
	return &session.Entry{Token: sess.Token, Identity: sess.Identity}, nil
}

func (c *sqliteCache) Valid(ctx context.Context) bool {
	var token string
	err := c.store.db.QueryRowContext(ctx, `SELECT token FROM sessions WHERE session_id = ?`, c.id).Scan(&token)
	if err != nil {
		return false
	}
	return auth.TokenActive(token, c.store.now())
}

func (c *sqliteCache) Set(ctx context.Context, e session.Entry) error {
	return c.store.SaveSession(ctx, c.id, e)
}

func (c *sqliteCache) Clear(ctx context.Context) error {
	return c.store.DeleteSession(ctx, c.id)
}

func (c *sqliteCache) Subscribe() (<-chan struct{}, func()) {
	return c.store.notifier.Subscribe(c.id)
}
