package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/session"
)

func newTestStore(t *testing.T, path string, cfg SQLiteStoreConfig) *SQLiteStore {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "sessions.db")
	}
	store, err := NewSQLiteStore(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func token(t *testing.T, ttl time.Duration) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}).SignedString([]byte("storage-test"))
	require.NoError(t, err)
	return s
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestCache_SetGetClear(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	cache := store.Cache("cps-1")

	entry, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, cache.Valid(ctx))

	id := &auth.Identity{UserID: "u-1", Email: "ana@uni.edu", RoleID: "student"}
	tok := token(t, time.Hour)
	require.NoError(t, cache.Set(ctx, session.Entry{Token: tok, Identity: id}))

	entry, err = cache.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, tok, entry.Token)
	assert.True(t, id.Equal(entry.Identity))
	assert.True(t, cache.Valid(ctx))

	require.NoError(t, cache.Clear(ctx))
	entry, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_TokenWithoutIdentity(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	cache := store.Cache("cps-1")

	require.NoError(t, cache.Set(ctx, session.Entry{Token: token(t, time.Hour)}))
	entry, err := cache.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.Identity)
}

func TestCache_ExpiredTokenInvalid(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	cache := store.Cache("cps-1")

	require.NoError(t, cache.Set(ctx, session.Entry{Token: token(t, -time.Minute), Identity: &auth.Identity{UserID: "u"}}))
	assert.False(t, cache.Valid(ctx))

	require.NoError(t, cache.Set(ctx, session.Entry{Token: "garbage", Identity: &auth.Identity{UserID: "u"}}))
	assert.False(t, cache.Valid(ctx))
}

func TestIdentityCompression(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "cps-1", session.Entry{
		Token:    token(t, time.Hour),
		Identity: &auth.Identity{UserID: "u-1", RoleName: "Organizer"},
	}))

	var raw []byte
	require.NoError(t, store.db.QueryRow(`SELECT identity FROM sessions WHERE session_id = 'cps-1'`).Scan(&raw))
	assert.True(t, len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b, "expected identity to be gzipped")

	// Plain JSON rows still decode.
	_, err := store.db.Exec(`UPDATE sessions SET identity = ? WHERE session_id = 'cps-1'`, []byte(`{"userId":"u-2","roleId":"staff"}`))
	require.NoError(t, err)
	sess, err := store.GetSession(ctx, "cps-1")
	require.NoError(t, err)
	assert.Equal(t, "u-2", sess.Identity.UserID)
	assert.Equal(t, "staff", sess.Identity.Role())
	assert.False(t, sess.ExpiresAt.IsZero())
}

func TestCache_CorruptedIdentity(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	cache := store.Cache("cps-1")
	require.NoError(t, cache.Set(ctx, session.Entry{Token: token(t, time.Hour), Identity: &auth.Identity{UserID: "u"}}))

	_, err := store.db.Exec(`UPDATE sessions SET identity = ? WHERE session_id = 'cps-1'`, []byte("{not json"))
	require.NoError(t, err)

	entry, err := cache.Get(ctx)
	assert.Error(t, err)
	assert.Nil(t, entry)

	r := session.NewResolver(cache, nil, session.WithPollInterval(0))
	r.Start(ctx)
	t.Cleanup(r.Close)
	st := r.State()
	assert.Nil(t, st.User)
	assert.False(t, st.IsAuthenticated)
}

func TestSubscribe_InProcess(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()

	changes, cancel := store.Cache("cps-1").Subscribe()
	defer cancel()
	other, cancelOther := store.Cache("cps-2").Subscribe()
	defer cancelOther()

	require.NoError(t, store.Cache("cps-1").Set(ctx, session.Entry{Token: "t"}))
	waitSignal(t, changes)

	select {
	case <-other:
		t.Fatal("unrelated session was notified")
	default:
	}
}

func TestSubscribe_CrossProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	reader := newTestStore(t, path, SQLiteStoreConfig{WatchInterval: 10 * time.Millisecond})
	writer := newTestStore(t, path, SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()

	changes, cancel := reader.Cache("cps-1").Subscribe()
	defer cancel()

	id := &auth.Identity{UserID: "u-9", RoleID: "admin"}
	require.NoError(t, writer.Cache("cps-1").Set(ctx, session.Entry{Token: token(t, time.Hour), Identity: id}))
	waitSignal(t, changes)

	assert.Eventually(t, func() bool {
		entry, err := reader.Cache("cps-1").Get(ctx)
		return err == nil && entry != nil && id.Equal(entry.Identity)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPurgeExpired(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	now := time.Now()

	store.now = func() time.Time { return now.Add(-2 * time.Hour) }
	require.NoError(t, store.SaveSession(ctx, "cps-idle", session.Entry{Token: token(t, 24*time.Hour)}))
	store.now = func() time.Time { return now }
	require.NoError(t, store.SaveSession(ctx, "cps-expired", session.Entry{Token: token(t, -time.Minute)}))
	require.NoError(t, store.SaveSession(ctx, "cps-live", session.Entry{Token: token(t, time.Hour)}))
	require.NoError(t, store.SaveSession(ctx, "cps-noexp", session.Entry{Token: ""}))

	n, err := store.PurgeExpired(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := store.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sess, err := store.GetSession(ctx, "cps-live")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestClose_Idempotent(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "s.db"), SQLiteStoreConfig{WatchInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	changes, _ := store.Cache("cps-1").Subscribe()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, ok := <-changes
	assert.False(t, ok)
}

type unreachableAPI struct{}

func (unreachableAPI) FetchCurrentIdentity(context.Context, string) (*auth.Identity, error) {
	return nil, errors.New("events api unreachable")
}

func TestResolver_StateAfterEviction(t *testing.T) {
	store := newTestStore(t, "", SQLiteStoreConfig{WatchInterval: -1})
	ctx := context.Background()
	for _, sid := range []string{"cps-a", "cps-b"} {
		require.NoError(t, store.Cache(sid).Set(ctx, session.Entry{
			Token:    token(t, time.Hour),
			Identity: &auth.Identity{UserID: sid, RoleID: "student"},
		}))
	}

	reg, err := session.NewRegistry(store, unreachableAPI{}, session.RegistryConfig{
		Size:            1,
		ResolverOptions: []session.Option{session.WithPollInterval(0)},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	held := reg.Resolver(ctx, "cps-a")
	before := held.State()
	require.True(t, before.IsAuthenticated)

	// Starting a second session evicts and closes the first resolver.
	reg.Resolver(ctx, "cps-b")
	require.Equal(t, 1, reg.Len())

	after := held.State()
	assert.NotNil(t, after.User)
	assert.True(t, after.IsAuthenticated, "a closed resolver must still report a valid session as authenticated")
}
