package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatemosphere/campus-portal/internal/auth"
)

func TestRegistry_ReusesResolverPerSession(t *testing.T) {
	store := NewMemoryStore()
	reg, err := NewRegistry(store, blockingFetcher(), RegistryConfig{})
	require.NoError(t, err)
	defer reg.Close()

	r1 := reg.Resolver(context.Background(), "s-1")
	r2 := reg.Resolver(context.Background(), "s-1")
	r3 := reg.Resolver(context.Background(), "s-2")

	assert.Same(t, r1, r2)
	assert.NotSame(t, r1, r3)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ResolverIsStarted(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Cache("s-1").Set(context.Background(), Entry{
		Token:    makeToken(t, time.Hour),
		Identity: &auth.Identity{UserID: "u-1", RoleID: "student"},
	}))
	reg, err := NewRegistry(store, blockingFetcher(), RegistryConfig{})
	require.NoError(t, err)
	defer reg.Close()

	st := reg.Resolver(context.Background(), "s-1").State()
	assert.False(t, st.IsLoading)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "u-1", st.User.UserID)
}

func TestRegistry_EvictionClosesResolver(t *testing.T) {
	reg, err := NewRegistry(NewMemoryStore(), blockingFetcher(), RegistryConfig{Size: 1})
	require.NoError(t, err)
	defer reg.Close()

	first := reg.Resolver(context.Background(), "s-1")
	states, _ := first.Watch()

	reg.Resolver(context.Background(), "s-2")
	assert.Equal(t, 1, reg.Len())

	_, open := <-states
	assert.False(t, open, "evicted resolver must be closed")
}

func TestRegistry_ForgetAndPurgeIdle(t *testing.T) {
	reg, err := NewRegistry(NewMemoryStore(), blockingFetcher(), RegistryConfig{})
	require.NoError(t, err)
	defer reg.Close()

	reg.Resolver(context.Background(), "s-1")
	reg.Resolver(context.Background(), "s-2")
	reg.Forget("s-1")
	assert.Equal(t, 1, reg.Len())

	assert.Equal(t, 0, reg.PurgeIdle(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, reg.PurgeIdle(time.Now().Add(time.Second)))
	assert.Equal(t, 0, reg.Len())
}
