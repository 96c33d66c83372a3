package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counting(called *atomic.Int32) Func {
	return func(context.Context) error {
		called.Add(1)
		return nil
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	var called atomic.Int32
	sched := NewScheduler("test", counting(&called), 0)
	defer sched.Shutdown()

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, int32(1), called.Load())
}

func TestScheduler_RunOnceReturnsError(t *testing.T) {
	boom := errors.New("boom")
	sched := NewScheduler("failing", func(context.Context) error { return boom }, 0)
	defer sched.Shutdown()

	assert.ErrorIs(t, sched.RunOnce(context.Background()), boom)
}

func TestScheduler_PeriodicTick(t *testing.T) {
	var called atomic.Int32
	sched := NewScheduler("tick", counting(&called), 20*time.Millisecond)
	defer sched.Shutdown()

	assert.Eventually(t, func() bool { return called.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ShutdownStopsTicker(t *testing.T) {
	var called atomic.Int32
	sched := NewScheduler("stop", counting(&called), 20*time.Millisecond)
	assert.Eventually(t, func() bool { return called.Load() >= 1 }, time.Second, 5*time.Millisecond)
	sched.Shutdown()

	countAtShutdown := called.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, countAtShutdown, called.Load(), "scheduler continued after shutdown")
}

func TestScheduler_ShutdownCancelsRun(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var cancelled atomic.Bool
	sched := NewScheduler("slow", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, 10*time.Millisecond)

	<-started
	sched.Shutdown()
	assert.True(t, cancelled.Load())
}

func TestScheduler_ShutdownTwice(t *testing.T) {
	sched := NewScheduler("noop", func(context.Context) error { return nil }, 0)
	sched.Shutdown()
	sched.Shutdown()
}

type fakePurger struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

type fakeIdle struct{ before time.Time }

func (f *fakeIdle) PurgeIdle(before time.Time) int {
	f.before = before
	return 1
}

func TestSessions(t *testing.T) {
	store := &fakePurger{n: 3}
	idle := &fakeIdle{}
	job := Sessions(store, idle, 24*time.Hour, 15*time.Minute)

	require.NoError(t, job(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), store.before, time.Second)
	assert.WithinDuration(t, time.Now().Add(-15*time.Minute), idle.before, time.Second)
}

func TestSessions_StoreError(t *testing.T) {
	job := Sessions(&fakePurger{err: errors.New("locked")}, nil, time.Hour, 0)
	require.ErrorContains(t, job(context.Background()), "purge sessions")
}

func TestSessions_ZeroDurationsSkip(t *testing.T) {
	store := &fakePurger{}
	idle := &fakeIdle{}
	require.NoError(t, Sessions(store, idle, 0, 0)(context.Background()))
	assert.True(t, store.before.IsZero())
	assert.True(t, idle.before.IsZero())
}
