// Package sweep runs periodic housekeeping jobs in the background.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var runs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "campus_portal_sweep_runs_total",
		Help: "Housekeeping job runs by job and result.",
	},
	[]string{"job", "result"},
)

func init() {
	prometheus.MustRegister(runs)
}

// Func is one housekeeping pass.
type Func func(ctx context.Context) error

// Scheduler runs a Func on a ticker. Runs never overlap.
type Scheduler struct {
	name     string
	fn       Func
	interval time.Duration

	mu       sync.Mutex // one run at a time (ticker + on-demand)
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates and starts a scheduler for fn. If interval is 0, no
// goroutine is started and fn only runs through RunOnce.
func NewScheduler(name string, fn Func, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		name:     name,
		fn:       fn,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if interval > 0 {
		go s.run()
	} else {
		close(s.done)
	}
	return s
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(s.ctx); err != nil {
				slog.Error("scheduled sweep failed", "job", s.name, "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// RunOnce runs the job now, waiting for a scheduled run in progress.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	runs.WithLabelValues(s.name, result).Inc()
	return err
}

// Shutdown cancels a run in progress, stops the ticker and waits for the
// goroutine to exit. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stop)
	})
	<-s.done
}
