package session

import "github.com/prometheus/client_golang/prometheus"

var (
	remoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_portal_identity_fetches_total",
			Help: "Background identity fetches by result (ok, error, stale, discarded).",
		},
		[]string{"result"},
	)
	cacheReadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_portal_session_cache_read_failures_total",
			Help: "Session cache reads that failed and were treated as signed out.",
		},
	)
)

func init() {
	prometheus.MustRegister(remoteFetches, cacheReadFailures)
}
