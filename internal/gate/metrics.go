package gate

import "github.com/prometheus/client_golang/prometheus"

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "campus_portal_gate_decisions_total",
		Help: "Access gate decisions by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(decisions)
}
