// ABOUTME: Prometheus collectors for the fleet gateway
// ABOUTME: Agent lifecycle, behavior task, observer delivery, and HTTP request metrics

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Agents

	AgentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_agents",
			Help: "Number of registered agents by lifecycle state",
		},
		[]string{"state"},
	)

	AgentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_agent_transitions_total",
			Help: "Total agent lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	AgentsReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_agents_reclaimed_total",
			Help: "Total errored, unobserved agents removed by the reclamation sweep",
		},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_commands_total",
			Help: "Total commands submitted to agents",
		},
		[]string{"status"},
	)

	// Behaviors

	BehaviorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_behavior_runs_total",
			Help: "Total behavior task executions",
		},
		[]string{"task", "status"},
	)

	BehaviorRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_behavior_run_duration_seconds",
			Help:    "Behavior task execution time",
			Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"task"},
	)

	// Observers

	ObserverSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_observer_sends_total",
			Help: "Total frames pushed to observers",
		},
		[]string{"status"},
	)

	StreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_stream_connections",
			Help: "Number of open observer WebSocket connections",
		},
	)

	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
