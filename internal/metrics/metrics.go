package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulsepoint"

var (
	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session state transitions by event.",
	}, []string{"event"})

	ExchangeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_exchange_duration_seconds",
		Help:      "Duration of identity token to backend session exchanges.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	GuardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_guard_decisions_total",
		Help:      "Route guard decisions by requirement and outcome.",
	}, []string{"requirement", "decision"})

	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions",
		Help:      "Browser sessions currently held in memory.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Portal HTTP requests by method and status.",
	}, []string{"method", "status"})
)

// NewRegistry returns a registry holding the portal collectors and the
// standard process and Go collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	for _, c := range []prometheus.Collector{
		SessionTransitions,
		ExchangeDuration,
		GuardDecisions,
		LiveSessions,
		HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
