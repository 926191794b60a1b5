package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects session lifecycle counters for Prometheus. A nil
// *Metrics is valid and records nothing, so wiring stays optional in
// tests.
type Metrics struct {
	signInSuccess  prometheus.Counter
	signInFailure  prometheus.Counter
	authEvents     *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	initDuration   prometheus.Histogram
}

// NewMetrics creates the collector and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signInSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_signin_success_total",
			Help: "Total successful sign-in operations.",
		}),
		signInFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_signin_failure_total",
			Help: "Total failed sign-in operations.",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_auth_events_total",
			Help: "Provider-pushed auth events by type.",
		}, []string{"type"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_guard_decisions_total",
			Help: "Route guard decisions by action.",
		}, []string{"action"}),
		initDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessiond_init_duration_seconds",
			Help:    "Session initialization latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.signInSuccess,
		m.signInFailure,
		m.authEvents,
		m.guardDecisions,
		m.initDuration,
	)

	return m
}

func (m *Metrics) RecordSignIn(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.signInSuccess.Inc()
	} else {
		m.signInFailure.Inc()
	}
}

func (m *Metrics) RecordAuthEvent(t AuthEventType) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) RecordGuardDecision(action GuardAction) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) ObserveInitDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.initDuration.Observe(d.Seconds())
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
