// Package observability hosts the Prometheus collectors shared across the
// tokendesk service.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the collector set for the service tier: cache behaviour,
// upstream provider calls, trade attempts, and balance reconciliation.
type Metrics struct {
	CacheLookups   *prometheus.CounterVec
	UpstreamCalls  *prometheus.CounterVec
	UpstreamOutage *prometheus.HistogramVec
	TradeAttempts  *prometheus.CounterVec
	Reconciliation *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	registry    *Metrics
)

// Default returns the lazily-initialised process-wide metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		registry = &Metrics{
			CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokendesk",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache lookups segmented by logical cache and outcome (hit/miss).",
			}, []string{"cache", "outcome"}),
			UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokendesk",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Upstream market-data provider calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			UpstreamOutage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokendesk",
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for upstream provider calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			TradeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokendesk",
				Subsystem: "trade",
				Name:      "attempts_total",
				Help:      "Trade execution attempts segmented by side and terminal state.",
			}, []string{"side", "state"}),
			Reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokendesk",
				Subsystem: "balance",
				Name:      "reconciliations_total",
				Help:      "Balance reconciliation runs segmented by terminal state.",
			}, []string{"state"}),
		}
		prometheus.MustRegister(
			registry.CacheLookups,
			registry.UpstreamCalls,
			registry.UpstreamOutage,
			registry.TradeAttempts,
			registry.Reconciliation,
		)
	})
	return registry
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, outcome).Inc()
}

// ObserveUpstream records one provider call with its latency.
func (m *Metrics) ObserveUpstream(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamCalls.WithLabelValues(operation, outcome).Inc()
	m.UpstreamOutage.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveTrade records a terminal trade-executor state.
func (m *Metrics) ObserveTrade(side, state string) {
	if m == nil {
		return
	}
	m.TradeAttempts.WithLabelValues(side, state).Inc()
}

// ObserveReconciliation records a reconciler terminal state.
func (m *Metrics) ObserveReconciliation(state string) {
	if m == nil {
		return
	}
	m.Reconciliation.WithLabelValues(state).Inc()
}
