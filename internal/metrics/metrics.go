// Package metrics exposes Prometheus collectors for settlement runs and RPC
// traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cashflow"

// Run outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeInconsistent = "inconsistent"
	OutcomeError        = "error"
)

// Metrics holds the collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runs                *prometheus.CounterVec
	transfers           prometheus.Histogram
	duration            prometheus.Histogram
	obligationsRecorded prometheus.Counter
	rpcRequests         *prometheus.CounterVec
}

// New creates and registers the collectors, along with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_runs_total",
			Help:      "Settlement runs by outcome.",
		}, []string{"outcome"}),
		transfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_transfers",
			Help:      "Number of transfers produced per successful run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of settlement runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		obligationsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obligations_recorded_total",
			Help:      "Obligations persisted to the ledger.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Connect RPCs by procedure and result code.",
		}, []string{"procedure", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.transfers,
		m.duration,
		m.obligationsRecorded,
		m.rpcRequests,
	)

	return m
}

// ObserveRun records one settlement run. transfers is ignored unless the
// outcome is OutcomeOK.
func (m *Metrics) ObserveRun(outcome string, transfers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.transfers.Observe(float64(transfers))
	}
}

// AddObligations counts persisted obligations.
func (m *Metrics) AddObligations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.obligationsRecorded.Add(float64(n))
}

// ObserveRPC counts one RPC by procedure and result code.
func (m *Metrics) ObserveRPC(procedure, code string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
