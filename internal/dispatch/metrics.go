package dispatch

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// attemptsTotal counts individual network attempts by outcome.
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_dispatch_attempts_total",
			Help: "Total network attempts issued by the dispatcher",
		},
		[]string{"service", "source", "outcome"},
	)

	// dispatchesTotal counts whole dispatches by final outcome.
	dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_dispatches_total",
			Help: "Total dispatches by final outcome",
		},
		[]string{"service", "source", "outcome"},
	)

	// attemptDurationSeconds tracks per-attempt wall time.
	attemptDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayctl_dispatch_attempt_duration_seconds",
			Help:    "Duration of individual dispatch attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "source"},
	)

	// metricsRegistered ensures metrics are only registered once.
	metricsRegistered atomic.Bool
)

// attempt outcomes used as the "outcome" label value.
const (
	outcomeSuccess   = "success"
	outcomeRetriable = "retriable"
	outcomeTerminal  = "terminal"
	outcomeExhausted = "exhausted"
	// outcomeNoCredentials marks dispatches that failed before any network
	// I/O because no credential was eligible.
	outcomeNoCredentials = "no_credentials"
)

// RegisterMetrics registers the dispatcher's Prometheus metrics. Safe to
// call multiple times.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		attemptsTotal,
		dispatchesTotal,
		attemptDurationSeconds,
	)
}
