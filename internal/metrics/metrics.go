// Package metrics holds the Prometheus collectors for studylog.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics groups every studylog collector.
type Metrics struct {
	// Upstream calls by mode (stream, batch) and outcome (ok, upstream_error, transport_error)
	RelayRequests *prometheus.CounterVec

	// Malformed stream fragments dropped by the relay
	FragmentsDropped prometheus.Counter

	// Chat sends by outcome (committed, failed, busy, empty)
	Sends *prometheus.CounterVec

	// Send latency from accept to commit or revert
	SendDuration prometheus.Histogram

	// Classification results (classified, fallback)
	Classifications *prometheus.CounterVec
}

// Default returns the process-wide metrics, registering them once.
//
// Metrics:
//   - studylog_relay_requests_total{mode,outcome}
//   - studylog_relay_fragments_dropped_total
//   - studylog_sends_total{outcome}
//   - studylog_send_duration_seconds
//   - studylog_classifications_total{result}
func Default() *Metrics {
	once.Do(func() {
		global = &Metrics{
			RelayRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "studylog_relay_requests_total",
					Help: "Requests sent to the completions API",
				},
				[]string{"mode", "outcome"},
			),
			FragmentsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "studylog_relay_fragments_dropped_total",
					Help: "Malformed stream fragments skipped by the relay",
				},
			),
			Sends: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "studylog_sends_total",
					Help: "Chat sends handled by the transcript controller",
				},
				[]string{"outcome"},
			),
			SendDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "studylog_send_duration_seconds",
					Help:    "Time from accepting a send to commit or revert",
					Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
				},
			),
			Classifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "studylog_classifications_total",
					Help: "Answers classified into a unit or the Unsorted fallback",
				},
				[]string{"result"},
			),
		}
	})
	return global
}
