// Package metrics exposes the engine's platform metrics as prometheus
// collectors. Sessions update them; serving or scraping them is the
// caller's concern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine-level metrics.
type Metrics struct {
	ConnectionsAccepted *prometheus.CounterVec
	FramesDecoded       *prometheus.CounterVec
	DecodeErrors        *prometheus.CounterVec
	EventsMerged        *prometheus.CounterVec
	ProtocolViolations  *prometheus.CounterVec
	RowsEmitted         prometheus.Counter
	StorageCommits      prometheus.Histogram
}

// New creates a Metrics instance and registers it on reg. A nil reg gets a
// private registry, which keeps tests and parallel sessions isolated.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "session",
				Name:      "connections_accepted_total",
				Help:      "Source peer connections accepted",
			},
			[]string{"session"},
		),
		FramesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "wire",
				Name:      "frames_decoded_total",
				Help:      "Event frames decoded across all connections",
			},
			[]string{"session"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "wire",
				Name:      "decode_errors_total",
				Help:      "Connections lost to malformed frames",
			},
			[]string{"session"},
		),
		EventsMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "merge",
				Name:      "events_merged_total",
				Help:      "Events released past the frontier",
			},
			[]string{"session"},
		),
		ProtocolViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "profile",
				Name:      "protocol_violations_total",
				Help:      "Scheduling protocol violations recorded",
			},
			[]string{"session"},
		),
		RowsEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tdiag",
				Subsystem: "arrangements",
				Name:      "rows_emitted_total",
				Help:      "Arrangement size rows emitted",
			},
		),
		StorageCommits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tdiag",
				Subsystem: "storage",
				Name:      "commit_duration_seconds",
				Help:      "Series store batch commit latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(
		m.ConnectionsAccepted,
		m.FramesDecoded,
		m.DecodeErrors,
		m.EventsMerged,
		m.ProtocolViolations,
		m.RowsEmitted,
		m.StorageCommits,
	)
	return m
}

// StorageHook adapts Metrics to the storage wrapper's MetricsHook surface.
func (m *Metrics) StorageHook() StorageHook { return StorageHook{m: m} }

// StorageHook implements pebblestore.MetricsHook.
type StorageHook struct {
	m *Metrics
}

// ObserveRead is required by the hook surface; reads are not charted.
func (StorageHook) ObserveRead(time.Duration, int) {}

// ObserveBatchCommit records a commit latency sample.
func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, _ int) {
	h.m.StorageCommits.Observe(elapsed.Seconds())
}
