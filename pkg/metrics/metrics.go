// Package metrics holds the Prometheus instrumentation shared by node
// systems, the project store and the HTTP server. All collectors register
// with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plantarium"

// Computation status label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusStale   = "stale"
)

var (
	// passDuration measures one propagation pass, from scheduling to the
	// last recomputed node.
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of node graph propagation passes in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// nodeComputations counts per-node computations.
	// Labels: type (node type key), status (ok, error, skipped, stale)
	nodeComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_computations_total",
		Help:      "Total node computations by node type and outcome",
	}, []string{"type", "status"})

	// historySteps counts committed undo steps.
	historySteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "steps_total",
		Help:      "Total coalesced history steps committed",
	})

	// storeOperations counts project store operations.
	// Labels: op (save, load, list, delete), status (ok, error)
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total project store operations",
	}, []string{"op", "status"})

	// liveSessions tracks open websocket sessions.
	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "live_sessions",
		Help:      "Number of open live editing sessions",
	})
)

// ObservePass records the duration of a propagation pass.
func ObservePass(d time.Duration) {
	passDuration.Observe(d.Seconds())
}

// NodeComputed counts one node computation outcome.
func NodeComputed(nodeType, status string) {
	nodeComputations.WithLabelValues(nodeType, status).Inc()
}

// HistoryStepCommitted counts one committed history step.
func HistoryStepCommitted() {
	historySteps.Inc()
}

// StoreOperation counts a store operation; err selects the status label.
func StoreOperation(op string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	storeOperations.WithLabelValues(op, status).Inc()
}

// SessionOpened and SessionClosed track live websocket sessions.
func SessionOpened() { liveSessions.Inc() }

// SessionClosed decrements the live session gauge.
func SessionClosed() { liveSessions.Dec() }
