// Package metrics provides Prometheus metrics for the tor fleet.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Launch results.
const (
	LaunchOK            = "ok"
	LaunchSpawnError    = "spawn_error"
	LaunchResourceError = "resource_error"
)

// Batch outcomes.
const (
	BatchRunning = "running"
	BatchFailed  = "failed"
	BatchAborted = "aborted"
)

var (
	instancesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "instances_live",
		Help:      "Number of registered tor instances that survived the settle delay",
	})

	launchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "launches_total",
		Help:      "Instance launch attempts by result",
	}, []string{"result"})

	exitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "early_exits_total",
		Help:      "Instances that exited before the settle delay elapsed",
	})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "terminations_total",
		Help:      "Processes terminated by name-based sweeps, by result",
	}, []string{"result"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "batches_total",
		Help:      "Completed start batches by outcome",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "torfleet",
		Subsystem: "fleet",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a start batch including the settle delay",
		Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 7.5, 10, 15, 30, 60},
	})
)

// SetInstancesLive sets the live instance gauge.
func SetInstancesLive(n int) {
	instancesLive.Set(float64(n))
}

// RecordLaunch counts one launch attempt.
func RecordLaunch(result string) {
	launchesTotal.WithLabelValues(result).Inc()
}

// RecordEarlyExits counts instances pruned after the settle delay.
func RecordEarlyExits(n int) {
	exitsTotal.Add(float64(n))
}

// RecordTerminations counts sweep results.
func RecordTerminations(killed, failed int) {
	terminationsTotal.WithLabelValues("killed").Add(float64(killed))
	terminationsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordBatch counts a finished batch and observes its duration.
func RecordBatch(outcome string, d time.Duration) {
	batchesTotal.WithLabelValues(outcome).Inc()
	batchDuration.Observe(d.Seconds())
}
