// Package prometheus reports event store, repository, snapshot and projector
// metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Broccode/acci-eaf-sub010/core/metrics"
)

const namespace = "eafes"

func newTimer(h prometheus.Observer) metrics.Timer {
	return metrics.NewTimer(func(d time.Duration) { h.Observe(d.Seconds()) })
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   defaultBuckets,
	}, labels)
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}
