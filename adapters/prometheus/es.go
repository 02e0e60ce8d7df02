package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/core/metrics"
)

// ESMetrics implements es.ESMetrics.
type ESMetrics struct {
	storeLoadDuration   *prometheus.HistogramVec
	storeAppendDuration *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec

	repoLoadDuration     *prometheus.HistogramVec
	repoSaveDuration     *prometheus.HistogramVec
	concurrencyConflicts *prometheus.CounterVec

	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec
	snapshotFallbacks    *prometheus.CounterVec

	publishFailures *prometheus.CounterVec

	projectorEventDuration *prometheus.HistogramVec
	projectorEvents        *prometheus.CounterVec
	projectorLag           *prometheus.GaugeVec
}

func NewESMetrics(reg prometheus.Registerer) *ESMetrics {
	m := &ESMetrics{
		storeLoadDuration:   histogram("store_load_duration_seconds", "Event store load latency in seconds", "aggregate_type"),
		storeAppendDuration: histogram("store_append_duration_seconds", "Event store append latency in seconds", "aggregate_type"),
		eventsAppended:      counter("events_appended_total", "Total number of events appended", "aggregate_type"),

		repoLoadDuration:     histogram("repo_load_duration_seconds", "Repository load latency in seconds", "aggregate_type"),
		repoSaveDuration:     histogram("repo_save_duration_seconds", "Repository save latency in seconds", "aggregate_type"),
		concurrencyConflicts: counter("concurrency_conflicts_total", "Total number of optimistic concurrency failures", "aggregate_type"),

		snapshotLoadDuration: histogram("snapshot_load_duration_seconds", "Snapshot load latency in seconds", "aggregate_type"),
		snapshotSaveDuration: histogram("snapshot_save_duration_seconds", "Snapshot save latency in seconds", "aggregate_type"),
		snapshotFallbacks:    counter("snapshot_fallbacks_total", "Snapshots ignored in favour of a full replay", "aggregate_type", "reason"),

		publishFailures: counter("publish_failures_total", "Committed events the publisher could not forward", "aggregate_type"),

		projectorEventDuration: histogram("projector_event_duration_seconds", "Projector handling time in seconds", "projector"),
		projectorEvents:        counter("projector_events_total", "Events seen by projectors", "projector", "event_type", "outcome"),
		projectorLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projector_lag",
			Help:      "Global sequences a projector is behind the store",
		}, []string{"projector"}),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.repoLoadDuration,
		m.repoSaveDuration,
		m.concurrencyConflicts,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
		m.snapshotFallbacks,
		m.publishFailures,
		m.projectorEventDuration,
		m.projectorEvents,
		m.projectorLag,
	)
	return m
}

func (m *ESMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *ESMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.repoLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.repoSaveDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) SnapshotFallback(aggType string, reason string) {
	m.snapshotFallbacks.WithLabelValues(aggType, reason).Inc()
}

func (m *ESMetrics) PublishFailed(aggType string) {
	m.publishFailures.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) ProjectorEventDuration(projector string) metrics.Timer {
	return newTimer(m.projectorEventDuration.WithLabelValues(projector))
}

func (m *ESMetrics) ProjectorEvent(projector string, eventType string, outcome string) {
	m.projectorEvents.WithLabelValues(projector, eventType, outcome).Inc()
}

func (m *ESMetrics) ProjectorLag(projector string, lag int64) {
	m.projectorLag.WithLabelValues(projector).Set(float64(lag))
}

var _ es.ESMetrics = (*ESMetrics)(nil)
