package es

import "github.com/Broccode/acci-eaf-sub010/core/metrics"

// Projection outcomes reported through ESMetrics.ProjectorEvent.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ESMetrics defines the metrics interface for the event sourcing core.
// All methods return Timer or increment counters; implementations should
// be thread-safe.
type ESMetrics interface {
	// Store operations
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)

	// Repository operations
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer
	ConcurrencyConflict(aggType string)

	// Snapshots
	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer
	SnapshotFallback(aggType string, reason string)

	// Publishing after commit
	PublishFailed(aggType string)

	// Projectors
	ProjectorEventDuration(projector string) metrics.Timer
	ProjectorEvent(projector string, eventType string, outcome string)
	ProjectorLag(projector string, lag int64)
}

// nopESMetrics is a no-op implementation of ESMetrics.
type nopESMetrics struct{}

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}

func (nopESMetrics) RepoLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) RepoSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) ConcurrencyConflict(string)            {}

func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotFallback(string, string)           {}

func (nopESMetrics) PublishFailed(string) {}

func (nopESMetrics) ProjectorEventDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) ProjectorEvent(string, string, string)       {}
func (nopESMetrics) ProjectorLag(string, int64)                  {}

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }

// ESMetricsOption sets the metrics for ES components.
type ESMetricsOption struct{ m ESMetrics }

// WithMetrics sets the metrics implementation for ES components.
func WithMetrics(m ESMetrics) ESMetricsOption { return ESMetricsOption{m: m} }

func (o ESMetricsOption) get() ESMetrics {
	if o.m == nil {
		return NopESMetrics()
	}
	return o.m
}

func (o ESMetricsOption) applyToInMemoryStore(s *InMemoryStore) { s.metrics = o.get() }
func (o ESMetricsOption) applyToRepository(r *repoOpts)         { r.metrics = o.get() }
func (o ESMetricsOption) applyToProjector(p *projectorOpts)     { p.metrics = o.get() }
func (o ESMetricsOption) applyToTailer(t *tailerOpts)           { t.metrics = o.get() }
