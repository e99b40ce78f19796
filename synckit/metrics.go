package synckit

import "time"

// MetricsCollector provides hooks for collecting sync operation metrics
type MetricsCollector interface {
	// RecordSyncDuration records how long a push or pull took
	RecordSyncDuration(operation string, duration time.Duration)

	// RecordPushResults records the outcome counts of a push cycle
	RecordPushResults(synced, failed, stale int)

	// RecordPullResults records the outcome counts of a merged pull
	RecordPullResults(received, retained, dropped int)

	// RecordSyncErrors records sync operation errors by type
	RecordSyncErrors(operation string, errorType string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSyncDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordPushResults(synced, failed, stale int)                 {}
func (n *NoOpMetricsCollector) RecordPullResults(received, retained, dropped int)           {}
func (n *NoOpMetricsCollector) RecordSyncErrors(operation string, errorType string)         {}
