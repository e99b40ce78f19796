// Package prometheus implements synckit.MetricsCollector with Prometheus
// metrics and exposes them over HTTP.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c0deZ3R0/sitesync/synckit"
)

// Collector records sync metrics in a Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	durations    *prometheus.HistogramVec
	pushResults  *prometheus.CounterVec
	pullEntities *prometheus.CounterVec
	syncErrors   *prometheus.CounterVec
	lastSync     *prometheus.GaugeVec
}

var _ synckit.MetricsCollector = (*Collector)(nil)

// NewCollector registers the sync metrics under namespace in a new registry.
// An empty namespace defaults to "sitesync".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "sitesync"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of push cycles and pulls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		pushResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_results_total",
			Help:      "Entity push outcomes by result.",
		}, []string{"result"}),
		pullEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_entities_total",
			Help:      "Entities seen by merged pulls by outcome.",
		}, []string{"outcome"}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Sync errors by operation and type.",
		}, []string{"operation", "error_type"}),
		lastSync: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last completed push cycle or pull.",
		}, []string{"operation"}),
	}

	c.registry.MustRegister(c.durations, c.pushResults, c.pullEntities, c.syncErrors, c.lastSync)
	return c
}

func (c *Collector) RecordSyncDuration(operation string, duration time.Duration) {
	c.durations.WithLabelValues(operation).Observe(duration.Seconds())
	c.lastSync.WithLabelValues(operation).SetToCurrentTime()
}

func (c *Collector) RecordPushResults(synced, failed, stale int) {
	c.pushResults.WithLabelValues("synced").Add(float64(synced))
	c.pushResults.WithLabelValues("failed").Add(float64(failed))
	c.pushResults.WithLabelValues("stale").Add(float64(stale))
}

func (c *Collector) RecordPullResults(received, retained, dropped int) {
	c.pullEntities.WithLabelValues("received").Add(float64(received))
	c.pullEntities.WithLabelValues("retained").Add(float64(retained))
	c.pullEntities.WithLabelValues("dropped").Add(float64(dropped))
}

func (c *Collector) RecordSyncErrors(operation string, errorType string) {
	c.syncErrors.WithLabelValues(operation, errorType).Inc()
}

// Registry returns the registry the metrics are registered in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ServeHTTP exposes the metrics in the Prometheus text format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
