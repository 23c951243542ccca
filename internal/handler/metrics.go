package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/blogpulse/blogpulse/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeledCounters(w, "blogpulse_result_cache_hits_total", "operation", snap.ResultCacheHits)
	writeLabeledCounters(w, "blogpulse_result_cache_misses_total", "operation", snap.ResultCacheMisses)

	for _, op := range sortedKeys(snap.QueryCount) {
		writeMetric(w, "blogpulse_query_duration_seconds_count{operation=%q} %d\n", op, snap.QueryCount[op])
		writeMetric(w, "blogpulse_query_duration_seconds_sum{operation=%q} %.6f\n", op, float64(snap.QueryTotalNs[op])/1e9)
	}

	writeLabeledCounters(w, "blogpulse_view_events_published_total", "status", snap.ViewEventsPublished)
	writeLabeledCounters(w, "blogpulse_view_events_processed_total", "status", snap.ViewEventsProcessed)

	writeMetric(w, "blogpulse_ingest_batches_total %d\n", snap.IngestBatches)
	writeMetric(w, "blogpulse_ingest_queue_depth %d\n", snap.IngestQueueDepth)
}

func writeLabeledCounters(w http.ResponseWriter, name, label string, counters map[string]uint64) {
	for _, key := range sortedKeys(counters) {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, key, counters[key])
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
