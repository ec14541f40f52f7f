package handler

import (
	"fmt"
	"net/http"

	"github.com/probeline/probeline/internal/metrics"
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
//
// GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "probeline_events_received_total{source=\"http\"} %d\n", snap.EventsReceivedHTTP)
	writeMetric(w, "probeline_events_received_total{source=\"stream\"} %d\n", snap.EventsReceivedStream)
	writeMetric(w, "probeline_watcher_events_dropped_total %d\n", snap.EventsDropped)
	writeMetric(w, "probeline_filter_errors_total %d\n", snap.FilterErrors)

	writeMetric(w, "probeline_flushes_total{status=\"success\"} %d\n", snap.FlushesSucceeded)
	writeMetric(w, "probeline_flushes_total{status=\"failed\"} %d\n", snap.FlushesFailed)
	writeMetric(w, "probeline_flushes_total{status=\"skipped\"} %d\n", snap.FlushesSkipped)
	writeMetric(w, "probeline_flush_duration_seconds_count %d\n", snap.FlushDurationCount)
	writeMetric(w, "probeline_flush_duration_seconds_sum %.6f\n", float64(snap.FlushDurationTotalNs)/1e9)
	writeMetric(w, "probeline_flushed_items_total %d\n", snap.FlushedItems)

	writeMetric(w, "probeline_stream_messages_total{status=\"success\"} %d\n", snap.StreamMessagesProcessed)
	writeMetric(w, "probeline_stream_messages_total{status=\"failed\"} %d\n", snap.StreamMessagesFailed)
	writeMetric(w, "probeline_stream_messages_total{status=\"dead_lettered\"} %d\n", snap.StreamMessagesDeadLettered)
	writeMetric(w, "probeline_stream_queue_depth %d\n", snap.StreamQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
