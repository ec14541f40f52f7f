// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the engine.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Event intake metrics
	IncEventReceived(source string) // source: "http" or "stream"
	IncEventDropped(probeID string) // watcher queue full
	IncFilterError()

	// Flush metrics
	IncFlush(status string) // status: "success", "failed", "skipped"
	ObserveFlushDuration(duration time.Duration)
	ObserveFlushSize(size int)

	// Stream consumer metrics
	IncStreamMessage(status string) // status: "success", "failed", "dead_lettered"
	SetStreamQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
