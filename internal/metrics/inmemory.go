package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsReceivedHTTP   uint64
	EventsReceivedStream uint64
	EventsDropped        uint64
	FilterErrors         uint64

	FlushesSucceeded     uint64
	FlushesFailed        uint64
	FlushesSkipped       uint64
	FlushDurationCount   uint64
	FlushDurationTotalNs int64
	FlushedItems         uint64

	StreamMessagesProcessed    uint64
	StreamMessagesFailed       uint64
	StreamMessagesDeadLettered uint64
	StreamQueueDepth           int64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and the tests.
type InMemoryRecorder struct {
	eventsReceivedHTTP   uint64
	eventsReceivedStream uint64
	eventsDropped        uint64
	filterErrors         uint64

	flushesSucceeded     uint64
	flushesFailed        uint64
	flushesSkipped       uint64
	flushDurationCount   uint64
	flushDurationTotalNs int64
	flushedItems         uint64

	streamProcessed    uint64
	streamFailed       uint64
	streamDeadLettered uint64
	streamQueueDepth   int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		EventsReceivedHTTP:         atomic.LoadUint64(&m.eventsReceivedHTTP),
		EventsReceivedStream:       atomic.LoadUint64(&m.eventsReceivedStream),
		EventsDropped:              atomic.LoadUint64(&m.eventsDropped),
		FilterErrors:               atomic.LoadUint64(&m.filterErrors),
		FlushesSucceeded:           atomic.LoadUint64(&m.flushesSucceeded),
		FlushesFailed:              atomic.LoadUint64(&m.flushesFailed),
		FlushesSkipped:             atomic.LoadUint64(&m.flushesSkipped),
		FlushDurationCount:         atomic.LoadUint64(&m.flushDurationCount),
		FlushDurationTotalNs:       atomic.LoadInt64(&m.flushDurationTotalNs),
		FlushedItems:               atomic.LoadUint64(&m.flushedItems),
		StreamMessagesProcessed:    atomic.LoadUint64(&m.streamProcessed),
		StreamMessagesFailed:       atomic.LoadUint64(&m.streamFailed),
		StreamMessagesDeadLettered: atomic.LoadUint64(&m.streamDeadLettered),
		StreamQueueDepth:           atomic.LoadInt64(&m.streamQueueDepth),
	}
}

// IncEventReceived counts an event by intake source.
func (m *InMemoryRecorder) IncEventReceived(source string) {
	switch source {
	case "http":
		atomic.AddUint64(&m.eventsReceivedHTTP, 1)
	case "stream":
		atomic.AddUint64(&m.eventsReceivedStream, 1)
	}
}

// IncEventDropped counts an event a watcher could not queue.
func (m *InMemoryRecorder) IncEventDropped(probeID string) {
	atomic.AddUint64(&m.eventsDropped, 1)
}

// IncFilterError counts a failed filter evaluation.
func (m *InMemoryRecorder) IncFilterError() {
	atomic.AddUint64(&m.filterErrors, 1)
}

// IncFlush counts a flush by outcome.
func (m *InMemoryRecorder) IncFlush(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.flushesSucceeded, 1)
	case "failed":
		atomic.AddUint64(&m.flushesFailed, 1)
	case "skipped":
		atomic.AddUint64(&m.flushesSkipped, 1)
	}
}

// ObserveFlushDuration records how long a write took.
func (m *InMemoryRecorder) ObserveFlushDuration(duration time.Duration) {
	atomic.AddUint64(&m.flushDurationCount, 1)
	atomic.AddInt64(&m.flushDurationTotalNs, duration.Nanoseconds())
}

// ObserveFlushSize records how many documents a write carried.
func (m *InMemoryRecorder) ObserveFlushSize(size int) {
	if size > 0 {
		atomic.AddUint64(&m.flushedItems, uint64(size))
	}
}

// IncStreamMessage counts a stream message by outcome.
func (m *InMemoryRecorder) IncStreamMessage(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.streamProcessed, 1)
	case "failed":
		atomic.AddUint64(&m.streamFailed, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.streamDeadLettered, 1)
	}
}

// SetStreamQueueDepth records pending plus undelivered stream entries.
func (m *InMemoryRecorder) SetStreamQueueDepth(depth int64) {
	atomic.StoreInt64(&m.streamQueueDepth, depth)
}
