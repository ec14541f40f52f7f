package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventReceived is a no-op.
func (n *NoopRecorder) IncEventReceived(source string) {}

// IncEventDropped is a no-op.
func (n *NoopRecorder) IncEventDropped(probeID string) {}

// IncFilterError is a no-op.
func (n *NoopRecorder) IncFilterError() {}

// IncFlush is a no-op.
func (n *NoopRecorder) IncFlush(status string) {}

// ObserveFlushDuration is a no-op.
func (n *NoopRecorder) ObserveFlushDuration(duration time.Duration) {}

// ObserveFlushSize is a no-op.
func (n *NoopRecorder) ObserveFlushSize(size int) {}

// IncStreamMessage is a no-op.
func (n *NoopRecorder) IncStreamMessage(status string) {}

// SetStreamQueueDepth is a no-op.
func (n *NoopRecorder) SetStreamQueueDepth(depth int64) {}
