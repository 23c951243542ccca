package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncResultCacheHit is a no-op.
func (n *NoopRecorder) IncResultCacheHit(operation string) {}

// IncResultCacheMiss is a no-op.
func (n *NoopRecorder) IncResultCacheMiss(operation string) {}

// ObserveQueryDuration is a no-op.
func (n *NoopRecorder) ObserveQueryDuration(operation string, duration time.Duration) {}

// IncViewEventPublished is a no-op.
func (n *NoopRecorder) IncViewEventPublished(status string) {}

// IncViewEventProcessed is a no-op.
func (n *NoopRecorder) IncViewEventProcessed(status string) {}

// ObserveIngestBatchSize is a no-op.
func (n *NoopRecorder) ObserveIngestBatchSize(size int) {}

// SetIngestQueueDepth is a no-op.
func (n *NoopRecorder) SetIngestQueueDepth(depth int64) {}
