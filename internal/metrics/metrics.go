// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Analytics query metrics
	IncResultCacheHit(operation string)
	IncResultCacheMiss(operation string)
	ObserveQueryDuration(operation string, duration time.Duration)

	// Ingestion pipeline metrics
	IncViewEventPublished(status string) // status: "success" or "dropped"
	IncViewEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveIngestBatchSize(size int)
	SetIngestQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
