package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ResultCacheHits     map[string]uint64
	ResultCacheMisses   map[string]uint64
	QueryCount          map[string]uint64
	QueryTotalNs        map[string]int64
	ViewEventsPublished map[string]uint64
	ViewEventsProcessed map[string]uint64
	IngestBatches       uint64
	IngestQueueDepth    int64
}

// InMemoryRecorder stores metrics in memory for tests and the admin
// snapshot endpoint.
type InMemoryRecorder struct {
	mu                  sync.Mutex
	resultCacheHits     map[string]uint64
	resultCacheMisses   map[string]uint64
	queryCount          map[string]uint64
	queryTotalNs        map[string]int64
	viewEventsPublished map[string]uint64
	viewEventsProcessed map[string]uint64
	ingestBatches       uint64
	ingestQueueDepth    int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		resultCacheHits:     make(map[string]uint64),
		resultCacheMisses:   make(map[string]uint64),
		queryCount:          make(map[string]uint64),
		queryTotalNs:        make(map[string]int64),
		viewEventsPublished: make(map[string]uint64),
		viewEventsProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		ResultCacheHits:     copyCounters(m.resultCacheHits),
		ResultCacheMisses:   copyCounters(m.resultCacheMisses),
		QueryCount:          copyCounters(m.queryCount),
		QueryTotalNs:        copyInt64(m.queryTotalNs),
		ViewEventsPublished: copyCounters(m.viewEventsPublished),
		ViewEventsProcessed: copyCounters(m.viewEventsProcessed),
		IngestBatches:       m.ingestBatches,
		IngestQueueDepth:    m.ingestQueueDepth,
	}
}

// IncResultCacheHit increments the cache hit counter for an operation.
func (m *InMemoryRecorder) IncResultCacheHit(operation string) {
	m.mu.Lock()
	m.resultCacheHits[operation]++
	m.mu.Unlock()
}

// IncResultCacheMiss increments the cache miss counter for an operation.
func (m *InMemoryRecorder) IncResultCacheMiss(operation string) {
	m.mu.Lock()
	m.resultCacheMisses[operation]++
	m.mu.Unlock()
}

// ObserveQueryDuration records an aggregation query duration.
func (m *InMemoryRecorder) ObserveQueryDuration(operation string, duration time.Duration) {
	m.mu.Lock()
	m.queryCount[operation]++
	m.queryTotalNs[operation] += duration.Nanoseconds()
	m.mu.Unlock()
}

// IncViewEventPublished increments the publish counter for a status.
func (m *InMemoryRecorder) IncViewEventPublished(status string) {
	m.mu.Lock()
	m.viewEventsPublished[status]++
	m.mu.Unlock()
}

// IncViewEventProcessed increments the processed counter for a status.
func (m *InMemoryRecorder) IncViewEventProcessed(status string) {
	m.mu.Lock()
	m.viewEventsProcessed[status]++
	m.mu.Unlock()
}

// ObserveIngestBatchSize records one processed batch.
func (m *InMemoryRecorder) ObserveIngestBatchSize(size int) {
	m.mu.Lock()
	m.ingestBatches++
	m.mu.Unlock()
}

// SetIngestQueueDepth records the current stream backlog.
func (m *InMemoryRecorder) SetIngestQueueDepth(depth int64) {
	m.mu.Lock()
	m.ingestQueueDepth = depth
	m.mu.Unlock()
}

func copyCounters(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyInt64(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
