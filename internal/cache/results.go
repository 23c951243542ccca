package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/blogpulse/blogpulse/internal/metrics"
	"github.com/blogpulse/blogpulse/internal/model"
)

const (
	// resultKeyPrefix namespaces analytics result keys.
	resultKeyPrefix = "analytics:"

	// ResultTTL is the fixed TTL for cached aggregation results. There is
	// no explicit invalidation path; staleness is bounded by this window.
	ResultTTL = 15 * time.Minute
)

// ResultCache provides get-or-compute caching for aggregation results.
// Backend failures never fail a request: a failed read is a miss and a
// failed write is logged and ignored.
type ResultCache struct {
	backend Backend
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewResultCache creates a ResultCache on the given backend.
func NewResultCache(backend Backend, logger *slog.Logger, recorder metrics.Recorder) *ResultCache {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ResultCache{
		backend: backend,
		logger:  logger.With("component", "cache.results"),
		metrics: recorder,
	}
}

// ResultKey derives the cache key for an operation and its canonical
// parameters. Canonicalization happens upstream (internal/filter), so two
// logically identical requests always hash to the same key.
func ResultKey(operation string, canonicalParams []byte) string {
	sum := md5.Sum(canonicalParams)
	return resultKeyPrefix + operation + ":" + hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached result for (operation, canonicalParams) or
// runs compute, caching its result best-effort.
func (rc *ResultCache) GetOrCompute(
	ctx context.Context,
	operation string,
	canonicalParams []byte,
	compute func(ctx context.Context) ([]model.Point, error),
) ([]model.Point, error) {
	key := ResultKey(operation, canonicalParams)

	data, err := rc.backend.Get(ctx, key)
	if err == nil {
		var points []model.Point
		if jsonErr := json.Unmarshal(data, &points); jsonErr == nil {
			rc.metrics.IncResultCacheHit(operation)
			return points, nil
		}
		// Corrupted entry - fall through to recompute
		rc.logger.Warn("corrupted cache entry", "key", key)
	} else if !errors.Is(err, ErrCacheMiss) {
		// Backend unavailability must not fail the request
		rc.logger.Warn("cache read failed", "key", key, "error", err)
	}
	rc.metrics.IncResultCacheMiss(operation)

	points, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(points); jsonErr == nil {
		if setErr := rc.backend.Set(ctx, key, data, ResultTTL); setErr != nil {
			rc.logger.Warn("cache write failed", "key", key, "error", setErr)
		}
	}

	return points, nil
}
