// Package analytics implements the aggregation planner: grouped counts,
// top-N ranking and time-series growth analysis over page-view events, with
// result caching and a summary-backed fast path.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/blogpulse/blogpulse/internal/cache"
	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/metrics"
	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/source"
)

// Service errors (user input family - mapped to 400).
var (
	ErrInvalidObjectType = errors.New("invalid object type")
	ErrInvalidTopType    = errors.New("invalid top type")
)

// ObjectType selects the grouping entity of GroupedAnalytics.
type ObjectType string

// Supported object types.
const (
	ObjectCountry ObjectType = "country"
	ObjectUser    ObjectType = "user"
)

// TopType selects the ranking entity of TopAnalytics.
type TopType string

// Supported top types.
const (
	TopBlog    TopType = "blog"
	TopUser    TopType = "user"
	TopCountry TopType = "country"
)

// topLimit caps TopAnalytics output.
const topLimit = 10

// topConfig maps a top type to its grouping dimension and the dimension
// counted distinctly for the secondary (z) metric. The z semantics differ
// per type on purpose; do not unify them.
var topConfig = map[TopType]struct {
	groupDim    source.Dimension
	distinctDim source.Dimension
}{
	TopBlog:    {source.DimBlogTitle, source.DimCountryCode},
	TopUser:    {source.DimAuthorUsername, source.DimBlogID},
	TopCountry: {source.DimCountryCode, source.DimBlogID},
}

// Service is the stateless aggregation planner. All dependencies are
// injected; it is safe for concurrent use.
type Service struct {
	events    source.EventSource
	summaries source.SummarySource
	cache     *cache.ResultCache
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewService creates a Service.
func NewService(
	events source.EventSource,
	summaries source.SummarySource,
	resultCache *cache.ResultCache,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		events:    events,
		summaries: summaries,
		cache:     resultCache,
		logger:    logger.With("component", "analytics"),
		metrics:   recorder,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// groupDimension maps an object type to its grouping dimension.
func groupDimension(objectType ObjectType) (source.Dimension, error) {
	switch objectType {
	case ObjectCountry:
		return source.DimCountryCode, nil
	case ObjectUser:
		return source.DimAuthorUsername, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectType, objectType)
	}
}

// Grouped groups matching events by country or author.
// Points: x = group key, y = distinct blog count, z = total view count.
// Sorted by z descending, ties by x ascending.
func (s *Service) Grouped(ctx context.Context, objectType ObjectType, f filter.FlatFilter) ([]model.Point, error) {
	dim, err := groupDimension(objectType)
	if err != nil {
		return nil, err
	}

	params := canonicalParams(string(objectType), f)
	return s.cache.GetOrCompute(ctx, "grouped", params, func(ctx context.Context) ([]model.Point, error) {
		defer s.observe("grouped")()

		rows, err := s.events.GroupBy(ctx, f.Normalize(s.now()), dim, source.DimBlogID)
		if err != nil {
			return nil, err
		}

		points := make([]model.Point, 0, len(rows))
		for _, row := range rows {
			points = append(points, model.Point{X: row.Key, Y: row.Distinct, Z: float64(row.Count)})
		}
		sortByZDesc(points)
		return points, nil
	})
}

// Top ranks the 10 busiest blogs, authors or countries by view count.
// Points: x = group key, y = total view count, z = the per-type distinct
// metric (countries for blogs, blogs for users and countries).
// Sorted by y descending, ties by x ascending, truncated to 10 rows.
func (s *Service) Top(ctx context.Context, topType TopType, f filter.FlatFilter) ([]model.Point, error) {
	cfg, ok := topConfig[topType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopType, topType)
	}

	params := canonicalParams(string(topType), f)
	return s.cache.GetOrCompute(ctx, "top", params, func(ctx context.Context) ([]model.Point, error) {
		defer s.observe("top")()

		rows, err := s.events.GroupBy(ctx, f.Normalize(s.now()), cfg.groupDim, cfg.distinctDim)
		if err != nil {
			return nil, err
		}

		points := make([]model.Point, 0, len(rows))
		for _, row := range rows {
			points = append(points, model.Point{X: row.Key, Y: row.Count, Z: float64(row.Distinct)})
		}
		sortByYDesc(points)
		if len(points) > topLimit {
			points = points[:topLimit]
		}
		return points, nil
	})
}

// Performance produces a time series of view counts with period-over-period
// growth. Bucket width is auto-selected from the matching rows' timestamp
// span. Points: x = "<bucket date> (<N> blogs)", y = views, z = growth %.
func (s *Service) Performance(ctx context.Context, f filter.FlatFilter) ([]model.Point, error) {
	params := canonicalParams("", f)
	return s.cache.GetOrCompute(ctx, "performance", params, func(ctx context.Context) ([]model.Point, error) {
		defer s.observe("performance")()

		pred := f.Normalize(s.now())

		span, err := s.events.MinMaxTimestamp(ctx, pred)
		if err != nil {
			return nil, err
		}
		if span == nil {
			// No matching rows: zero-width range anchored at now.
			now := s.now()
			span = &source.TimeRange{Min: now, Max: now}
		}

		bucket := selectBucket(span.Max.Sub(span.Min))
		rows, err := s.events.TimeBucketed(ctx, pred, bucket)
		if err != nil {
			return nil, err
		}

		return growthSeries(rows), nil
	})
}

// FastGrouped is the summary-backed variant of Grouped. Points: x = group
// key, y = sum of per-day unique blog counts, z = sum of total views. The
// {x,z} pairs match Grouped exactly when the rollup covers the filtered
// range; y is an upper bound on Grouped's global distinct count because
// per-day distincts are summed.
func (s *Service) FastGrouped(ctx context.Context, objectType ObjectType, f filter.FlatFilter) ([]model.Point, error) {
	dim, err := groupDimension(objectType)
	if err != nil {
		return nil, err
	}

	// Summary rows carry no blog-level columns, so a blog_id filter cannot
	// narrow the fast path; it is dropped rather than rejected, before key
	// derivation so the cache key reflects the effective filter.
	f.BlogID = 0

	params := canonicalParams(string(objectType), f)
	return s.cache.GetOrCompute(ctx, "grouped_fast", params, func(ctx context.Context) ([]model.Point, error) {
		defer s.observe("grouped_fast")()

		rows, err := s.summaries.GroupBySummary(ctx, f.Normalize(s.now()), dim)
		if err != nil {
			return nil, err
		}

		points := make([]model.Point, 0, len(rows))
		for _, row := range rows {
			points = append(points, model.Point{X: row.Key, Y: row.UniqueBlogs, Z: float64(row.TotalViews)})
		}
		sortByZDesc(points)
		return points, nil
	})
}

// CountEvents evaluates a raw filter-expression payload against the event
// allow-list and returns the number of matching events.
func (s *Service) CountEvents(ctx context.Context, rawExpression []byte) (int64, error) {
	pred, err := filter.ParseExpression(rawExpression, filter.EventFields)
	if err != nil {
		return 0, err
	}

	points, err := s.cache.GetOrCompute(ctx, "count", []byte(filter.Canonical(pred)), func(ctx context.Context) ([]model.Point, error) {
		defer s.observe("count")()

		count, err := s.events.Count(ctx, pred)
		if err != nil {
			return nil, err
		}
		return []model.Point{{X: "events", Y: count}}, nil
	})
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	return points[0].Y, nil
}

// canonicalParams builds the canonical cache-key material for an operation
// variant and filter.
func canonicalParams(variant string, f filter.FlatFilter) []byte {
	canonical := f.CanonicalJSON()
	if variant == "" {
		return canonical
	}
	out := make([]byte, 0, len(variant)+1+len(canonical))
	out = append(out, variant...)
	out = append(out, ':')
	return append(out, canonical...)
}

func (s *Service) observe(operation string) func() {
	start := time.Now()
	return func() {
		s.metrics.ObserveQueryDuration(operation, time.Since(start))
	}
}

// sortByZDesc orders by z descending with ascending-x tie-break so results
// are deterministic.
func sortByZDesc(points []model.Point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Z != points[j].Z {
			return points[i].Z > points[j].Z
		}
		return points[i].X < points[j].X
	})
}

func sortByYDesc(points []model.Point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Y != points[j].Y {
			return points[i].Y > points[j].Y
		}
		return points[i].X < points[j].X
	})
}
