// Package source defines the capability interfaces over the two backing
// datasets: raw page-view events and pre-aggregated daily summaries. The
// aggregation planner depends only on these interfaces; implementations live
// in internal/repository (Postgres) and in this package (in-memory).
package source

import (
	"context"
	"errors"
	"time"

	"github.com/blogpulse/blogpulse/internal/filter"
)

// ErrInvalidDimension indicates the planner requested a grouping or distinct
// dimension the source does not support. This is a programming-contract
// violation, not user input, and surfaces as a server error.
var ErrInvalidDimension = errors.New("invalid aggregation dimension")

// Dimension is a field usable as an aggregation key.
type Dimension string

// Supported dimensions. The first three are valid grouping keys; BlogID is
// additionally valid as a distinct-count dimension.
const (
	DimCountryCode    Dimension = "country_code"
	DimAuthorUsername Dimension = "author_username"
	DimBlogTitle      Dimension = "blog_title"
	DimBlogID         Dimension = "blog_id"
)

// ValidGroupKey reports whether the dimension may be grouped on.
func (d Dimension) ValidGroupKey() bool {
	switch d {
	case DimCountryCode, DimAuthorUsername, DimBlogTitle:
		return true
	}
	return false
}

// Valid reports whether the dimension exists at all.
func (d Dimension) Valid() bool {
	return d.ValidGroupKey() || d == DimBlogID
}

// Bucket is a fixed-width time interval for time-series grouping.
type Bucket string

// Supported bucket widths.
const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Truncate returns the bucket start containing t (UTC). Weeks start on
// Monday, matching date_trunc('week', ...) in Postgres.
func (b Bucket) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch b {
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case BucketWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// GroupRow is one aggregation group from the raw event dataset.
type GroupRow struct {
	Key      string
	Count    int64 // matching events in the group
	Distinct int64 // distinct values of the requested distinct dimension
}

// BucketRow is one time bucket from the raw event dataset.
type BucketRow struct {
	Start         time.Time
	Count         int64
	DistinctBlogs int64
}

// SummaryRow is one aggregation group from the daily summary dataset.
type SummaryRow struct {
	Key         string
	UniqueBlogs int64 // sum of per-day distinct blog counts
	TotalViews  int64
}

// TimeRange is the inclusive timestamp span of a result set.
type TimeRange struct {
	Min time.Time
	Max time.Time
}

// EventSource answers aggregation queries over raw page-view events.
type EventSource interface {
	// Count returns the number of events matching the predicate.
	Count(ctx context.Context, pred filter.Predicate) (int64, error)

	// CountDistinct returns the number of distinct dim values among
	// matching events.
	CountDistinct(ctx context.Context, pred filter.Predicate, dim Dimension) (int64, error)

	// GroupBy aggregates matching events by groupDim, counting events and
	// distinct distinctDim values per group. Result order is unspecified;
	// the planner sorts.
	GroupBy(ctx context.Context, pred filter.Predicate, groupDim, distinctDim Dimension) ([]GroupRow, error)

	// TimeBucketed aggregates matching events into fixed-width buckets,
	// returned in chronological order.
	TimeBucketed(ctx context.Context, pred filter.Predicate, bucket Bucket) ([]BucketRow, error)

	// MinMaxTimestamp returns the timestamp span of matching events, or nil
	// when no events match.
	MinMaxTimestamp(ctx context.Context, pred filter.Predicate) (*TimeRange, error)
}

// SummarySource answers aggregation queries over daily summary rows. Time
// bounds in the predicate are interpreted with date-only semantics.
type SummarySource interface {
	GroupBySummary(ctx context.Context, pred filter.Predicate, dim Dimension) ([]SummaryRow, error)
}

// TruncateDates rewrites timestamp bounds in a predicate to bare UTC dates.
// Summary sources apply it so datetime bounds compare correctly against
// date-keyed rows.
func TruncateDates(pred filter.Predicate) filter.Predicate {
	switch p := pred.(type) {
	case filter.Condition:
		if canonical, ok := filter.CanonicalField(p.Field); ok && canonical == filter.FieldTimestamp {
			if t, ok := p.Value.(time.Time); ok {
				t = t.UTC()
				p.Value = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
		}
		return p
	case filter.Group:
		children := make([]filter.Predicate, len(p.Children))
		for i, child := range p.Children {
			children[i] = TruncateDates(child)
		}
		return filter.Group{Comb: p.Comb, Children: children}
	default:
		return pred
	}
}
