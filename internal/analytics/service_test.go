package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blogpulse/blogpulse/internal/cache"
	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/metrics"
	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/source"
)

var testClock = func() time.Time {
	return time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(src *source.MemorySource) (*Service, *metrics.InMemoryRecorder) {
	rec := metrics.NewInMemory()
	rc := cache.NewResultCache(cache.NewMemoryBackend(), discardLogger(), rec)
	svc := NewService(src, src, rc, discardLogger(), rec).WithClock(testClock)
	return svc, rec
}

func view(blogID int64, title, author, country string, at time.Time) model.Event {
	return model.Event{
		BlogID:         blogID,
		BlogTitle:      title,
		AuthorUsername: author,
		CountryCode:    country,
		ViewedAt:       at,
	}
}

func TestGrouped_ByCountry(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	// Two US views of the same blog, one UK view of another.
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", at),
		view(1, "Go Patterns", "alice", "US", at.Add(time.Hour)),
		view(2, "SQL Deep Dive", "bob", "UK", at),
	)
	svc, _ := newTestService(src)

	points, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Grouped: %v", err)
	}

	want := []model.Point{
		{X: "US", Y: 1, Z: 2},
		{X: "UK", Y: 1, Z: 1},
	}
	assertPoints(t, points, want)
}

func TestGrouped_InvalidObjectType(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(source.NewMemorySource())
	if _, err := svc.Grouped(context.Background(), "blog", filter.FlatFilter{}); !errors.Is(err, ErrInvalidObjectType) {
		t.Fatalf("err = %v, want ErrInvalidObjectType", err)
	}
	if _, err := svc.FastGrouped(context.Background(), "", filter.FlatFilter{}); !errors.Is(err, ErrInvalidObjectType) {
		t.Fatalf("fast err = %v, want ErrInvalidObjectType", err)
	}
}

func TestGrouped_ExcludeUnknownCountryIsNoop(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", at),
		view(2, "SQL Deep Dive", "bob", "UK", at),
	)
	svc, _ := newTestService(src)

	base, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Grouped: %v", err)
	}
	excluded, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{
		ExcludeCountryCodes: []string{"XX"},
	})
	if err != nil {
		t.Fatalf("Grouped with exclusion: %v", err)
	}
	assertPoints(t, excluded, base)
}

func TestTop_LimitAndOrder(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	// 15 blogs; blog i receives i views.
	for i := 1; i <= 15; i++ {
		for v := 0; v < i; v++ {
			src.AddEvents(view(int64(i), fmt.Sprintf("blog-%02d", i), "alice", "US", at))
		}
	}
	svc, _ := newTestService(src)

	points, err := svc.Top(context.Background(), TopBlog, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Top: %v", err)
	}

	if len(points) != topLimit {
		t.Fatalf("len = %d, want %d", len(points), topLimit)
	}
	if points[0].X != "blog-15" || points[0].Y != 15 {
		t.Errorf("top row = %+v, want blog-15 with 15 views", points[0])
	}
	for i := 1; i < len(points); i++ {
		if points[i].Y > points[i-1].Y {
			t.Errorf("rows not sorted by views descending at %d: %+v", i, points)
		}
	}
	// Least-viewed 5 blogs must have been truncated.
	if points[len(points)-1].Y != 6 {
		t.Errorf("last row views = %d, want 6", points[len(points)-1].Y)
	}
}

func TestTop_DistinctMetricPerType(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", at),
		view(1, "Go Patterns", "alice", "UK", at),
		view(2, "SQL Deep Dive", "alice", "US", at),
	)
	svc, _ := newTestService(src)

	blogs, err := svc.Top(context.Background(), TopBlog, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Top blog: %v", err)
	}
	// Go Patterns: 2 views from 2 countries.
	if blogs[0].X != "Go Patterns" || blogs[0].Y != 2 || blogs[0].Z != 2 {
		t.Errorf("blog row = %+v, want {Go Patterns 2 2}", blogs[0])
	}

	users, err := svc.Top(context.Background(), TopUser, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Top user: %v", err)
	}
	// alice: 3 views across 2 distinct blogs.
	if users[0].X != "alice" || users[0].Y != 3 || users[0].Z != 2 {
		t.Errorf("user row = %+v, want {alice 3 2}", users[0])
	}
}

func TestTop_InvalidTopType(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(source.NewMemorySource())
	if _, err := svc.Top(context.Background(), "views", filter.FlatFilter{}); !errors.Is(err, ErrInvalidTopType) {
		t.Fatalf("err = %v, want ErrInvalidTopType", err)
	}
}

func TestPerformance_DailyGrowth(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	day := func(d int) time.Time { return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC) }
	// 2 views on the 16th, 3 on the 17th, 1 on the 18th.
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", day(16)),
		view(2, "SQL Deep Dive", "bob", "US", day(16)),
		view(1, "Go Patterns", "alice", "US", day(17)),
		view(1, "Go Patterns", "alice", "UK", day(17)),
		view(2, "SQL Deep Dive", "bob", "US", day(17)),
		view(1, "Go Patterns", "alice", "US", day(18)),
	)
	svc, _ := newTestService(src)

	points, err := svc.Performance(context.Background(), filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}

	want := []model.Point{
		{X: "2025-06-16 (2 blogs)", Y: 2, Z: 0},
		{X: "2025-06-17 (2 blogs)", Y: 3, Z: 50},
		{X: "2025-06-18 (1 blogs)", Y: 1, Z: -66.67},
	}
	assertPoints(t, points, want)
}

func TestPerformance_Empty(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(source.NewMemorySource())
	points, err := svc.Performance(context.Background(), filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("points = %v, want empty", points)
	}
}

func TestGrowthSeries(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	rows := []source.BucketRow{
		{Start: start, Count: 100, DistinctBlogs: 4},
		{Start: start.AddDate(0, 0, 1), Count: 150, DistinctBlogs: 4},
		{Start: start.AddDate(0, 0, 2), Count: 0, DistinctBlogs: 0},
		{Start: start.AddDate(0, 0, 3), Count: 30, DistinctBlogs: 1},
	}

	points := growthSeries(rows)
	wantGrowth := []float64{0, 50, -100, 0}
	for i, w := range wantGrowth {
		if points[i].Z != w {
			t.Errorf("growth[%d] = %v, want %v", i, points[i].Z, w)
		}
	}
}

func TestSelectBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		span time.Duration
		want source.Bucket
	}{
		{24 * time.Hour, source.BucketDay},
		{30 * 24 * time.Hour, source.BucketDay},
		{31 * 24 * time.Hour, source.BucketWeek},
		{365 * 24 * time.Hour, source.BucketWeek},
		{400 * 24 * time.Hour, source.BucketMonth},
	}
	for _, tt := range tests {
		if got := selectBucket(tt.span); got != tt.want {
			t.Errorf("selectBucket(%v) = %v, want %v", tt.span, got, tt.want)
		}
	}
}

func TestFastGrouped_MatchesGroupedTotals(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	day := func(d int) time.Time { return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC) }
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", day(16)),
		view(1, "Go Patterns", "alice", "US", day(17)),
		view(2, "SQL Deep Dive", "bob", "UK", day(16)),
		view(3, "Testing in Go", "alice", "US", day(17)),
	)
	src.RebuildSummaries()
	svc, _ := newTestService(src)

	slow, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Grouped: %v", err)
	}
	fast, err := svc.FastGrouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("FastGrouped: %v", err)
	}

	// Totals (x, z) agree between the raw and summary paths.
	if len(fast) != len(slow) {
		t.Fatalf("len fast = %d, len slow = %d", len(fast), len(slow))
	}
	for i := range slow {
		if fast[i].X != slow[i].X || fast[i].Z != slow[i].Z {
			t.Errorf("row %d: fast = %+v, slow = %+v", i, fast[i], slow[i])
		}
	}
}

func TestFastGrouped_IgnoresBlogIDFilter(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", at),
		view(2, "SQL Deep Dive", "bob", "UK", at),
	)
	src.RebuildSummaries()
	svc, _ := newTestService(src)

	// Summary rows have no blog column; a blog_id filter is a no-op on the
	// fast path rather than an error.
	base, err := svc.FastGrouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("FastGrouped: %v", err)
	}
	filtered, err := svc.FastGrouped(context.Background(), ObjectCountry, filter.FlatFilter{BlogID: 1})
	if err != nil {
		t.Fatalf("FastGrouped with blog_id: %v", err)
	}
	assertPoints(t, filtered, base)
}

func TestCountEvents(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	at := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	src.AddEvents(
		view(1, "Go Patterns", "alice", "US", at),
		view(1, "Go Patterns", "alice", "UK", at),
		view(2, "SQL Deep Dive", "bob", "US", at),
	)
	svc, _ := newTestService(src)

	expr := []byte(`{"operator": "and", "conditions": [{"field": "country.code", "op": "eq", "value": "US"}]}`)
	count, err := svc.CountEvents(context.Background(), expr)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestCountEvents_RejectsDisallowedField(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(source.NewMemorySource())
	expr := []byte(`{"field": "password", "op": "eq", "value": "x"}`)
	if _, err := svc.CountEvents(context.Background(), expr); !errors.Is(err, filter.ErrFieldNotAllowed) {
		t.Fatalf("err = %v, want ErrFieldNotAllowed", err)
	}
}

func TestGrouped_SecondCallHitsCache(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	src.AddEvents(view(1, "Go Patterns", "alice", "US", time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)))
	svc, rec := newTestService(src)

	for i := 0; i < 2; i++ {
		if _, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	snap := rec.Snapshot()
	if snap.ResultCacheMisses["grouped"] != 1 || snap.ResultCacheHits["grouped"] != 1 {
		t.Fatalf("misses = %d hits = %d, want 1 and 1",
			snap.ResultCacheMisses["grouped"], snap.ResultCacheHits["grouped"])
	}
}

// failingBackend simulates an unavailable cache.
type failingBackend struct{}

func (failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestGrouped_CacheFailureFallsThrough(t *testing.T) {
	t.Parallel()

	src := source.NewMemorySource()
	src.AddEvents(view(1, "Go Patterns", "alice", "US", time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)))

	rc := cache.NewResultCache(failingBackend{}, discardLogger(), nil)
	svc := NewService(src, src, rc, discardLogger(), nil).WithClock(testClock)

	points, err := svc.Grouped(context.Background(), ObjectCountry, filter.FlatFilter{})
	if err != nil {
		t.Fatalf("Grouped: %v", err)
	}
	if len(points) != 1 || points[0].X != "US" {
		t.Fatalf("points = %+v, want single US row", points)
	}
}

func assertPoints(t *testing.T, got, want []model.Point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%+v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
