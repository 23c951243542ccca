package source

import (
	"context"
	"testing"
	"time"

	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/model"
)

func testEvents() []model.Event {
	at := func(day int) time.Time {
		return time.Date(2025, 6, day, 10, 0, 0, 0, time.UTC)
	}
	return []model.Event{
		{BlogID: 1, BlogTitle: "Go Internals", AuthorUsername: "alice", CountryCode: "US", ViewedAt: at(1)},
		{BlogID: 1, BlogTitle: "Go Internals", AuthorUsername: "alice", CountryCode: "US", ViewedAt: at(1)},
		{BlogID: 1, BlogTitle: "Go Internals", AuthorUsername: "alice", CountryCode: "UK", ViewedAt: at(2)},
		{BlogID: 2, BlogTitle: "Postgres Tips", AuthorUsername: "bob", CountryCode: "US", ViewedAt: at(3)},
	}
}

func TestBucket_Truncate(t *testing.T) {
	t.Parallel()

	// 2025-06-18 is a Wednesday; its ISO week starts Monday 2025-06-16.
	ts := time.Date(2025, 6, 18, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		bucket Bucket
		want   time.Time
	}{
		{BucketDay, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)},
		{BucketWeek, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		{BucketMonth, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		if got := tc.bucket.Truncate(ts); !got.Equal(tc.want) {
			t.Errorf("%s.Truncate = %v, want %v", tc.bucket, got, tc.want)
		}
	}

	// Sunday belongs to the week starting the previous Monday.
	sunday := time.Date(2025, 6, 22, 3, 0, 0, 0, time.UTC)
	if got := BucketWeek.Truncate(sunday); !got.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week truncation of Sunday = %v", got)
	}
}

func TestMemorySource_GroupBy(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()
	src.AddEvents(testEvents()...)

	rows, err := src.GroupBy(context.Background(), filter.True(), DimCountryCode, DimBlogID)
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}

	byKey := make(map[string]GroupRow)
	for _, r := range rows {
		byKey[r.Key] = r
	}
	if us := byKey["US"]; us.Count != 3 || us.Distinct != 2 {
		t.Errorf("US row = %+v, want count 3 distinct 2", us)
	}
	if uk := byKey["UK"]; uk.Count != 1 || uk.Distinct != 1 {
		t.Errorf("UK row = %+v", uk)
	}
}

func TestMemorySource_GroupBy_InvalidDimension(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()
	if _, err := src.GroupBy(context.Background(), filter.True(), DimBlogID, DimCountryCode); err != ErrInvalidDimension {
		t.Errorf("grouping by blog_id should be rejected, got %v", err)
	}
	if _, err := src.GroupBy(context.Background(), filter.True(), DimCountryCode, Dimension("ip")); err != ErrInvalidDimension {
		t.Errorf("unknown distinct dimension should be rejected, got %v", err)
	}
}

func TestMemorySource_TimeBucketed(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()
	src.AddEvents(testEvents()...)

	rows, err := src.TimeBucketed(context.Background(), filter.True(), BucketDay)
	if err != nil {
		t.Fatalf("TimeBucketed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 daily buckets, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i-1].Start.Before(rows[i].Start) {
			t.Error("buckets must be chronological")
		}
	}
	if rows[0].Count != 2 || rows[0].DistinctBlogs != 1 {
		t.Errorf("first bucket = %+v", rows[0])
	}
}

func TestMemorySource_MinMaxTimestamp(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()

	tr, err := src.MinMaxTimestamp(context.Background(), filter.True())
	if err != nil {
		t.Fatalf("MinMaxTimestamp: %v", err)
	}
	if tr != nil {
		t.Errorf("empty source should yield nil range, got %+v", tr)
	}

	src.AddEvents(testEvents()...)
	tr, err = src.MinMaxTimestamp(context.Background(), filter.True())
	if err != nil {
		t.Fatalf("MinMaxTimestamp: %v", err)
	}
	if tr == nil || tr.Min.Day() != 1 || tr.Max.Day() != 3 {
		t.Errorf("unexpected range: %+v", tr)
	}
}

func TestMemorySource_SummaryRollupContract(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()
	src.AddEvents(testEvents()...)
	src.RebuildSummaries()

	rows, err := src.GroupBySummary(context.Background(), filter.True(), DimCountryCode)
	if err != nil {
		t.Fatalf("GroupBySummary: %v", err)
	}

	var total int64
	for _, r := range rows {
		total += r.TotalViews
	}
	if total != 4 {
		t.Errorf("summary views total %d, want event count 4", total)
	}
}

func TestMemorySource_SummaryDateOnlyBounds(t *testing.T) {
	t.Parallel()

	src := NewMemorySource()
	src.AddEvents(testEvents()...)
	src.RebuildSummaries()

	// A datetime upper bound inside June 3rd must still include that
	// day's summary row (date-only semantics).
	f := filter.FlatFilter{
		EndDate: timePtr(time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC)),
	}
	rows, err := src.GroupBySummary(context.Background(), f.Normalize(time.Now()), DimAuthorUsername)
	if err != nil {
		t.Fatalf("GroupBySummary: %v", err)
	}

	found := false
	for _, r := range rows {
		if r.Key == "bob" {
			found = true
		}
	}
	if !found {
		t.Error("June 3rd summary should match a datetime bound within the day")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
