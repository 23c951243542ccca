package source

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/model"
)

// MemorySource is an in-memory EventSource and SummarySource backed by
// slices. It is used by tests and by the seedable development mode; the
// predicate semantics are the reference the SQL implementations are checked
// against.
type MemorySource struct {
	mu        sync.RWMutex
	events    []model.Event
	summaries []model.DailySummary
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// AddEvents appends raw events.
func (m *MemorySource) AddEvents(events ...model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

// AddSummaries appends daily summary rows.
func (m *MemorySource) AddSummaries(rows ...model.DailySummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, rows...)
}

// RebuildSummaries replaces all summary rows with a rollup computed from the
// stored events, grouped by (date, country, author). Mirrors the contract of
// the external rollup job.
func (m *MemorySource) RebuildSummaries() {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct {
		date    string
		country string
		author  string
	}
	views := make(map[key]int64)
	blogs := make(map[key]map[int64]bool)

	for _, e := range m.events {
		day := BucketDay.Truncate(e.ViewedAt)
		k := key{day.Format("2006-01-02"), e.CountryCode, e.AuthorUsername}
		views[k]++
		if blogs[k] == nil {
			blogs[k] = make(map[int64]bool)
		}
		blogs[k][e.BlogID] = true
	}

	m.summaries = m.summaries[:0]
	for k, total := range views {
		day, _ := time.Parse("2006-01-02", k.date)
		m.summaries = append(m.summaries, model.DailySummary{
			Date:           day.UTC(),
			CountryCode:    k.country,
			AuthorUsername: k.author,
			TotalViews:     total,
			UniqueBlogs:    int64(len(blogs[k])),
		})
	}
}

// eventRecord adapts a model.Event to filter.Record.
type eventRecord struct{ e model.Event }

func (r eventRecord) Field(name string) (any, bool) {
	switch name {
	case filter.FieldBlogID:
		return r.e.BlogID, true
	case filter.FieldBlogTitle:
		return r.e.BlogTitle, true
	case filter.FieldAuthorUsername:
		return r.e.AuthorUsername, true
	case filter.FieldCountryCode:
		return r.e.CountryCode, true
	case filter.FieldViewerID:
		return r.e.ViewerID, true
	case filter.FieldTimestamp:
		return r.e.ViewedAt, true
	}
	return nil, false
}

// summaryRecord adapts a model.DailySummary to filter.Record. Blog-level
// fields are not present on summaries.
type summaryRecord struct{ s model.DailySummary }

func (r summaryRecord) Field(name string) (any, bool) {
	switch name {
	case filter.FieldAuthorUsername:
		return r.s.AuthorUsername, true
	case filter.FieldCountryCode:
		return r.s.CountryCode, true
	case filter.FieldTimestamp:
		return r.s.Date, true
	}
	return nil, false
}

func (m *MemorySource) matching(pred filter.Predicate) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Event
	for _, e := range m.events {
		ok, err := filter.Match(pred, eventRecord{e})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func dimensionValue(e model.Event, dim Dimension) string {
	switch dim {
	case DimCountryCode:
		return e.CountryCode
	case DimAuthorUsername:
		return e.AuthorUsername
	case DimBlogTitle:
		return e.BlogTitle
	default: // DimBlogID
		return strconv.FormatInt(e.BlogID, 10)
	}
}

// Count implements EventSource.
func (m *MemorySource) Count(ctx context.Context, pred filter.Predicate) (int64, error) {
	events, err := m.matching(pred)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// CountDistinct implements EventSource.
func (m *MemorySource) CountDistinct(ctx context.Context, pred filter.Predicate, dim Dimension) (int64, error) {
	if !dim.Valid() {
		return 0, ErrInvalidDimension
	}
	events, err := m.matching(pred)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	for _, e := range events {
		seen[dimensionValue(e, dim)] = true
	}
	return int64(len(seen)), nil
}

// GroupBy implements EventSource.
func (m *MemorySource) GroupBy(ctx context.Context, pred filter.Predicate, groupDim, distinctDim Dimension) ([]GroupRow, error) {
	if !groupDim.ValidGroupKey() || !distinctDim.Valid() {
		return nil, ErrInvalidDimension
	}
	events, err := m.matching(pred)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	distinct := make(map[string]map[string]bool)
	for _, e := range events {
		key := dimensionValue(e, groupDim)
		counts[key]++
		if distinct[key] == nil {
			distinct[key] = make(map[string]bool)
		}
		distinct[key][dimensionValue(e, distinctDim)] = true
	}

	rows := make([]GroupRow, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, GroupRow{Key: key, Count: count, Distinct: int64(len(distinct[key]))})
	}
	return rows, nil
}

// TimeBucketed implements EventSource.
func (m *MemorySource) TimeBucketed(ctx context.Context, pred filter.Predicate, bucket Bucket) ([]BucketRow, error) {
	events, err := m.matching(pred)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64)
	blogs := make(map[int64]map[int64]bool)
	for _, e := range events {
		start := bucket.Truncate(e.ViewedAt).Unix()
		counts[start]++
		if blogs[start] == nil {
			blogs[start] = make(map[int64]bool)
		}
		blogs[start][e.BlogID] = true
	}

	rows := make([]BucketRow, 0, len(counts))
	for start, count := range counts {
		rows = append(rows, BucketRow{
			Start:         time.Unix(start, 0).UTC(),
			Count:         count,
			DistinctBlogs: int64(len(blogs[start])),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Start.Before(rows[j].Start) })
	return rows, nil
}

// MinMaxTimestamp implements EventSource.
func (m *MemorySource) MinMaxTimestamp(ctx context.Context, pred filter.Predicate) (*TimeRange, error) {
	events, err := m.matching(pred)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	tr := TimeRange{Min: events[0].ViewedAt, Max: events[0].ViewedAt}
	for _, e := range events[1:] {
		if e.ViewedAt.Before(tr.Min) {
			tr.Min = e.ViewedAt
		}
		if e.ViewedAt.After(tr.Max) {
			tr.Max = e.ViewedAt
		}
	}
	return &tr, nil
}

// GroupBySummary implements SummarySource.
func (m *MemorySource) GroupBySummary(ctx context.Context, pred filter.Predicate, dim Dimension) ([]SummaryRow, error) {
	if dim != DimCountryCode && dim != DimAuthorUsername {
		return nil, ErrInvalidDimension
	}
	pred = TruncateDates(pred)

	m.mu.RLock()
	defer m.mu.RUnlock()

	type agg struct {
		blogs int64
		views int64
	}
	groups := make(map[string]*agg)
	for _, s := range m.summaries {
		ok, err := filter.Match(pred, summaryRecord{s})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		key := s.CountryCode
		if dim == DimAuthorUsername {
			key = s.AuthorUsername
		}
		if groups[key] == nil {
			groups[key] = &agg{}
		}
		groups[key].blogs += s.UniqueBlogs
		groups[key].views += s.TotalViews
	}

	rows := make([]SummaryRow, 0, len(groups))
	for key, a := range groups {
		rows = append(rows, SummaryRow{Key: key, UniqueBlogs: a.blogs, TotalViews: a.views})
	}
	return rows, nil
}
