package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/source"
)

// EventRepository provides database access for page-view events. It is the
// Postgres implementation of source.EventSource.
type EventRepository struct {
	repo *Repository
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(repo *Repository) *EventRepository {
	return &EventRepository{repo: repo}
}

var _ source.EventSource = (*EventRepository)(nil)

// dimensionColumn maps an aggregation dimension to its SQL expression.
// blog_id is cast so every group key scans as text.
var dimensionColumn = map[source.Dimension]string{
	source.DimCountryCode:    "country_code",
	source.DimAuthorUsername: "author_username",
	source.DimBlogTitle:      "blog_title",
	source.DimBlogID:         "blog_id::text",
}

// BulkInsert inserts multiple view events with idempotency via ON CONFLICT DO NOTHING.
func (r *EventRepository) BulkInsert(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO view_events (
			id, event_id, blog_id, blog_title, author_username,
			country_code, viewer_id, visitor_hash, viewed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.BlogID,
			event.BlogTitle,
			event.AuthorUsername,
			nullableString(event.CountryCode),
			nullableString(event.ViewerID),
			nullableString(event.VisitorHash),
			event.ViewedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// Count returns the number of events matching the predicate.
func (r *EventRepository) Count(ctx context.Context, pred filter.Predicate) (int64, error) {
	where, args, err := compileWhere(pred, eventColumns)
	if err != nil {
		return 0, err
	}

	var count int64
	query := "SELECT COUNT(*) FROM view_events WHERE " + where
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// CountDistinct returns the number of distinct dim values among matching events.
func (r *EventRepository) CountDistinct(ctx context.Context, pred filter.Predicate, dim source.Dimension) (int64, error) {
	column, ok := dimensionColumn[dim]
	if !ok {
		return 0, source.ErrInvalidDimension
	}
	where, args, err := compileWhere(pred, eventColumns)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM view_events WHERE %s", column, where)
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count distinct %s: %w", dim, err)
	}
	return count, nil
}

// GroupBy aggregates matching events by groupDim with a per-group distinct
// count of distinctDim.
func (r *EventRepository) GroupBy(ctx context.Context, pred filter.Predicate, groupDim, distinctDim source.Dimension) ([]source.GroupRow, error) {
	if !groupDim.ValidGroupKey() {
		return nil, source.ErrInvalidDimension
	}
	groupCol := dimensionColumn[groupDim]
	distinctCol, ok := dimensionColumn[distinctDim]
	if !ok {
		return nil, source.ErrInvalidDimension
	}
	where, args, err := compileWhere(pred, eventColumns)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(%s, ''), COUNT(*), COUNT(DISTINCT %s)
		FROM view_events
		WHERE %s
		GROUP BY 1
	`, groupCol, distinctCol, where)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group events by %s: %w", groupDim, err)
	}
	defer rows.Close()

	var out []source.GroupRow
	for rows.Next() {
		var row source.GroupRow
		if err := rows.Scan(&row.Key, &row.Count, &row.Distinct); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TimeBucketed aggregates matching events into date_trunc buckets, returned
// chronologically.
func (r *EventRepository) TimeBucketed(ctx context.Context, pred filter.Predicate, bucket source.Bucket) ([]source.BucketRow, error) {
	// Bucket is a closed enum; interpolating it is safe.
	switch bucket {
	case source.BucketDay, source.BucketWeek, source.BucketMonth:
	default:
		return nil, fmt.Errorf("unsupported bucket %q", bucket)
	}
	where, args, err := compileWhere(pred, eventColumns)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', viewed_at AT TIME ZONE 'UTC'), COUNT(*), COUNT(DISTINCT blog_id)
		FROM view_events
		WHERE %s
		GROUP BY 1
		ORDER BY 1
	`, bucket, where)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket events by %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []source.BucketRow
	for rows.Next() {
		var row source.BucketRow
		if err := rows.Scan(&row.Start, &row.Count, &row.DistinctBlogs); err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}
		row.Start = row.Start.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// MinMaxTimestamp returns the viewed_at span of matching events, or nil when
// nothing matches.
func (r *EventRepository) MinMaxTimestamp(ctx context.Context, pred filter.Predicate) (*source.TimeRange, error) {
	where, args, err := compileWhere(pred, eventColumns)
	if err != nil {
		return nil, err
	}

	var min, max *time.Time
	query := "SELECT MIN(viewed_at), MAX(viewed_at) FROM view_events WHERE " + where
	if err := r.repo.pool.QueryRow(ctx, query, args...).Scan(&min, &max); err != nil {
		return nil, fmt.Errorf("event timestamp span: %w", err)
	}
	if min == nil || max == nil {
		return nil, nil
	}
	return &source.TimeRange{Min: min.UTC(), Max: max.UTC()}, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
