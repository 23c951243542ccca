package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/source"
)

// SummaryRepository provides database access for daily view summaries. It is
// the Postgres implementation of source.SummarySource and also owns the
// rollup that produces the rows.
type SummaryRepository struct {
	repo *Repository
}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(repo *Repository) *SummaryRepository {
	return &SummaryRepository{repo: repo}
}

var _ source.SummarySource = (*SummaryRepository)(nil)

// GroupBySummary aggregates summary rows by country or author, summing
// per-day unique blog counts and total views. Timestamp bounds in the
// predicate are truncated to dates before compiling.
func (r *SummaryRepository) GroupBySummary(ctx context.Context, pred filter.Predicate, dim source.Dimension) ([]source.SummaryRow, error) {
	var column string
	switch dim {
	case source.DimCountryCode:
		column = "country_code"
	case source.DimAuthorUsername:
		column = "author_username"
	default:
		return nil, source.ErrInvalidDimension
	}

	where, args, err := compileWhere(source.TruncateDates(pred), summaryColumns)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(%s, ''), SUM(unique_blogs), SUM(total_views)
		FROM daily_view_summaries
		WHERE %s
		GROUP BY 1
	`, column, where)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group summaries by %s: %w", dim, err)
	}
	defer rows.Close()

	var out []source.SummaryRow
	for rows.Next() {
		var row source.SummaryRow
		if err := rows.Scan(&row.Key, &row.UniqueBlogs, &row.TotalViews); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Rebuild recomputes summary rows for the half-open date range [from, to)
// from the raw events, replacing any existing rows for those dates. Delete
// and insert run in one transaction so readers never see a partial rollup.
func (r *SummaryRepository) Rebuild(ctx context.Context, from, to time.Time) (int64, error) {
	from = truncateToDate(from)
	to = truncateToDate(to)
	if !to.After(from) {
		return 0, fmt.Errorf("invalid rollup range: %s is not before %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin rollup: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM daily_view_summaries WHERE date >= $1 AND date < $2`,
		from, to,
	)
	if err != nil {
		return 0, fmt.Errorf("clear summary range: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO daily_view_summaries (date, country_code, author_username, total_views, unique_blogs)
		SELECT
			date_trunc('day', viewed_at AT TIME ZONE 'UTC')::date,
			COALESCE(country_code, ''),
			author_username,
			COUNT(*),
			COUNT(DISTINCT blog_id)
		FROM view_events
		WHERE viewed_at >= $1 AND viewed_at < $2
		GROUP BY 1, 2, 3
	`, from, to)
	if err != nil {
		return 0, fmt.Errorf("insert summary rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit rollup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
