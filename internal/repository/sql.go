package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/blogpulse/blogpulse/internal/filter"
)

// eventColumns maps canonical filter fields to view_events columns.
var eventColumns = map[string]string{
	filter.FieldBlogID:         "blog_id",
	filter.FieldBlogTitle:      "blog_title",
	filter.FieldAuthorUsername: "author_username",
	filter.FieldCountryCode:    "country_code",
	filter.FieldViewerID:       "viewer_id",
	filter.FieldTimestamp:      "viewed_at",
}

// summaryColumns maps canonical filter fields to daily_view_summaries
// columns. Blog-level fields are absent: summaries are already aggregated
// past the individual blog.
var summaryColumns = map[string]string{
	filter.FieldAuthorUsername: "author_username",
	filter.FieldCountryCode:    "country_code",
	filter.FieldTimestamp:      "date",
}

// sqlBuilder compiles a filter predicate into a parameterized WHERE clause.
// Column and operator lookups are closed maps, so user input never reaches
// the SQL text - only the args slice.
type sqlBuilder struct {
	columns map[string]string
	args    []any
}

// compileWhere renders pred as a SQL condition over the given column map.
// Placeholders are numbered from $1.
func compileWhere(pred filter.Predicate, columns map[string]string) (string, []any, error) {
	b := &sqlBuilder{columns: columns}
	clause, err := b.compile(pred)
	if err != nil {
		return "", nil, err
	}
	return clause, b.args, nil
}

func (b *sqlBuilder) compile(pred filter.Predicate) (string, error) {
	switch p := pred.(type) {
	case filter.Condition:
		return b.condition(p)
	case filter.Group:
		return b.group(p)
	default:
		return "", fmt.Errorf("%w: unknown predicate type %T", filter.ErrInvalidFilter, pred)
	}
}

func (b *sqlBuilder) group(g filter.Group) (string, error) {
	// Identity for empty groups: and/or are vacuously true, not inverts it.
	if len(g.Children) == 0 {
		if g.Comb == filter.CombNot {
			return "FALSE", nil
		}
		return "TRUE", nil
	}

	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		clause, err := b.compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}

	switch g.Comb {
	case filter.CombOr:
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case filter.CombNot:
		return "(NOT (" + strings.Join(parts, " AND ") + "))", nil
	default:
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}
}

func (b *sqlBuilder) condition(c filter.Condition) (string, error) {
	canonical, ok := filter.CanonicalField(c.Field)
	if !ok {
		return "", fmt.Errorf("%w: %q", filter.ErrFieldNotAllowed, c.Field)
	}
	column, ok := b.columns[canonical]
	if !ok {
		return "", fmt.Errorf("%w: %q", filter.ErrFieldNotAllowed, c.Field)
	}

	switch c.Op {
	case filter.OpEq:
		return column + " = " + b.placeholder(c.Value), nil
	case filter.OpNeq:
		return column + " <> " + b.placeholder(c.Value), nil
	case filter.OpGt:
		return column + " > " + b.placeholder(c.Value), nil
	case filter.OpGte:
		return column + " >= " + b.placeholder(c.Value), nil
	case filter.OpLt:
		return column + " < " + b.placeholder(c.Value), nil
	case filter.OpLte:
		return column + " <= " + b.placeholder(c.Value), nil
	case filter.OpContains:
		return column + " ILIKE " + b.placeholder(likePattern(c.Value, true)) + " ESCAPE '\\'", nil
	case filter.OpStartsWith:
		return column + " ILIKE " + b.placeholder(likePattern(c.Value, false)) + " ESCAPE '\\'", nil
	case filter.OpIn:
		return column + " = ANY(" + b.placeholder(pq.Array(stringValues(c.Value))) + ")", nil
	case filter.OpNotIn:
		return "NOT (" + column + " = ANY(" + b.placeholder(pq.Array(stringValues(c.Value))) + "))", nil
	default:
		return "", fmt.Errorf("%w: %q", filter.ErrUnsupportedOperator, c.Op)
	}
}

func (b *sqlBuilder) placeholder(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds an ILIKE pattern from a user value, escaping LIKE
// metacharacters so they match literally.
func likePattern(v any, substring bool) string {
	escaped := likeEscaper.Replace(fmt.Sprint(v))
	if substring {
		return "%" + escaped + "%"
	}
	return escaped + "%"
}

func stringValues(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
