package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Range is the relative-window sugar accepted by the analytics endpoints.
type Range string

// Supported range literals.
const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeYear  Range = "year"
)

// start returns the beginning of the window ending at now.
func (r Range) start(now time.Time) time.Time {
	switch r {
	case RangeDay:
		return now.AddDate(0, 0, -1)
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	default: // RangeYear
		return now.AddDate(-1, 0, 0)
	}
}

// FlatFilter holds the named filter parameters of the analytics endpoints.
// It lowers to the same Predicate abstraction as the expression engine.
type FlatFilter struct {
	Range               Range
	StartDate           *time.Time
	EndDate             *time.Time
	Year                int
	CountryCodes        []string
	ExcludeCountryCodes []string
	AuthorUsername      string
	BlogID              int64
}

// flatFilterWire is the external JSON shape of FlatFilter.
type flatFilterWire struct {
	Range               string   `json:"range,omitempty"`
	StartDate           string   `json:"start_date,omitempty"`
	EndDate             string   `json:"end_date,omitempty"`
	Year                int      `json:"year,omitempty"`
	CountryCodes        []string `json:"country_codes,omitempty"`
	ExcludeCountryCodes []string `json:"exclude_country_codes,omitempty"`
	AuthorUsername      string   `json:"author_username,omitempty"`
	BlogID              int64    `json:"blog_id,omitempty"`
}

// DecodeFlatFilter parses the external FlatFilter payload. An empty body is a
// valid filter that selects all rows.
func DecodeFlatFilter(raw []byte) (FlatFilter, error) {
	var f FlatFilter
	if len(raw) == 0 || string(raw) == "null" {
		return f, nil
	}

	var wire flatFilterWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	if wire.Range != "" {
		switch Range(wire.Range) {
		case RangeDay, RangeWeek, RangeMonth, RangeYear:
			f.Range = Range(wire.Range)
		default:
			return f, fmt.Errorf("%w: unknown range %q", ErrInvalidFilter, wire.Range)
		}
	}

	var err error
	if f.StartDate, err = parseDate(wire.StartDate); err != nil {
		return f, fmt.Errorf("%w: bad start_date %q", ErrInvalidFilter, wire.StartDate)
	}
	if f.EndDate, err = parseDate(wire.EndDate); err != nil {
		return f, fmt.Errorf("%w: bad end_date %q", ErrInvalidFilter, wire.EndDate)
	}

	if wire.Year < 0 {
		return f, fmt.Errorf("%w: bad year %d", ErrInvalidFilter, wire.Year)
	}
	if wire.BlogID < 0 {
		return f, fmt.Errorf("%w: bad blog_id %d", ErrInvalidFilter, wire.BlogID)
	}

	f.Year = wire.Year
	f.BlogID = wire.BlogID
	f.CountryCodes = normalizeCodes(wire.CountryCodes)
	f.ExcludeCountryCodes = normalizeCodes(wire.ExcludeCountryCodes)
	f.AuthorUsername = strings.TrimSpace(wire.AuthorUsername)

	return f, nil
}

// parseDate accepts bare dates and RFC 3339 timestamps.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", value)
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalize lowers the flat filter to a Predicate. All emitted conditions
// combine with AND; an empty filter yields the always-true predicate.
//
// Precedence of the time parameters: range sugar overrides explicit
// start/end dates, and year overrides both.
func (f FlatFilter) Normalize(now time.Time) Predicate {
	var preds []Predicate

	start, end := f.StartDate, f.EndDate
	if f.Range != "" {
		s := f.Range.start(now)
		e := now
		start, end = &s, &e
	}

	switch {
	case f.Year != 0:
		y0 := time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		y1 := y0.AddDate(1, 0, 0)
		preds = append(preds,
			Cond(FieldTimestamp, OpGte, y0),
			Cond(FieldTimestamp, OpLt, y1),
		)
	default:
		if start != nil {
			preds = append(preds, Cond(FieldTimestamp, OpGte, *start))
		}
		if end != nil {
			preds = append(preds, Cond(FieldTimestamp, OpLte, *end))
		}
	}

	if len(f.CountryCodes) > 0 {
		preds = append(preds, Cond(FieldCountryCode, OpIn, append([]string(nil), f.CountryCodes...)))
	}
	if len(f.ExcludeCountryCodes) > 0 {
		preds = append(preds, Cond(FieldCountryCode, OpNotIn, append([]string(nil), f.ExcludeCountryCodes...)))
	}

	if f.AuthorUsername != "" {
		preds = append(preds, Cond(FieldAuthorUsername, OpEq, f.AuthorUsername))
	}
	if f.BlogID != 0 {
		preds = append(preds, Cond(FieldBlogID, OpEq, f.BlogID))
	}

	return And(preds...)
}
