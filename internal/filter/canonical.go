package filter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Canonical renders a predicate to a unique textual form suitable for
// hashing. Children of a group are sorted by their own rendering, so two
// logically identical trees that merely order their children differently
// produce the same text (and/or/not are order-insensitive here: not combines
// its children as an AND before negating).
func Canonical(pred Predicate) string {
	var b strings.Builder
	writeCanonical(&b, pred)
	return b.String()
}

func writeCanonical(b *strings.Builder, pred Predicate) {
	switch p := pred.(type) {
	case Condition:
		b.WriteByte('(')
		b.WriteString(p.Field)
		b.WriteByte(' ')
		b.WriteString(string(p.Op))
		b.WriteByte(' ')
		b.WriteString(canonicalValue(p.Op, p.Value))
		b.WriteByte(')')
	case Group:
		rendered := make([]string, 0, len(p.Children))
		for _, child := range p.Children {
			rendered = append(rendered, Canonical(child))
		}
		slices.Sort(rendered)

		b.WriteByte('(')
		b.WriteString(string(p.Comb))
		for _, r := range rendered {
			b.WriteByte(' ')
			b.WriteString(r)
		}
		b.WriteByte(')')
	default:
		b.WriteString("(?)")
	}
}

// canonicalValue renders a condition value deterministically. Set operands
// are sorted and de-duplicated; times use RFC 3339 UTC.
func canonicalValue(op Operator, value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []string:
		if op == OpIn || op == OpNotIn {
			v = sortedUnique(v)
		}
		data, _ := json.Marshal(v)
		return string(data)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}

func sortedUnique(values []string) []string {
	out := append([]string(nil), values...)
	slices.Sort(out)
	return slices.Compact(out)
}

// canonicalWire mirrors flatFilterWire with deterministic field rendering.
// Field order is fixed by the struct; date and set fields are normalized so
// key-insertion order and list order in the inbound JSON cannot affect the
// output.
type canonicalWire struct {
	Range               string   `json:"range,omitempty"`
	StartDate           string   `json:"start_date,omitempty"`
	EndDate             string   `json:"end_date,omitempty"`
	Year                int      `json:"year,omitempty"`
	CountryCodes        []string `json:"country_codes,omitempty"`
	ExcludeCountryCodes []string `json:"exclude_country_codes,omitempty"`
	AuthorUsername      string   `json:"author_username,omitempty"`
	BlogID              int64    `json:"blog_id,omitempty"`
}

// CanonicalJSON renders the flat filter to canonical bytes for cache-key
// derivation. Range sugar is kept symbolic rather than resolved against the
// clock, so repeated identical requests share a key; staleness stays bounded
// by the cache TTL.
func (f FlatFilter) CanonicalJSON() []byte {
	wire := canonicalWire{
		Range:               string(f.Range),
		Year:                f.Year,
		CountryCodes:        sortedUnique(f.CountryCodes),
		ExcludeCountryCodes: sortedUnique(f.ExcludeCountryCodes),
		AuthorUsername:      f.AuthorUsername,
		BlogID:              f.BlogID,
	}
	if len(wire.CountryCodes) == 0 {
		wire.CountryCodes = nil
	}
	if len(wire.ExcludeCountryCodes) == 0 {
		wire.ExcludeCountryCodes = nil
	}
	if f.StartDate != nil {
		wire.StartDate = f.StartDate.UTC().Format(time.RFC3339Nano)
	}
	if f.EndDate != nil {
		wire.EndDate = f.EndDate.UTC().Format(time.RFC3339Nano)
	}

	data, _ := json.Marshal(wire)
	return data
}
