// Package filter implements the dynamic filter engine: a typed boolean
// expression tree over page-view event fields, built either from a recursive
// JSON payload or from the flat filter parameters of the analytics endpoints.
// Predicates are consumed by the query sources, which compile them to SQL or
// evaluate them in memory; untrusted field strings never reach query text.
package filter

import "strings"

// Operator identifies a leaf comparison.
type Operator string

// Operators accepted in expression payloads.
const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"   // case-insensitive substring
	OpStartsWith Operator = "startswith" // case-insensitive prefix
)

// Set-membership operators. These are emitted by the flat filter normalizer
// for country-code sets and are not accepted in expression payloads.
const (
	OpIn    Operator = "in"
	OpNotIn Operator = "nin"
)

// expressionOperators is the whitelist for expression payload leaves.
var expressionOperators = map[Operator]bool{
	OpEq:  true, OpNeq: true,
	OpGt:  true, OpGte: true,
	OpLt:  true, OpLte: true,
	OpContains: true, OpStartsWith: true,
}

// Combinator identifies how a group combines its children.
type Combinator string

// Group combinators. CombNot negates the AND of its children (n-ary NAND).
const (
	CombAnd Combinator = "and"
	CombOr  Combinator = "or"
	CombNot Combinator = "not"
)

// Predicate is an evaluatable boolean filter over a single record.
// The two implementations form a closed tagged union: Condition and Group.
type Predicate interface {
	isPredicate()
}

// Condition is a leaf: a single field comparison.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

func (Condition) isPredicate() {}

// Group combines child predicates. Children combine left to right; an empty
// and/or group is always-true and an empty not group is always-false.
type Group struct {
	Comb     Combinator
	Children []Predicate
}

func (Group) isPredicate() {}

// Cond builds a leaf condition.
func Cond(field string, op Operator, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// And combines predicates conjunctively. And() is the always-true predicate.
func And(children ...Predicate) Group {
	return Group{Comb: CombAnd, Children: children}
}

// Or combines predicates disjunctively.
func Or(children ...Predicate) Group {
	return Group{Comb: CombOr, Children: children}
}

// Not negates the conjunction of its children.
func Not(children ...Predicate) Group {
	return Group{Comb: CombNot, Children: children}
}

// True returns the always-true predicate (matches every record).
func True() Predicate {
	return And()
}

// Canonical event field names.
const (
	FieldBlogID         = "blog_id"
	FieldBlogTitle      = "blog_title"
	FieldAuthorUsername = "author_username"
	FieldCountryCode    = "country_code"
	FieldViewerID       = "viewer_id"
	FieldTimestamp      = "timestamp"
)

// fieldAliases maps dotted relation paths (as the external payloads spell
// them) to canonical event fields.
var fieldAliases = map[string]string{
	"blog.id":              FieldBlogID,
	"blog.title":           FieldBlogTitle,
	"blog.author.username": FieldAuthorUsername,
	"country.code":         FieldCountryCode,
}

// Allowed is the field allow-list enforced on expression leaves.
type Allowed map[string]struct{}

// NewAllowed builds an allow-list from field names.
func NewAllowed(fields ...string) Allowed {
	a := make(Allowed, len(fields))
	for _, f := range fields {
		a[f] = struct{}{}
	}
	return a
}

// Contains reports whether a field may be filtered on. For dotted paths the
// first segment is checked, so allowing "blog" permits "blog.title".
func (a Allowed) Contains(field string) bool {
	if _, ok := a[field]; ok {
		return true
	}
	base, _, found := strings.Cut(field, ".")
	if !found {
		return false
	}
	_, ok := a[base]
	return ok
}

// EventFields is the allow-list for page-view event filtering.
var EventFields = NewAllowed(
	FieldBlogID,
	FieldBlogTitle,
	FieldAuthorUsername,
	FieldCountryCode,
	FieldViewerID,
	FieldTimestamp,
	"blog",
	"country",
)

// CanonicalField resolves a payload field name (possibly a dotted path) to
// its canonical event field. Returns false for unknown fields.
func CanonicalField(field string) (string, bool) {
	if alias, ok := fieldAliases[field]; ok {
		return alias, true
	}
	switch field {
	case FieldBlogID, FieldBlogTitle, FieldAuthorUsername,
		FieldCountryCode, FieldViewerID, FieldTimestamp:
		return field, true
	}
	return "", false
}
