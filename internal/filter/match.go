package filter

import (
	"fmt"
	"strings"
	"time"
)

// Record exposes a single row's field values for in-memory predicate
// evaluation. Field takes a canonical field name and reports false for
// fields the record does not carry.
type Record interface {
	Field(name string) (any, bool)
}

// Match evaluates a predicate against a record. Group semantics: and/or
// combine children left to right with empty groups always-true, and not
// negates the AND of its children (so an empty not is always-false).
func Match(pred Predicate, rec Record) (bool, error) {
	switch p := pred.(type) {
	case Condition:
		return matchCondition(p, rec)
	case Group:
		return matchGroup(p, rec)
	default:
		return false, fmt.Errorf("%w: unknown predicate type %T", ErrInvalidFilter, pred)
	}
}

func matchGroup(g Group, rec Record) (bool, error) {
	result := true // neutral element for and/or

	for i, child := range g.Children {
		ok, err := Match(child, rec)
		if err != nil {
			return false, err
		}
		if i == 0 {
			result = ok
			continue
		}
		if g.Comb == CombOr {
			result = result || ok
		} else {
			// not combines as and until the final negation
			result = result && ok
		}
	}

	if g.Comb == CombNot {
		return !result, nil
	}
	return result, nil
}

func matchCondition(c Condition, rec Record) (bool, error) {
	canonical, ok := CanonicalField(c.Field)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrFieldNotAllowed, c.Field)
	}

	value, ok := rec.Field(canonical)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrFieldNotAllowed, c.Field)
	}

	switch c.Op {
	case OpEq:
		return valuesEqual(value, c.Value), nil
	case OpNeq:
		return !valuesEqual(value, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		cmp, comparable := compareValues(value, c.Value)
		if !comparable {
			return false, nil
		}
		switch c.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpContains:
		return strings.Contains(lower(value), lower(c.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(lower(value), lower(c.Value)), nil
	case OpIn:
		return inSet(value, c.Value), nil
	case OpNotIn:
		return !inSet(value, c.Value), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, c.Op)
	}
}

func valuesEqual(field, cond any) bool {
	if ft, ok := asTime(field); ok {
		ct, ok := asTime(cond)
		return ok && ft.Equal(ct)
	}
	if ff, ok := asFloat(field); ok {
		cf, ok := asFloat(cond)
		return ok && ff == cf
	}
	fs, fok := field.(string)
	cs, cok := cond.(string)
	return fok && cok && fs == cs
}

// compareValues orders two values, reporting false when they are not of a
// comparable kind.
func compareValues(field, cond any) (int, bool) {
	if ft, ok := asTime(field); ok {
		ct, ok := asTime(cond)
		if !ok {
			return 0, false
		}
		return ft.Compare(ct), true
	}
	if ff, ok := asFloat(field); ok {
		cf, ok := asFloat(cond)
		if !ok {
			return 0, false
		}
		switch {
		case ff < cf:
			return -1, true
		case ff > cf:
			return 1, true
		default:
			return 0, true
		}
	}
	fs, fok := field.(string)
	cs, cok := cond.(string)
	if !fok || !cok {
		return 0, false
	}
	return strings.Compare(fs, cs), true
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func lower(value any) string {
	s, _ := value.(string)
	return strings.ToLower(s)
}

func inSet(field, cond any) bool {
	fs, ok := field.(string)
	if !ok {
		return false
	}
	switch set := cond.(type) {
	case []string:
		for _, s := range set {
			if strings.EqualFold(fs, s) {
				return true
			}
		}
	case []any:
		for _, s := range set {
			if ss, ok := s.(string); ok && strings.EqualFold(fs, ss) {
				return true
			}
		}
	}
	return false
}
