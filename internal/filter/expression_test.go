package filter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseExpression_Leaf(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"operator":"and","conditions":[{"field":"country_code","op":"eq","value":"US"}]}`)

	pred, err := ParseExpression(raw, EventFields)
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}

	group, ok := pred.(Group)
	if !ok {
		t.Fatalf("expected Group, got %T", pred)
	}
	if group.Comb != CombAnd || len(group.Children) != 1 {
		t.Fatalf("unexpected group: %+v", group)
	}

	cond, ok := group.Children[0].(Condition)
	if !ok {
		t.Fatalf("expected Condition child, got %T", group.Children[0])
	}
	if cond.Field != "country_code" || cond.Op != OpEq || cond.Value != "US" {
		t.Errorf("unexpected condition: %+v", cond)
	}
}

func TestParseExpression_RootCondition(t *testing.T) {
	t.Parallel()

	// A bare condition is accepted at the root, allow-list included.
	pred, err := ParseExpression([]byte(`{"field":"country_code","op":"eq","value":"US"}`), EventFields)
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
	cond, ok := pred.(Condition)
	if !ok {
		t.Fatalf("expected Condition, got %T", pred)
	}
	if cond.Field != "country_code" || cond.Op != OpEq || cond.Value != "US" {
		t.Errorf("unexpected condition: %+v", cond)
	}

	if _, err := ParseExpression([]byte(`{"field":"password","op":"eq","value":"x"}`), EventFields); !errors.Is(err, ErrFieldNotAllowed) {
		t.Errorf("root condition bypassed the allow-list: %v", err)
	}
}

func TestParseExpression_UnrecognizedRootRejected(t *testing.T) {
	t.Parallel()

	// A root that is neither a group nor a condition must error, never
	// widen to match-all.
	for _, raw := range []string{
		`{"and":[{"field":"country_code","op":"eq","value":"US"}]}`,
		`{"filters":[]}`,
		`{"value":"US"}`,
	} {
		if _, err := ParseExpression([]byte(raw), EventFields); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("ParseExpression(%s) error = %v, want ErrInvalidFilter", raw, err)
		}
	}
}

func TestParseExpression_DefaultsAndNesting(t *testing.T) {
	t.Parallel()

	// op defaults to eq, operator defaults to and, groups nest
	raw := []byte(`{
		"conditions": [
			{"field": "author_username", "value": "alice"},
			{"operator": "or", "conditions": [
				{"field": "country_code", "value": "US"},
				{"field": "country_code", "value": "UK"}
			]}
		]
	}`)

	pred, err := ParseExpression(raw, EventFields)
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}

	group := pred.(Group)
	if group.Comb != CombAnd || len(group.Children) != 2 {
		t.Fatalf("unexpected outer group: %+v", group)
	}
	if cond := group.Children[0].(Condition); cond.Op != OpEq {
		t.Errorf("op should default to eq, got %q", cond.Op)
	}
	inner := group.Children[1].(Group)
	if inner.Comb != CombOr || len(inner.Children) != 2 {
		t.Errorf("unexpected inner group: %+v", inner)
	}
}

func TestParseExpression_Empty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "null", "{}"} {
		pred, err := ParseExpression([]byte(raw), EventFields)
		if err != nil {
			t.Fatalf("ParseExpression(%q): %v", raw, err)
		}
		group, ok := pred.(Group)
		if !ok || group.Comb != CombAnd || len(group.Children) != 0 {
			t.Errorf("ParseExpression(%q) should be the empty and-group, got %+v", raw, pred)
		}
	}
}

func TestParseExpression_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"conditions_not_list", `{"operator":"and","conditions":{"field":"country_code"}}`, ErrInvalidFilter},
		{"unknown_combinator", `{"operator":"xor","conditions":[]}`, ErrInvalidFilter},
		{"missing_field", `{"conditions":[{"op":"eq","value":1}]}`, ErrInvalidFilter},
		{"field_not_allowed", `{"conditions":[{"field":"password","op":"eq","value":"x"}]}`, ErrFieldNotAllowed},
		{"field_not_allowed_dotted", `{"conditions":[{"field":"viewer.password","op":"eq","value":"x"}]}`, ErrFieldNotAllowed},
		{"unsupported_operator", `{"conditions":[{"field":"country_code","op":"regex","value":".*"}]}`, ErrUnsupportedOperator},
		{"internal_operator_rejected", `{"conditions":[{"field":"country_code","op":"in","value":["US"]}]}`, ErrUnsupportedOperator},
		{"not_json", `{"conditions":`, ErrInvalidFilter},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseExpression([]byte(tc.raw), EventFields)
			if !errors.Is(err, tc.want) {
				t.Errorf("ParseExpression(%s) error = %v, want %v", tc.raw, err, tc.want)
			}
		})
	}
}

func TestParseExpression_AllowedDottedPath(t *testing.T) {
	t.Parallel()

	// "blog" is allow-listed, so "blog.title" passes the first-segment check.
	raw := []byte(`{"conditions":[{"field":"blog.title","op":"contains","value":"go"}]}`)
	if _, err := ParseExpression(raw, EventFields); err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
}

func TestParseExpression_DepthCap(t *testing.T) {
	t.Parallel()

	leaf := `{"field":"country_code","op":"eq","value":"US"}`
	nest := func(inner string) string {
		return fmt.Sprintf(`{"operator":"and","conditions":[%s]}`, inner)
	}

	atLimit := leaf
	for i := 0; i < MaxExpressionDepth-1; i++ {
		atLimit = nest(atLimit)
	}
	if _, err := ParseExpression([]byte(atLimit), EventFields); err != nil {
		t.Fatalf("expression at depth limit should parse: %v", err)
	}

	overLimit := leaf
	for i := 0; i < MaxExpressionDepth+1; i++ {
		overLimit = nest(overLimit)
	}
	if _, err := ParseExpression([]byte(overLimit), EventFields); !errors.Is(err, ErrExpressionTooDeep) {
		t.Errorf("expected ErrExpressionTooDeep, got %v", err)
	}

	if !strings.Contains(overLimit, "country_code") {
		t.Fatal("test payload construction broken")
	}
}
