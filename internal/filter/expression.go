package filter

import (
	"encoding/json"
	"fmt"
)

// MaxExpressionDepth caps expression nesting. The cap guards against stack
// exhaustion from adversarial payloads.
const MaxExpressionDepth = 32

// exprNode is the wire shape of one expression payload node. A node with a
// "conditions" key is a group; a node with a "field" key is a leaf.
type exprNode struct {
	Operator   *string          `json:"operator"`
	Conditions *json.RawMessage `json:"conditions"`
	Field      *string          `json:"field"`
	Op         *string          `json:"op"`
	Value      json.RawMessage  `json:"value"`
}

// ParseExpression decodes a JSON filter-expression payload into a Predicate,
// enforcing the operator whitelist, the field allow-list and the depth cap.
// The root may be a group or a single condition. An empty object, empty or
// null payload yields the always-true predicate; any other object that is
// neither a group nor a condition is rejected rather than defaulted, so a
// malformed filter can never widen to match-all.
func ParseExpression(raw []byte, allowed Allowed) (Predicate, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return True(), nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if len(keys) == 0 {
		return True(), nil
	}

	var node exprNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	switch {
	case node.Field != nil:
		return parseLeaf(node, allowed)
	case node.Conditions != nil || node.Operator != nil:
		return parseGroup(node, allowed, 1)
	default:
		return nil, fmt.Errorf("%w: expression must be a group or a condition", ErrInvalidFilter)
	}
}

func parseGroup(node exprNode, allowed Allowed, depth int) (Predicate, error) {
	if depth > MaxExpressionDepth {
		return nil, fmt.Errorf("%w: more than %d levels", ErrExpressionTooDeep, MaxExpressionDepth)
	}

	comb := CombAnd
	if node.Operator != nil {
		switch Combinator(*node.Operator) {
		case CombAnd, CombOr, CombNot:
			comb = Combinator(*node.Operator)
		default:
			return nil, fmt.Errorf("%w: unknown combinator %q", ErrInvalidFilter, *node.Operator)
		}
	}

	var children []json.RawMessage
	if node.Conditions != nil {
		if err := json.Unmarshal(*node.Conditions, &children); err != nil {
			return nil, fmt.Errorf("%w: conditions must be a list", ErrInvalidFilter)
		}
	}

	group := Group{Comb: comb, Children: make([]Predicate, 0, len(children))}
	for _, rawChild := range children {
		var child exprNode
		if err := json.Unmarshal(rawChild, &child); err != nil {
			return nil, fmt.Errorf("%w: condition must be an object", ErrInvalidFilter)
		}

		var (
			pred Predicate
			err  error
		)
		if child.Conditions != nil {
			pred, err = parseGroup(child, allowed, depth+1)
		} else {
			pred, err = parseLeaf(child, allowed)
		}
		if err != nil {
			return nil, err
		}
		group.Children = append(group.Children, pred)
	}

	return group, nil
}

func parseLeaf(node exprNode, allowed Allowed) (Predicate, error) {
	if node.Field == nil || *node.Field == "" {
		return nil, fmt.Errorf("%w: condition missing field", ErrInvalidFilter)
	}
	field := *node.Field

	if !allowed.Contains(field) {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotAllowed, field)
	}

	op := OpEq
	if node.Op != nil {
		op = Operator(*node.Op)
	}
	if !expressionOperators[op] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}

	var value any
	if len(node.Value) > 0 {
		if err := json.Unmarshal(node.Value, &value); err != nil {
			return nil, fmt.Errorf("%w: bad value for field %q", ErrInvalidFilter, field)
		}
	}

	return Cond(field, op, value), nil
}
