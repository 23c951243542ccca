package filter

import "errors"

// Sentinel errors for filter parsing and evaluation. Handlers map the first
// three to 400 responses; none of them may be downgraded to "no match".
var (
	// ErrInvalidFilter indicates a malformed filter payload.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrFieldNotAllowed indicates a condition references a field outside the allow-list.
	ErrFieldNotAllowed = errors.New("field not allowed")
	// ErrUnsupportedOperator indicates a condition uses an operator outside the whitelist.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrExpressionTooDeep indicates the expression tree exceeds the nesting cap.
	ErrExpressionTooDeep = errors.New("filter expression too deep")
)
