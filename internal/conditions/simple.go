package conditions

import (
	"context"
	"strconv"
	"strings"

	"github.com/rendis/agentflow/pkg/schema"
)

// SimpleEngine evaluates binary comparison expressions of the form
// "<path> <op> <literal>", e.g. "user.age >= 18" or `status == "active"`.
// The left operand is a dotted path resolved against the data map; the
// right operand is a literal. Stateless and safe for concurrent use.
type SimpleEngine struct{}

// NewSimpleEngine creates a new simple comparison engine.
func NewSimpleEngine() *SimpleEngine {
	return &SimpleEngine{}
}

// Name returns the engine identifier.
func (e *SimpleEngine) Name() string {
	return "simple"
}

// operators in fixed priority order so that two-character lexemes are
// matched before their single-character prefixes (">=" before ">").
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// unset marks a left operand whose path did not resolve. It fails every
// comparison against a typed literal.
type unset struct{}

// Evaluate parses and evaluates the expression. It returns a bool, or an
// error when the expression contains no recognized operator. Callers treat
// errors as false.
func (e *SimpleEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty condition expression")
	}

	for _, op := range operators {
		idx := strings.Index(expression, op)
		if idx < 0 {
			continue
		}

		leftExpr := strings.TrimSpace(expression[:idx])
		rightExpr := strings.TrimSpace(expression[idx+len(op):])

		left := LookupPath(data, leftExpr)
		right := parseLiteral(rightExpr)

		return compare(left, op, right), nil
	}

	return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
		"no comparison operator in expression %q", expression)
}

// LookupPath walks a dotted path (e.g. "user.age") through nested maps.
// A path that does not fully resolve returns the unset sentinel.
func LookupPath(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return unset{}
		}
		current, ok = m[part]
		if !ok {
			return unset{}
		}
	}
	return current
}

// parseLiteral interprets the right operand: quoted strings keep their
// content, fully numeric tokens become float64, "true"/"false" become bool,
// anything else stays a string.
func parseLiteral(s string) any {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	return s
}

// compare applies the operator. Equality is loose (a numeric string equals
// its number); ordering follows the right operand's type. Incompatible
// types compare false, never panic.
func compare(left any, op string, right any) bool {
	if _, isUnset := left.(unset); isUnset {
		return false
	}

	switch op {
	case "==":
		return looseEqual(left, right)
	case "!=":
		return !looseEqual(left, right)
	}

	// Ordering operators: the right literal's type decides the comparison.
	switch r := right.(type) {
	case float64:
		l, ok := asNumber(left)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return l > r
		case "<":
			return l < r
		case ">=":
			return l >= r
		case "<=":
			return l <= r
		}
	case string:
		l, ok := left.(string)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return l > r
		case "<":
			return l < r
		case ">=":
			return l >= r
		case "<=":
			return l <= r
		}
	}
	return false
}

// looseEqual compares with numeric coercion: "150" == 150 holds.
func looseEqual(left, right any) bool {
	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	if lok && rok {
		return ln == rn
	}

	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if lok && rok {
		return lb == rb
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return ls == rs
	}
	return false
}

// asNumber coerces numeric types and numeric strings to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var _ Engine = (*SimpleEngine)(nil)
