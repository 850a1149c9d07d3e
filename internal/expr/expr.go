// Package expr implements the tiny boolean expression language shared by
// the Workflow and AgentFlow executors (spec §4.6, §9 "Dynamic
// expression evaluator"): the keywords approved|rejected|timeout, plus
// comparisons of the form state.<dotted.path> OP <literal>.
package expr

import (
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpGt Op = ">"
	OpLt Op = "<"
	OpGe Op = ">="
	OpLe Op = "<="
)

var operators = []Op{OpGe, OpLe, OpEq, OpNe, OpGt, OpLt}

// Eval evaluates expression against state (the workflow/flow data map)
// and the most recent step/node output. Unrecognised expressions
// evaluate to false (spec §4.6).
func Eval(expression string, state map[string]any, lastOutput map[string]any) bool {
	e := strings.TrimSpace(expression)
	if e == "" {
		return false
	}

	switch e {
	case "approved":
		return boolField(lastOutput, "approved")
	case "rejected":
		return boolField(lastOutput, "rejected") || lastOutput["approved"] == false
	case "timeout":
		return boolField(lastOutput, "timeout")
	}

	if !strings.HasPrefix(e, "state.") {
		return false
	}

	for _, op := range operators {
		idx := strings.Index(e, string(op))
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(e[:idx])
		right := strings.TrimSpace(e[idx+len(op):])
		path := strings.TrimPrefix(left, "state.")
		val, ok := lookup(state, path)
		if !ok {
			return false
		}
		return compare(val, right, op)
	}
	return false
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, ok := m[key].(bool)
	return ok && v
}

func lookup(state map[string]any, dotted string) (any, bool) {
	parts := strings.Split(dotted, ".")
	var cur any = state
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(val any, literal string, op Op) bool {
	literal = strings.TrimSpace(literal)

	if strings.HasPrefix(literal, `"`) && strings.HasSuffix(literal, `"`) && len(literal) >= 2 {
		return compareStrings(toString(val), strings.Trim(literal, `"`), op)
	}
	if strings.HasPrefix(literal, "'") && strings.HasSuffix(literal, "'") && len(literal) >= 2 {
		return compareStrings(toString(val), strings.Trim(literal, "'"), op)
	}
	if n, err := strconv.ParseFloat(literal, 64); err == nil {
		if fv, ok := toFloat(val); ok {
			return compareNumbers(fv, n, op)
		}
		return false
	}
	return compareStrings(toString(val), literal, op)
}

func compareStrings(a, b string, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}

func compareNumbers(a, b float64, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
