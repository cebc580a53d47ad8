package realtime

import (
	"fmt"
	"strings"
)

// Filter is a row predicate of the form column=op.value. The zero Filter
// matches every row.
type Filter struct {
	Column string
	Op     string
	Values []string
}

// Filter operators.
const (
	OpEq  = "eq"
	OpNeq = "neq"
	OpIn  = "in"
)

// ParseFilter parses "column=eq.value", "column=neq.value" or
// "column=in.(a,b,c)". An empty string yields the zero Filter.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, nil
	}

	column, expr, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("invalid filter %q: expected column=op.value", s)
	}
	op, value, ok := strings.Cut(expr, ".")
	if !ok {
		return Filter{}, fmt.Errorf("invalid filter %q: expected column=op.value", s)
	}

	switch op {
	case OpEq, OpNeq:
		return Filter{Column: column, Op: op, Values: []string{value}}, nil
	case OpIn:
		if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
			return Filter{}, fmt.Errorf("invalid filter %q: in expects (a,b,...)", s)
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		if inner == "" {
			return Filter{}, fmt.Errorf("invalid filter %q: empty list", s)
		}
		values := strings.Split(inner, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		return Filter{Column: column, Op: op, Values: values}, nil
	default:
		return Filter{}, fmt.Errorf("invalid filter %q: unknown operator %q", s, op)
	}
}

// Match reports whether a record satisfies the filter. A record missing the
// column never matches.
func (f Filter) Match(record map[string]any) bool {
	if f.Column == "" {
		return true
	}
	v, ok := record[f.Column]
	if !ok {
		return false
	}
	got := stringify(v)

	switch f.Op {
	case OpEq:
		return got == f.Values[0]
	case OpNeq:
		return got != f.Values[0]
	case OpIn:
		for _, want := range f.Values {
			if got == want {
				return true
			}
		}
	}
	return false
}

func (f Filter) String() string {
	switch f.Op {
	case "":
		return ""
	case OpIn:
		return f.Column + "=in.(" + strings.Join(f.Values, ",") + ")"
	default:
		return f.Column + "=" + f.Op + "." + f.Values[0]
	}
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}
