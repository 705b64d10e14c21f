// Package filter defines the predicate specification applied when loading
// CrocoLake data.
//
// A Spec is a disjunction of Groups; a Group is a conjunction of Predicates.
// There is no nesting beyond these two levels, which matches what a Parquet
// reader can push down against row-group statistics.
package filter

import (
	"fmt"
	"reflect"
	"strings"
)

// Op represents a predicate operator.
type Op int

const (
	OpEq Op = iota
	OpNotEq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpNotNull
)

// String returns the string representation of the operator.
func (op Op) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpIn:
		return "in"
	case OpNotNull:
		return "is not null"
	default:
		return "UNKNOWN"
	}
}

// ParseOp parses the textual form of an operator, as accepted on the
// command line and in the original filter tuples.
func ParseOp(s string) (Op, error) {
	switch strings.TrimSpace(s) {
	case "==", "=":
		return OpEq, nil
	case "!=", "<>":
		return OpNotEq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "in":
		return OpIn, nil
	case "is not null", "notnull":
		return OpNotNull, nil
	default:
		return 0, fmt.Errorf("unknown filter operator %q", s)
	}
}

// Predicate is a single-column comparison.
//
// Value holds a scalar for comparison operators, a slice for OpIn, and is
// ignored for OpNotNull.
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

// String returns a readable form, e.g. "LATITUDE > 5".
func (p Predicate) String() string {
	switch p.Op {
	case OpNotNull:
		return fmt.Sprintf("%s %s", p.Column, p.Op)
	case OpIn:
		return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
	default:
		return fmt.Sprintf("%s %s %v", p.Column, p.Op, p.Value)
	}
}

// Group is a conjunction of predicates: a row matches a Group when it
// matches every predicate in it.
type Group []Predicate

// Spec is a disjunction of groups: a row matches a Spec when it matches at
// least one group. A nil or empty Spec matches every row.
type Spec []Group

// Eq creates an equality predicate.
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpEq, Value: value}
}

// NotEq creates a not-equal predicate.
func NotEq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpNotEq, Value: value}
}

// Lt creates a less-than predicate.
func Lt(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpLt, Value: value}
}

// Lte creates a less-than-or-equal predicate.
func Lte(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpLte, Value: value}
}

// Gt creates a greater-than predicate.
func Gt(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpGt, Value: value}
}

// Gte creates a greater-than-or-equal predicate.
func Gte(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpGte, Value: value}
}

// In creates a membership predicate.
func In(column string, values ...any) Predicate {
	return Predicate{Column: column, Op: OpIn, Value: values}
}

// NotNull creates an is-not-null predicate. This replaces the original
// convention of discarding NaNs with a very large comparison interval.
func NotNull(column string) Predicate {
	return Predicate{Column: column, Op: OpNotNull}
}

// And combines predicates into a single conjunction group.
func And(preds ...Predicate) Group {
	return Group(preds)
}

// Or combines groups into a disjunction spec.
func Or(groups ...Group) Spec {
	return Spec(groups)
}

// Between is shorthand for lower <= column <= upper.
func Between(column string, lower, upper any) Group {
	return And(Gte(column, lower), Lte(column, upper))
}

// String returns a readable form of the group.
func (g Group) String() string {
	parts := make([]string, len(g))
	for i, p := range g {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// String returns a readable form of the spec.
func (s Spec) String() string {
	if len(s) == 0 {
		return "(none)"
	}
	parts := make([]string, len(s))
	for i, g := range s {
		parts[i] = g.String()
	}
	return strings.Join(parts, " OR ")
}

// Columns returns the distinct column names referenced by the spec, in
// first-appearance order.
func (s Spec) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, g := range s {
		for _, p := range g {
			if !seen[p.Column] {
				seen[p.Column] = true
				cols = append(cols, p.Column)
			}
		}
	}
	return cols
}

// Validate checks the shape of the spec: every predicate names a column,
// uses a known operator, and carries a value of the right kind (a slice for
// in, a scalar otherwise). Column existence against a catalog is the
// caller's concern; operator/value type compatibility against the stored
// data is the engine's.
func (s Spec) Validate() error {
	for _, g := range s {
		for _, p := range g {
			if p.Column == "" {
				return fmt.Errorf("filter predicate with empty column name")
			}
			switch p.Op {
			case OpEq, OpNotEq, OpLt, OpLte, OpGt, OpGte:
				if p.Value == nil {
					return fmt.Errorf("filter %s: comparison requires a value", p)
				}
				if isSlice(p.Value) {
					return fmt.Errorf("filter %s: comparison requires a scalar value, got a list", p)
				}
			case OpIn:
				if !isSlice(p.Value) {
					return fmt.Errorf("filter %s: in requires a list value", p)
				}
			case OpNotNull:
				// no value
			default:
				return fmt.Errorf("filter on %s: unknown operator %d", p.Column, p.Op)
			}
		}
	}
	return nil
}

// Restrict returns a copy of the group containing only predicates whose
// column is in valid, along with the predicates that were dropped. Sources
// do not all carry the same columns, so a spec is narrowed per source
// before being handed to the reader.
func (g Group) Restrict(valid map[string]bool) (kept Group, dropped []Predicate) {
	for _, p := range g {
		if valid[p.Column] {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, p)
		}
	}
	return kept, dropped
}

// Restrict narrows every group of the spec to the valid columns. A group
// that loses all its predicates matches all rows, so the whole restricted
// spec collapses to nil in that case.
func (s Spec) Restrict(valid map[string]bool) (Spec, []Predicate) {
	var out Spec
	var dropped []Predicate
	anyEmptied := false
	for _, g := range s {
		kept, d := g.Restrict(valid)
		dropped = append(dropped, d...)
		if len(kept) == 0 {
			anyEmptied = true
			continue
		}
		out = append(out, kept)
	}
	if anyEmptied {
		// One branch of the disjunction became unconstrained.
		return nil, dropped
	}
	return out, dropped
}

// Clone returns a deep copy of the spec. Predicate values are copied
// shallowly except for in-lists, which are duplicated.
func (s Spec) Clone() Spec {
	if s == nil {
		return nil
	}
	out := make(Spec, len(s))
	for i, g := range s {
		cg := make(Group, len(g))
		copy(cg, g)
		for j, p := range g {
			if vals, ok := p.Value.([]any); ok {
				cp := make([]any, len(vals))
				copy(cp, vals)
				cg[j].Value = cp
			}
		}
		out[i] = cg
	}
	return out
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
