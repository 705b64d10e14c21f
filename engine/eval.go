package engine

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/crocolake/go-crocolake/filter"
)

// filterRecord applies the spec exactly, row by row. Row-group pruning is
// only a skip optimization; this is where the result set is made precise.
func filterRecord(mem memory.Allocator, rec arrow.Record, spec filter.Spec) (arrow.Record, error) {
	if len(spec) == 0 {
		rec.Retain()
		return rec, nil
	}

	mask, err := evalSpec(rec, spec)
	if err != nil {
		return nil, err
	}

	keep := 0
	for _, m := range mask {
		if m {
			keep++
		}
	}
	if keep == int(rec.NumRows()) {
		rec.Retain()
		return rec, nil
	}

	cols := make([]arrow.Array, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		col, err := filterArray(mem, rec.Column(i), mask, keep)
		if err != nil {
			for _, c := range cols {
				if c != nil {
					c.Release()
				}
			}
			return nil, err
		}
		cols[i] = col
	}
	out := array.NewRecord(rec.Schema(), cols, int64(keep))
	for _, c := range cols {
		c.Release()
	}
	return out, nil
}

// evalSpec returns the row mask for the OR-of-ANDs spec.
func evalSpec(rec arrow.Record, spec filter.Spec) ([]bool, error) {
	n := int(rec.NumRows())
	mask := make([]bool, n)
	for _, group := range spec {
		gmask := make([]bool, n)
		for i := range gmask {
			gmask[i] = true
		}
		for _, pred := range group {
			pmask, err := evalPredicate(rec, pred)
			if err != nil {
				return nil, err
			}
			for i := range gmask {
				gmask[i] = gmask[i] && pmask[i]
			}
		}
		for i := range mask {
			mask[i] = mask[i] || gmask[i]
		}
	}
	return mask, nil
}

func evalPredicate(rec arrow.Record, p filter.Predicate) ([]bool, error) {
	idx := rec.Schema().FieldIndices(p.Column)
	if len(idx) == 0 {
		return nil, fmt.Errorf("filter column %s not present in record", p.Column)
	}
	arr := rec.Column(idx[0])
	n := arr.Len()

	if p.Op == filter.OpNotNull {
		out := make([]bool, n)
		for i := 0; i < n; i++ {
			out[i] = arr.IsValid(i)
		}
		return out, nil
	}

	switch a := arr.(type) {
	case *array.Float64:
		return evalNumeric(a, a.Value, p)
	case *array.Float32:
		return evalNumeric(a, func(i int) float64 { return float64(a.Value(i)) }, p)
	case *array.Int64:
		// int64 exceeds float64's exact range; compare in int64.
		return evalInt64(a, a.Value, p)
	case *array.Int32:
		return evalNumeric(a, func(i int) float64 { return float64(a.Value(i)) }, p)
	case *array.Int16:
		return evalNumeric(a, func(i int) float64 { return float64(a.Value(i)) }, p)
	case *array.Int8:
		return evalNumeric(a, func(i int) float64 { return float64(a.Value(i)) }, p)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return evalTimestamp(a, unit, p)
	case *array.String:
		return evalString(a, a.Value, p)
	case *array.Boolean:
		return evalBool(a, p)
	default:
		return nil, fmt.Errorf("filter on %s: unsupported column type %s", p.Column, arr.DataType())
	}
}

func evalNumeric(arr arrow.Array, get func(int) float64, p filter.Predicate) ([]bool, error) {
	n := arr.Len()
	out := make([]bool, n)

	if p.Op == filter.OpIn {
		wants, err := floatList(p)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			if !arr.IsValid(i) {
				continue
			}
			v := get(i)
			for _, w := range wants {
				if v == w {
					out[i] = true
					break
				}
			}
		}
		return out, nil
	}

	want, err := toFloat(p.Value)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", p, err)
	}
	for i := 0; i < n; i++ {
		if !arr.IsValid(i) {
			continue
		}
		out[i] = compareFloat(get(i), want, p.Op)
	}
	return out, nil
}

// evalTimestamp compares in the column's raw int64 representation. Going
// through float64 would quantize nanosecond epochs, which sit far beyond
// float64's exact integer range.
func evalTimestamp(arr *array.Timestamp, unit arrow.TimeUnit, p filter.Predicate) ([]bool, error) {
	conv := func(v any) (int64, error) {
		if t, ok := v.(time.Time); ok {
			return timestampOf(t, unit), nil
		}
		if w, ok := toInt64Exact(v); ok {
			return w, nil
		}
		return 0, fmt.Errorf("value %v (%T) is not a time or an integer", v, v)
	}
	get := func(i int) int64 { return int64(arr.Value(i)) }

	n := arr.Len()
	out := make([]bool, n)

	if p.Op == filter.OpIn {
		var wants []int64
		for _, v := range valueList(p.Value) {
			w, err := conv(v)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", p, err)
			}
			wants = append(wants, w)
		}
		for i := 0; i < n; i++ {
			if !arr.IsValid(i) {
				continue
			}
			v := get(i)
			for _, w := range wants {
				if v == w {
					out[i] = true
					break
				}
			}
		}
		return out, nil
	}

	want, err := conv(p.Value)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", p, err)
	}
	for i := 0; i < n; i++ {
		if !arr.IsValid(i) {
			continue
		}
		out[i] = compareInt64(get(i), want, p.Op)
	}
	return out, nil
}

// evalInt64 compares in int64 when the literal is exactly representable,
// falling back to float64 for fractional literals, which cannot satisfy
// equality against an integer column anyway.
func evalInt64(arr arrow.Array, get func(int) int64, p filter.Predicate) ([]bool, error) {
	n := arr.Len()
	out := make([]bool, n)

	if p.Op == filter.OpIn {
		var wants []int64
		for _, v := range valueList(p.Value) {
			if w, ok := toInt64Exact(v); ok {
				wants = append(wants, w)
				continue
			}
			// A fractional value matches no element; reject non-numerics.
			if _, err := toFloat(v); err != nil {
				return nil, fmt.Errorf("filter %s: %w", p, err)
			}
		}
		for i := 0; i < n; i++ {
			if !arr.IsValid(i) {
				continue
			}
			v := get(i)
			for _, w := range wants {
				if v == w {
					out[i] = true
					break
				}
			}
		}
		return out, nil
	}

	if want, ok := toInt64Exact(p.Value); ok {
		for i := 0; i < n; i++ {
			if !arr.IsValid(i) {
				continue
			}
			out[i] = compareInt64(get(i), want, p.Op)
		}
		return out, nil
	}

	want, err := toFloat(p.Value)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", p, err)
	}
	for i := 0; i < n; i++ {
		if !arr.IsValid(i) {
			continue
		}
		out[i] = compareFloat(float64(get(i)), want, p.Op)
	}
	return out, nil
}

func evalString(arr arrow.Array, get func(int) string, p filter.Predicate) ([]bool, error) {
	n := arr.Len()
	out := make([]bool, n)

	if p.Op == filter.OpIn {
		var wants []string
		for _, v := range valueList(p.Value) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("filter %s: in-list value %v is not a string", p, v)
			}
			wants = append(wants, s)
		}
		for i := 0; i < n; i++ {
			if !arr.IsValid(i) {
				continue
			}
			v := get(i)
			for _, w := range wants {
				if v == w {
					out[i] = true
					break
				}
			}
		}
		return out, nil
	}

	want, ok := p.Value.(string)
	if !ok {
		return nil, fmt.Errorf("filter %s: value %v is not a string", p, p.Value)
	}
	for i := 0; i < n; i++ {
		if !arr.IsValid(i) {
			continue
		}
		cmp := strings.Compare(get(i), want)
		switch p.Op {
		case filter.OpEq:
			out[i] = cmp == 0
		case filter.OpNotEq:
			out[i] = cmp != 0
		case filter.OpLt:
			out[i] = cmp < 0
		case filter.OpLte:
			out[i] = cmp <= 0
		case filter.OpGt:
			out[i] = cmp > 0
		case filter.OpGte:
			out[i] = cmp >= 0
		}
	}
	return out, nil
}

func evalBool(arr *array.Boolean, p filter.Predicate) ([]bool, error) {
	want, ok := p.Value.(bool)
	if !ok || (p.Op != filter.OpEq && p.Op != filter.OpNotEq) {
		return nil, fmt.Errorf("filter %s: boolean columns support == and != against a bool", p)
	}
	n := arr.Len()
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		if !arr.IsValid(i) {
			continue
		}
		if p.Op == filter.OpEq {
			out[i] = arr.Value(i) == want
		} else {
			out[i] = arr.Value(i) != want
		}
	}
	return out, nil
}

func compareInt64(v, want int64, op filter.Op) bool {
	switch op {
	case filter.OpEq:
		return v == want
	case filter.OpNotEq:
		return v != want
	case filter.OpLt:
		return v < want
	case filter.OpLte:
		return v <= want
	case filter.OpGt:
		return v > want
	case filter.OpGte:
		return v >= want
	default:
		return false
	}
}

func compareFloat(v, want float64, op filter.Op) bool {
	switch op {
	case filter.OpEq:
		return v == want
	case filter.OpNotEq:
		return v != want
	case filter.OpLt:
		return v < want
	case filter.OpLte:
		return v <= want
	case filter.OpGt:
		return v > want
	case filter.OpGte:
		return v >= want
	default:
		return false
	}
}

// filterArray keeps the rows selected by mask.
func filterArray(mem memory.Allocator, arr arrow.Array, mask []bool, keep int) (arrow.Array, error) {
	b := array.NewBuilder(mem, arr.DataType())
	defer b.Release()
	b.Reserve(keep)

	for i := 0; i < arr.Len(); i++ {
		if !mask[i] {
			continue
		}
		if arr.IsNull(i) {
			b.AppendNull()
			continue
		}
		switch ab := b.(type) {
		case *array.Float64Builder:
			ab.Append(arr.(*array.Float64).Value(i))
		case *array.Float32Builder:
			ab.Append(arr.(*array.Float32).Value(i))
		case *array.Int64Builder:
			ab.Append(arr.(*array.Int64).Value(i))
		case *array.Int32Builder:
			ab.Append(arr.(*array.Int32).Value(i))
		case *array.Int16Builder:
			ab.Append(arr.(*array.Int16).Value(i))
		case *array.Int8Builder:
			ab.Append(arr.(*array.Int8).Value(i))
		case *array.StringBuilder:
			ab.Append(arr.(*array.String).Value(i))
		case *array.BooleanBuilder:
			ab.Append(arr.(*array.Boolean).Value(i))
		case *array.TimestampBuilder:
			ab.Append(arr.(*array.Timestamp).Value(i))
		default:
			return nil, fmt.Errorf("unsupported column type %s", arr.DataType())
		}
	}
	return b.NewArray(), nil
}

// toInt64Exact converts a scalar to int64 when the conversion loses
// nothing: any signed/unsigned integer in range, or a float with no
// fractional part.
func toInt64Exact(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64Exact(float64(n))
	case float64:
		return floatToInt64Exact(n)
	default:
		return 0, false
	}
}

func floatToInt64Exact(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return 0, false
	}
	return int64(f), true
}

// toFloat widens any numeric scalar to float64.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

func floatList(p filter.Predicate) ([]float64, error) {
	var out []float64
	for _, v := range valueList(p.Value) {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// valueList flattens a slice of any element type into []any.
func valueList(v any) []any {
	if vals, ok := v.([]any); ok {
		return vals
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// timestampOf converts a time to the raw representation of the given unit.
func timestampOf(t time.Time, unit arrow.TimeUnit) int64 {
	switch unit {
	case arrow.Second:
		return t.Unix()
	case arrow.Millisecond:
		return t.UnixMilli()
	case arrow.Microsecond:
		return t.UnixMicro()
	default:
		return t.UnixNano()
	}
}
