package engine

import (
	"time"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/metadata"

	"github.com/crocolake/go-crocolake/filter"
)

// selectRowGroups returns the indices of the row groups that may contain
// matching rows, using the per-chunk statistics embedded in the file
// footer. A row group is skipped only when every OR-group of the spec is
// provably empty against it; when statistics are absent or of an
// unsupported kind the group is kept.
func selectRowGroups(pf *file.Reader, spec filter.Spec) []int {
	n := pf.NumRowGroups()
	if len(spec) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	meta := pf.MetaData()
	colIdx := make(map[string]int, meta.Schema.NumColumns())
	for i := 0; i < meta.Schema.NumColumns(); i++ {
		colIdx[meta.Schema.Column(i).Name()] = i
	}

	var keep []int
	for g := 0; g < n; g++ {
		rg := meta.RowGroup(g)
		for _, group := range spec {
			if groupMayMatch(rg, colIdx, group) {
				keep = append(keep, g)
				break
			}
		}
	}
	return keep
}

// groupMayMatch reports whether a conjunction might hold for some row of
// the row group.
func groupMayMatch(rg *metadata.RowGroupMetaData, colIdx map[string]int, group filter.Group) bool {
	for _, pred := range group {
		if predicateImpossible(rg, colIdx, pred) {
			return false
		}
	}
	return true
}

// predicateImpossible reports whether the statistics prove that no row of
// the group can satisfy the predicate. False means "maybe".
func predicateImpossible(rg *metadata.RowGroupMetaData, colIdx map[string]int, pred filter.Predicate) bool {
	idx, ok := colIdx[pred.Column]
	if !ok {
		return false
	}
	cc, err := rg.ColumnChunk(idx)
	if err != nil {
		return false
	}
	if set, err := cc.StatsSet(); err != nil || !set {
		return false
	}
	stats, err := cc.Statistics()
	if err != nil || stats == nil {
		return false
	}

	if pred.Op == filter.OpNotNull {
		return stats.HasNullCount() && stats.NullCount() >= rg.NumRows()
	}

	if !stats.HasMinMax() {
		return false
	}

	// int64 bounds are compared in int64: rounding through float64 could
	// prove emptiness for a group that matches.
	if s, isI64 := stats.(*metadata.Int64Statistics); isI64 {
		return int64Impossible(s.Min(), s.Max(), pred)
	}
	if lo, hi, ok := numericBounds(stats); ok {
		return numericImpossible(lo, hi, pred)
	}
	if lo, hi, ok := stringBounds(stats); ok {
		return stringImpossible(lo, hi, pred)
	}
	return false
}

func numericBounds(stats metadata.TypedStatistics) (lo, hi float64, ok bool) {
	switch s := stats.(type) {
	case *metadata.Int32Statistics:
		return float64(s.Min()), float64(s.Max()), true
	case *metadata.Float32Statistics:
		return float64(s.Min()), float64(s.Max()), true
	case *metadata.Float64Statistics:
		return s.Min(), s.Max(), true
	default:
		return 0, 0, false
	}
}

func stringBounds(stats metadata.TypedStatistics) (lo, hi string, ok bool) {
	if s, isBA := stats.(*metadata.ByteArrayStatistics); isBA {
		return string(s.Min()), string(s.Max()), true
	}
	return "", "", false
}

func numericImpossible(lo, hi float64, pred filter.Predicate) bool {
	conv := func(v any) (float64, bool) {
		if _, isTime := v.(time.Time); isTime {
			// Timestamp units vary per file; without the unit the raw
			// int64 bounds cannot be compared, so never prune on them.
			return 0, false
		}
		f, err := toFloat(v)
		return f, err == nil
	}

	if pred.Op == filter.OpIn {
		for _, v := range valueList(pred.Value) {
			w, ok := conv(v)
			if !ok {
				return false
			}
			if w >= lo && w <= hi {
				return false
			}
		}
		return true
	}

	want, ok := conv(pred.Value)
	if !ok {
		return false
	}
	switch pred.Op {
	case filter.OpEq:
		return want < lo || want > hi
	case filter.OpNotEq:
		return lo == hi && lo == want
	case filter.OpLt:
		return lo >= want
	case filter.OpLte:
		return lo > want
	case filter.OpGt:
		return hi <= want
	case filter.OpGte:
		return hi < want
	default:
		return false
	}
}

func int64Impossible(lo, hi int64, pred filter.Predicate) bool {
	conv := func(v any) (int64, bool) {
		if _, isTime := v.(time.Time); isTime {
			// Timestamp units vary per file; without the unit the raw
			// int64 bounds cannot be compared, so never prune on them.
			return 0, false
		}
		return toInt64Exact(v)
	}

	if pred.Op == filter.OpIn {
		for _, v := range valueList(pred.Value) {
			w, ok := conv(v)
			if !ok {
				return false
			}
			if w >= lo && w <= hi {
				return false
			}
		}
		return true
	}

	want, ok := conv(pred.Value)
	if !ok {
		return false
	}
	switch pred.Op {
	case filter.OpEq:
		return want < lo || want > hi
	case filter.OpNotEq:
		return lo == hi && lo == want
	case filter.OpLt:
		return lo >= want
	case filter.OpLte:
		return lo > want
	case filter.OpGt:
		return hi <= want
	case filter.OpGte:
		return hi < want
	default:
		return false
	}
}

func stringImpossible(lo, hi string, pred filter.Predicate) bool {
	if pred.Op == filter.OpIn {
		for _, v := range valueList(pred.Value) {
			w, ok := v.(string)
			if !ok {
				return false
			}
			if w >= lo && w <= hi {
				return false
			}
		}
		return true
	}

	want, ok := pred.Value.(string)
	if !ok {
		return false
	}
	switch pred.Op {
	case filter.OpEq:
		return want < lo || want > hi
	case filter.OpNotEq:
		return lo == hi && lo == want
	case filter.OpLt:
		return lo >= want
	case filter.OpLte:
		return lo > want
	case filter.OpGt:
		return hi <= want
	case filter.OpGte:
		return hi < want
	default:
		return false
	}
}
