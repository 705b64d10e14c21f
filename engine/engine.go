// Package engine abstracts the lazy-dataframe machinery behind a narrow
// interface: open a lazy read over one source, concatenate lazy reads into
// one handle. The Parquet implementation lives in this package; the Loader
// only depends on the interface, so the columnar engine is swappable
// without touching validation logic.
package engine

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/crocolake/go-crocolake/filter"
)

// Source is a resolved source sub-directory of a database root.
type Source struct {
	// Name is the registry name, e.g. "ARGO". It is the value injected
	// into the DB_NAME column.
	Name string
	// Path is the partitioned dataset directory.
	Path string
}

// Frame is a lazily-evaluated tabular read. Construction performs only
// schema/metadata I/O; row data moves when Collect is called.
type Frame interface {
	// Schema returns the schema the frame materializes to.
	Schema(ctx context.Context) (*arrow.Schema, error)

	// Collect materializes the frame into an Arrow table.
	Collect(ctx context.Context) (arrow.Table, error)

	// EstimateRows returns an upper bound on the number of rows Collect
	// can produce, from file metadata only.
	EstimateRows(ctx context.Context) (int64, error)
}

// Engine opens lazy reads over partitioned columnar sources.
type Engine interface {
	// Open builds a lazy read over one source, projecting columns and
	// applying the filter specification with predicate pushdown.
	Open(ctx context.Context, src Source, columns []string, spec filter.Spec) (Frame, error)

	// Concat unions frames into a single lazy handle. Row order across
	// frames is not specified.
	Concat(frames ...Frame) (Frame, error)

	// SourceSchema reads the stored schema of one source directory
	// without touching row data.
	SourceSchema(ctx context.Context, dir string) (*arrow.Schema, error)
}

// concatFrame is the union of several frames. Schemas are aligned at
// collect time: the union schema is the by-name union of the member
// schemas, and members missing a column contribute typed nulls for it.
type concatFrame struct {
	frames []Frame
}

// Concat implements Engine for Parquet.
func (p *Parquet) Concat(frames ...Frame) (Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("concat of zero frames")
	}
	return &concatFrame{frames: frames}, nil
}

func (c *concatFrame) Schema(ctx context.Context) (*arrow.Schema, error) {
	schemas := make([]*arrow.Schema, 0, len(c.frames))
	for _, f := range c.frames {
		s, err := f.Schema(ctx)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return unionSchemas(schemas), nil
}

func (c *concatFrame) EstimateRows(ctx context.Context) (int64, error) {
	var total int64
	for _, f := range c.frames {
		n, err := f.EstimateRows(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (c *concatFrame) Collect(ctx context.Context) (arrow.Table, error) {
	target, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}

	mem := memory.DefaultAllocator
	var records []arrow.Record
	release := func() {
		for _, r := range records {
			r.Release()
		}
	}

	for _, f := range c.frames {
		tbl, err := f.Collect(ctx)
		if err != nil {
			release()
			return nil, err
		}
		recs, err := alignTable(ctx, mem, tbl, target)
		tbl.Release()
		if err != nil {
			release()
			return nil, err
		}
		records = append(records, recs...)
	}

	if len(records) == 0 {
		return emptyTable(target), nil
	}
	out := array.NewTableFromRecords(target, records)
	release()
	return out, nil
}

// unionSchemas merges schemas by field name, first occurrence wins.
func unionSchemas(schemas []*arrow.Schema) *arrow.Schema {
	var fields []arrow.Field
	seen := make(map[string]bool)
	for _, s := range schemas {
		for _, f := range s.Fields() {
			if !seen[f.Name] {
				seen[f.Name] = true
				fields = append(fields, f)
			}
		}
	}
	return arrow.NewSchema(fields, nil)
}

// alignTable rewrites every record of tbl to the target schema, reordering
// columns, casting members whose stored type differs, and padding absent
// ones with nulls.
func alignTable(ctx context.Context, mem memory.Allocator, tbl arrow.Table, target *arrow.Schema) ([]arrow.Record, error) {
	if tbl.NumRows() == 0 {
		return nil, nil
	}

	reader := array.NewTableReader(tbl, collectBatchSize)
	defer reader.Release()

	var out []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		aligned, err := alignRecord(ctx, mem, rec, target)
		if err != nil {
			for _, r := range out {
				r.Release()
			}
			return nil, err
		}
		out = append(out, aligned)
	}
	return out, nil
}

func alignRecord(ctx context.Context, mem memory.Allocator, rec arrow.Record, target *arrow.Schema) (arrow.Record, error) {
	n := rec.NumRows()
	cols := make([]arrow.Array, len(target.Fields()))
	for i, f := range target.Fields() {
		idx := rec.Schema().FieldIndices(f.Name)
		if len(idx) == 0 {
			cols[i] = nullArray(mem, f.Type, int(n))
			continue
		}
		col, err := conformColumn(ctx, rec.Column(idx[0]), f.Type)
		if err != nil {
			releaseArrays(cols)
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		cols[i] = col
	}
	out := array.NewRecord(target, cols, n)
	releaseArrays(cols)
	return out, nil
}

// conformColumn returns col as dt, casting when a source stores the column
// with a different physical type than the union schema. The caller owns the
// result.
func conformColumn(ctx context.Context, col arrow.Array, dt arrow.DataType) (arrow.Array, error) {
	if arrow.TypeEqual(col.DataType(), dt) {
		col.Retain()
		return col, nil
	}
	out, err := compute.CastArray(ctx, col, compute.SafeCastOptions(dt))
	if err != nil {
		return nil, fmt.Errorf("cast %s to %s: %w", col.DataType(), dt, err)
	}
	return out, nil
}

func releaseArrays(cols []arrow.Array) {
	for _, c := range cols {
		if c != nil {
			c.Release()
		}
	}
}

// nullArray builds an all-null array of the given type and length.
func nullArray(mem memory.Allocator, dt arrow.DataType, n int) arrow.Array {
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	b.AppendNulls(n)
	return b.NewArray()
}

// emptyTable returns a zero-row table with the given schema.
func emptyTable(schema *arrow.Schema) arrow.Table {
	mem := memory.DefaultAllocator
	cols := make([]arrow.Column, len(schema.Fields()))
	for i, f := range schema.Fields() {
		arr := nullArray(mem, f.Type, 0)
		chunked := arrow.NewChunked(f.Type, []arrow.Array{arr})
		cols[i] = *arrow.NewColumn(f, chunked)
		chunked.Release()
		arr.Release()
	}
	return array.NewTable(schema, cols, 0)
}
