package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/sirupsen/logrus"

	"github.com/crocolake/go-crocolake/filter"
	crocoio "github.com/crocolake/go-crocolake/io"
)

// DBNameColumn is the provenance column carrying the source name. Sources
// that do not store it get it synthesized at read time.
const DBNameColumn = "DB_NAME"

// MetadataFile is the schema sidecar written next to the partition files.
const MetadataFile = "_common_metadata"

// collectBatchSize is the record batch size used when rechunking tables.
const collectBatchSize = 64 * 1024

// Parquet is the Engine implementation over partitioned Parquet datasets.
type Parquet struct {
	fio   crocoio.FileIO
	mem   memory.Allocator
	log   *logrus.Logger
	units map[string]string
}

// ParquetOption configures the Parquet engine.
type ParquetOption func(*Parquet)

// WithAllocator sets the Arrow allocator.
func WithAllocator(mem memory.Allocator) ParquetOption {
	return func(p *Parquet) { p.mem = mem }
}

// WithLogger sets the logger used for read narration.
func WithLogger(log *logrus.Logger) ParquetOption {
	return func(p *Parquet) { p.log = log }
}

// WithUnits attaches per-column unit metadata to materialized schemas.
func WithUnits(units map[string]string) ParquetOption {
	return func(p *Parquet) { p.units = units }
}

// NewParquet creates a Parquet engine over the given file backend.
func NewParquet(fio crocoio.FileIO, opts ...ParquetOption) *Parquet {
	p := &Parquet{
		fio: fio,
		mem: memory.DefaultAllocator,
		log: discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Open builds a lazy read over one source directory. Only schema metadata
// is touched here: the partition files are listed, the source schema is
// read from the sidecar (or the first partition file), the projection is
// intersected with the columns the source actually has, and the filter is
// narrowed to those columns. Row data moves at Collect.
func (p *Parquet) Open(ctx context.Context, src Source, columns []string, spec filter.Spec) (Frame, error) {
	files, err := p.partitionFiles(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files under %s", src.Path)
	}

	fileSchema, err := p.SourceSchema(ctx, src.Path)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(fileSchema.Fields()))
	for _, f := range fileSchema.Fields() {
		present[f.Name] = true
	}

	var colsToRead []string
	injectDBName := false
	var outFields []arrow.Field
	for _, name := range columns {
		switch {
		case present[name]:
			colsToRead = append(colsToRead, name)
			idx := fileSchema.FieldIndices(name)[0]
			outFields = append(outFields, p.withUnits(fileSchema.Field(idx)))
		case name == DBNameColumn:
			injectDBName = true
			outFields = append(outFields, p.withUnits(arrow.Field{
				Name: DBNameColumn, Type: arrow.BinaryTypes.String, Nullable: true,
			}))
		default:
			// The column lives in other sources only; Concat pads it.
			p.log.Warnf("source %s has no column %s, skipping it for this source", src.Name, name)
		}
	}
	if len(colsToRead) == 0 && !injectDBName {
		return nil, fmt.Errorf("source %s has none of the requested columns %v", src.Name, columns)
	}

	narrowed, dropped := spec.Restrict(present)
	for _, d := range dropped {
		p.log.Warnf("filter %s discarded for source %s: column not in source schema", d, src.Name)
	}

	p.log.Infof("reading columns %v from source %s (%d partition files)", colsToRead, src.Name, len(files))

	return &parquetFrame{
		eng:          p,
		src:          src,
		files:        files,
		colsToRead:   colsToRead,
		injectDBName: injectDBName,
		schema:       arrow.NewSchema(outFields, nil),
		fileSchema:   fileSchema,
		spec:         narrowed,
		fullSpec:     spec,
	}, nil
}

// SourceSchema reads the schema of one source directory, preferring the
// _common_metadata sidecar over opening a data file.
func (p *Parquet) SourceSchema(ctx context.Context, dir string) (*arrow.Schema, error) {
	sidecar := p.fio.Join(dir, MetadataFile)
	if ok, err := p.fio.Exists(ctx, sidecar); err == nil && ok {
		return p.fileArrowSchema(ctx, sidecar)
	}

	files, err := p.partitionFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files under %s", dir)
	}
	return p.fileArrowSchema(ctx, files[0])
}

func (p *Parquet) fileArrowSchema(ctx context.Context, path string) (*arrow.Schema, error) {
	pf, _, err := p.openParquet(ctx, path)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, p.mem)
	if err != nil {
		return nil, fmt.Errorf("reading schema of %s: %w", path, err)
	}
	return fr.Schema()
}

// partitionFiles lists the parquet partition files of a source directory,
// excluding metadata sidecars, in stable order.
func (p *Parquet) partitionFiles(ctx context.Context, dir string) ([]string, error) {
	all, err := p.fio.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range all {
		base := f[strings.LastIndexAny(f, "/\\")+1:]
		if strings.HasPrefix(base, "_") {
			continue
		}
		if strings.HasSuffix(base, ".parquet") {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Parquet) openParquet(ctx context.Context, path string) (*file.Reader, crocoio.ReaderAtSeeker, error) {
	in, err := p.fio.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	ra, err := crocoio.NewReaderAt(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	pf, err := file.NewParquetReader(ra)
	if err != nil {
		ra.Close()
		return nil, nil, fmt.Errorf("opening parquet file %s: %w", path, err)
	}
	return pf, ra, nil
}

func (p *Parquet) withUnits(f arrow.Field) arrow.Field {
	if p.units == nil {
		return f
	}
	unit, ok := p.units[f.Name]
	if !ok {
		return f
	}
	f.Metadata = arrow.NewMetadata([]string{"units"}, []string{unit})
	return f
}

// parquetFrame is one source's lazy read.
type parquetFrame struct {
	eng          *Parquet
	src          Source
	files        []string
	colsToRead   []string
	injectDBName bool
	schema       *arrow.Schema
	fileSchema   *arrow.Schema
	// spec is the filter narrowed to this source's columns; fullSpec is
	// what the caller asked for, kept for diagnostics.
	spec     filter.Spec
	fullSpec filter.Spec
}

func (f *parquetFrame) Schema(ctx context.Context) (*arrow.Schema, error) {
	return f.schema, nil
}

// EstimateRows sums file row counts after row-group pruning, without
// decoding any column data.
func (f *parquetFrame) EstimateRows(ctx context.Context) (int64, error) {
	var total int64
	for _, path := range f.files {
		pf, _, err := f.eng.openParquet(ctx, path)
		if err != nil {
			return 0, err
		}
		groups := selectRowGroups(pf, f.spec)
		meta := pf.MetaData()
		for _, g := range groups {
			total += meta.RowGroup(g).NumRows()
		}
		pf.Close()
	}
	return total, nil
}

// Collect reads the partition files, projecting only the requested columns
// and skipping row groups whose statistics cannot satisfy the filter, then
// applies the filter exactly row by row.
func (f *parquetFrame) Collect(ctx context.Context) (arrow.Table, error) {
	var records []arrow.Record
	release := func() {
		for _, r := range records {
			r.Release()
		}
	}

	for _, path := range f.files {
		recs, err := f.collectFile(ctx, path)
		if err != nil {
			release()
			return nil, err
		}
		records = append(records, recs...)
	}

	if len(records) == 0 {
		return emptyTable(f.schema), nil
	}
	out := array.NewTableFromRecords(f.schema, records)
	release()
	return out, nil
}

func (f *parquetFrame) collectFile(ctx context.Context, path string) ([]arrow.Record, error) {
	pf, _, err := f.eng.openParquet(ctx, path)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	groups := selectRowGroups(pf, f.spec)
	if len(groups) == 0 {
		return nil, nil
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: collectBatchSize}, f.eng.mem)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	indices, err := f.columnIndices(fr)
	if err != nil {
		return nil, err
	}

	tbl, err := fr.ReadRowGroups(ctx, indices, groups)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer tbl.Release()

	reader := array.NewTableReader(tbl, collectBatchSize)
	defer reader.Release()

	var out []arrow.Record
	for reader.Next() {
		rec := reader.Record()

		filtered, err := filterRecord(f.eng.mem, rec, f.spec)
		if err != nil {
			for _, r := range out {
				r.Release()
			}
			return nil, err
		}
		if filtered.NumRows() == 0 {
			filtered.Release()
			continue
		}

		shaped, err := f.shapeRecord(ctx, filtered)
		filtered.Release()
		if err != nil {
			for _, r := range out {
				r.Release()
			}
			return nil, err
		}
		out = append(out, shaped)
	}
	return out, nil
}

// columnIndices maps the projected column names to leaf indices in the
// file schema. CrocoLake schemas are flat, so arrow field indices and
// parquet leaf indices coincide.
func (f *parquetFrame) columnIndices(fr *pqarrow.FileReader) ([]int, error) {
	schema, err := fr.Schema()
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(f.colsToRead))
	for _, name := range f.colsToRead {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("column %s missing from %s partition file", name, f.src.Name)
		}
		indices = append(indices, idx[0])
	}
	sort.Ints(indices)
	return indices, nil
}

// shapeRecord reorders the record's columns to the frame schema and
// synthesizes the DB_NAME column when the source does not store one.
// Partition files that deviate from the sidecar schema's physical types get
// cast rather than poisoning the frame.
func (f *parquetFrame) shapeRecord(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := rec.NumRows()
	cols := make([]arrow.Array, len(f.schema.Fields()))
	for i, field := range f.schema.Fields() {
		if field.Name == DBNameColumn && f.injectDBName {
			cols[i] = constantString(f.eng.mem, f.src.Name, int(n))
			continue
		}
		idx := rec.Schema().FieldIndices(field.Name)
		if len(idx) == 0 {
			releaseArrays(cols)
			return nil, fmt.Errorf("column %s missing after read of source %s", field.Name, f.src.Name)
		}
		col, err := conformColumn(ctx, rec.Column(idx[0]), field.Type)
		if err != nil {
			releaseArrays(cols)
			return nil, fmt.Errorf("column %s of source %s: %w", field.Name, f.src.Name, err)
		}
		cols[i] = col
	}
	out := array.NewRecord(f.schema, cols, n)
	releaseArrays(cols)
	return out, nil
}

// constantString builds a string array holding the same value n times.
func constantString(mem memory.Allocator, value string, n int) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < n; i++ {
		b.Append(value)
	}
	return b.NewArray()
}
