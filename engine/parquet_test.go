package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/crocolake/go-crocolake/filter"
	crocoio "github.com/crocolake/go-crocolake/io"
)

// obs is one fixture observation row.
type obs struct {
	db       string
	platform string
	lat, lon float64
	juld     time.Time
	temp     float64
	tempNull bool
	psal     float64
}

func phySchema(withDBName bool) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "PLATFORM_NUMBER", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "LATITUDE", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "LONGITUDE", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "JULD", Type: arrow.FixedWidthTypes.Timestamp_ms, Nullable: true},
		{Name: "TEMP", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "PSAL", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}
	if withDBName {
		fields = append([]arrow.Field{
			{Name: "DB_NAME", Type: arrow.BinaryTypes.String, Nullable: true},
		}, fields...)
	}
	return arrow.NewSchema(fields, nil)
}

func dropField(schema *arrow.Schema, name string) *arrow.Schema {
	var fields []arrow.Field
	for _, f := range schema.Fields() {
		if f.Name != name {
			fields = append(fields, f)
		}
	}
	return arrow.NewSchema(fields, nil)
}

func buildRecord(t *testing.T, schema *arrow.Schema, rows []obs) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i, f := range schema.Fields() {
		switch f.Name {
		case "DB_NAME":
			fb := b.Field(i).(*array.StringBuilder)
			for _, r := range rows {
				fb.Append(r.db)
			}
		case "PLATFORM_NUMBER":
			fb := b.Field(i).(*array.StringBuilder)
			for _, r := range rows {
				fb.Append(r.platform)
			}
		case "LATITUDE":
			fb := b.Field(i).(*array.Float64Builder)
			for _, r := range rows {
				fb.Append(r.lat)
			}
		case "LONGITUDE":
			fb := b.Field(i).(*array.Float64Builder)
			for _, r := range rows {
				fb.Append(r.lon)
			}
		case "JULD":
			fb := b.Field(i).(*array.TimestampBuilder)
			for _, r := range rows {
				fb.Append(arrow.Timestamp(r.juld.UnixMilli()))
			}
		case "TEMP":
			fb := b.Field(i).(*array.Float64Builder)
			for _, r := range rows {
				if r.tempNull {
					fb.AppendNull()
				} else {
					fb.Append(r.temp)
				}
			}
		case "PSAL":
			fb := b.Field(i).(*array.Float64Builder)
			for _, r := range rows {
				fb.Append(r.psal)
			}
		default:
			t.Fatalf("fixture schema has unexpected field %s", f.Name)
		}
	}
	return b.NewRecord()
}

// writeParquetFixture writes one parquet file; each batch becomes its own
// row group.
func writeParquetFixture(t *testing.T, path string, schema *arrow.Schema, batches ...[]obs) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	aprops := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	pw, err := pqarrow.NewFileWriter(schema, f, props, aprops)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	for _, rows := range batches {
		rec := buildRecord(t, schema, rows)
		if err := pw.Write(rec); err != nil {
			rec.Release()
			t.Fatalf("Write failed: %v", err)
		}
		rec.Release()
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func baseRows() []obs {
	day := func(d int) time.Time {
		return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC)
	}
	return []obs{
		{platform: "p1", lat: 10, lon: -30, juld: day(1), temp: 18.5, psal: 35.1},
		{platform: "p2", lat: 25, lon: -40, juld: day(2), temp: 22.0, psal: 35.9},
		{platform: "p3", lat: 40, lon: -50, juld: day(3), tempNull: true, psal: 34.8},
		{platform: "p4", lat: -5, lon: 10, juld: day(4), temp: 5.0, psal: 33.2},
	}
}

func columnFloats(t *testing.T, tbl arrow.Table, name string) ([]float64, []bool) {
	t.Helper()
	idx := tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		t.Fatalf("column %s not in table", name)
	}
	var vals []float64
	var valid []bool
	for _, chunk := range tbl.Column(idx[0]).Data().Chunks() {
		a := chunk.(*array.Float64)
		for i := 0; i < a.Len(); i++ {
			vals = append(vals, a.Value(i))
			valid = append(valid, a.IsValid(i))
		}
	}
	return vals, valid
}

func columnStrings(t *testing.T, tbl arrow.Table, name string) []string {
	t.Helper()
	idx := tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		t.Fatalf("column %s not in table", name)
	}
	var vals []string
	for _, chunk := range tbl.Column(idx[0]).Data().Chunks() {
		a := chunk.(*array.String)
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				vals = append(vals, a.Value(i))
			} else {
				vals = append(vals, "<null>")
			}
		}
	}
	return vals
}

func TestOpenProjectsAndInjectsDBName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(false), baseRows())

	eng := NewParquet(crocoio.NewLocalFileIO())
	fr, err := eng.Open(ctx, Source{Name: "SprayGliders", Path: dir},
		[]string{"LATITUDE", "DB_NAME", "TEMP"}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	schema, err := fr.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	want := []string{"LATITUDE", "DB_NAME", "TEMP"}
	if len(schema.Fields()) != len(want) {
		t.Fatalf("schema has %d fields: %v", len(schema.Fields()), schema.Fields())
	}
	for i, name := range want {
		if schema.Field(i).Name != name {
			t.Errorf("field %d = %q, want %q", i, schema.Field(i).Name, name)
		}
	}

	tbl, err := fr.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 4 {
		t.Errorf("NumRows = %d, want 4", tbl.NumRows())
	}
	for i, v := range columnStrings(t, tbl, "DB_NAME") {
		if v != "SprayGliders" {
			t.Errorf("DB_NAME[%d] = %q", i, v)
		}
	}
}

func TestOpenKeepsStoredDBName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rows := baseRows()
	for i := range rows {
		rows[i].db = "ARGO"
	}
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(true), rows)

	eng := NewParquet(crocoio.NewLocalFileIO())
	fr, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir}, []string{"DB_NAME", "LATITUDE"}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tbl, err := fr.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	defer tbl.Release()

	for i, v := range columnStrings(t, tbl, "DB_NAME") {
		if v != "ARGO" {
			t.Errorf("DB_NAME[%d] = %q", i, v)
		}
	}
}

func TestCollectAppliesFilter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(false), baseRows())
	eng := NewParquet(crocoio.NewLocalFileIO())

	cases := []struct {
		name string
		spec filter.Spec
		want []float64
	}{
		{
			name: "band",
			spec: filter.Or(filter.And(filter.Gt("LATITUDE", 5.0), filter.Lt("LATITUDE", 30.0))),
			want: []float64{10, 25},
		},
		{
			name: "or of groups",
			spec: filter.Or(
				filter.And(filter.Gt("LATITUDE", 5.0), filter.Lt("LATITUDE", 30.0)),
				filter.And(filter.Eq("LATITUDE", -5.0)),
			),
			want: []float64{10, 25, -5},
		},
		{
			name: "not null",
			spec: filter.Or(filter.And(filter.NotNull("TEMP"))),
			want: []float64{10, 25, -5},
		},
		{
			name: "in list",
			spec: filter.Or(filter.And(filter.In("PLATFORM_NUMBER", "p1", "p4"))),
			want: []float64{10, -5},
		},
		{
			name: "timestamp",
			spec: filter.Or(filter.And(filter.Gte("JULD", time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)))),
			want: []float64{40, -5},
		},
		{
			name: "no match",
			spec: filter.Or(filter.And(filter.Gt("LATITUDE", 90.0))),
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fr, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir},
				[]string{"PLATFORM_NUMBER", "LATITUDE", "JULD", "TEMP"}, tc.spec)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			tbl, err := fr.Collect(ctx)
			if err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			defer tbl.Release()

			got, _ := columnFloats(t, tbl, "LATITUDE")
			if len(got) != len(tc.want) {
				t.Fatalf("got latitudes %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("latitude[%d] = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestFilterOnMissingColumnIsDropped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(false), baseRows())

	eng := NewParquet(crocoio.NewLocalFileIO())
	spec := filter.Or(filter.And(filter.Gt("DOXY", 100.0)))
	fr, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir}, []string{"LATITUDE"}, spec)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tbl, err := fr.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	defer tbl.Release()

	// The filter cannot be applied to this source, so every row survives.
	if tbl.NumRows() != 4 {
		t.Errorf("NumRows = %d, want 4", tbl.NumRows())
	}
}

func TestOpenRejectsUnknownProjection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(false), baseRows())

	eng := NewParquet(crocoio.NewLocalFileIO())
	if _, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir}, []string{"DOXY"}, nil); err == nil {
		t.Errorf("expected error when no requested column exists in the source")
	}
}

func TestRowGroupPruning(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	day := func(d int) time.Time { return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC) }

	low := []obs{
		{platform: "p1", lat: 0, lon: 0, juld: day(1), temp: 10, psal: 35},
		{platform: "p2", lat: 10, lon: 0, juld: day(1), temp: 11, psal: 35},
	}
	high := []obs{
		{platform: "p3", lat: 20, lon: 0, juld: day(2), tempNull: true, psal: 35},
		{platform: "p4", lat: 25, lon: 0, juld: day(2), tempNull: true, psal: 35},
		{platform: "p5", lat: 30, lon: 0, juld: day(2), tempNull: true, psal: 35},
	}
	path := filepath.Join(dir, "part-0.parquet")
	writeParquetFixture(t, path, phySchema(false), low, high)

	eng := NewParquet(crocoio.NewLocalFileIO())
	pf, ra, err := eng.openParquet(ctx, path)
	if err != nil {
		t.Fatalf("openParquet failed: %v", err)
	}
	defer ra.Close()
	defer pf.Close()

	if pf.NumRowGroups() != 2 {
		t.Fatalf("fixture has %d row groups, want 2", pf.NumRowGroups())
	}

	cases := []struct {
		name string
		spec filter.Spec
		want []int
	}{
		{"no filter", nil, []int{0, 1}},
		{"upper band", filter.Or(filter.And(filter.Gt("LATITUDE", 15.0))), []int{1}},
		{"lower band", filter.Or(filter.And(filter.Lte("LATITUDE", 10.0))), []int{0}},
		{"out of range", filter.Or(filter.And(filter.Gt("LATITUDE", 100.0))), nil},
		{"string out of range", filter.Or(filter.And(filter.Eq("PLATFORM_NUMBER", "zzz"))), nil},
		{"not null skips all-null group", filter.Or(filter.And(filter.NotNull("TEMP"))), []int{0}},
		{"or keeps both", filter.Or(
			filter.And(filter.Lt("LATITUDE", 5.0)),
			filter.And(filter.Gt("LATITUDE", 28.0)),
		), []int{0, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := selectRowGroups(pf, tc.spec)
			if len(got) != len(tc.want) {
				t.Fatalf("selectRowGroups = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("selectRowGroups = %v, want %v", got, tc.want)
				}
			}
		})
	}

	fr, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir}, []string{"LATITUDE"},
		filter.Or(filter.And(filter.Gt("LATITUDE", 15.0))))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	n, err := fr.EstimateRows(ctx)
	if err != nil {
		t.Fatalf("EstimateRows failed: %v", err)
	}
	// Only the second row group survives pruning.
	if n != 3 {
		t.Errorf("EstimateRows = %d, want 3", n)
	}
}

func TestConcatPadsMissingColumns(t *testing.T) {
	ctx := context.Background()
	dirA := t.TempDir()
	dirB := t.TempDir()

	writeParquetFixture(t, filepath.Join(dirA, "part-0.parquet"), phySchema(false), baseRows()[:2])
	writeParquetFixture(t, filepath.Join(dirB, "part-0.parquet"),
		dropField(phySchema(false), "PSAL"), baseRows()[2:])

	eng := NewParquet(crocoio.NewLocalFileIO())
	cols := []string{"LATITUDE", "PSAL", "DB_NAME"}

	frA, err := eng.Open(ctx, Source{Name: "ARGO", Path: dirA}, cols, nil)
	if err != nil {
		t.Fatalf("Open A failed: %v", err)
	}
	frB, err := eng.Open(ctx, Source{Name: "GLODAP", Path: dirB}, cols, nil)
	if err != nil {
		t.Fatalf("Open B failed: %v", err)
	}

	cat, err := eng.Concat(frA, frB)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}

	schema, err := cat.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if len(schema.Fields()) != 3 {
		t.Fatalf("union schema = %v", schema.Fields())
	}

	tbl, err := cat.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 4 {
		t.Fatalf("NumRows = %d, want 4", tbl.NumRows())
	}

	_, valid := columnFloats(t, tbl, "PSAL")
	wantValid := []bool{true, true, false, false}
	for i := range wantValid {
		if valid[i] != wantValid[i] {
			t.Errorf("PSAL[%d] valid = %v, want %v", i, valid[i], wantValid[i])
		}
	}

	names := columnStrings(t, tbl, "DB_NAME")
	wantNames := []string{"ARGO", "ARGO", "GLODAP", "GLODAP"}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("DB_NAME[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}
}

// writeRecordFixture writes an arbitrary record as a single parquet file.
func writeRecordFixture(t *testing.T, path string, rec arrow.Record) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	aprops := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	pw, err := pqarrow.NewFileWriter(rec.Schema(), f, props, aprops)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := pw.Write(rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestConcatCastsMismatchedTypes(t *testing.T) {
	ctx := context.Background()
	dirA := t.TempDir()
	dirB := t.TempDir()

	// Same column stored as float64 in one source and float32 in the other.
	writeParquetFixture(t, filepath.Join(dirA, "part-0.parquet"), phySchema(false), baseRows()[:2])

	schema32 := arrow.NewSchema([]arrow.Field{
		{Name: "LATITUDE", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "TEMP", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema32)
	b.Field(0).(*array.Float64Builder).AppendValues([]float64{60, -40}, nil)
	b.Field(1).(*array.Float32Builder).AppendValues([]float32{1.5, -1.5}, nil)
	rec := b.NewRecord()
	b.Release()
	writeRecordFixture(t, filepath.Join(dirB, "part-0.parquet"), rec)
	rec.Release()

	eng := NewParquet(crocoio.NewLocalFileIO())
	cols := []string{"LATITUDE", "TEMP"}

	frA, err := eng.Open(ctx, Source{Name: "ARGO", Path: dirA}, cols, nil)
	if err != nil {
		t.Fatalf("Open A failed: %v", err)
	}
	frB, err := eng.Open(ctx, Source{Name: "GLODAP", Path: dirB}, cols, nil)
	if err != nil {
		t.Fatalf("Open B failed: %v", err)
	}

	cat, err := eng.Concat(frA, frB)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	tbl, err := cat.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	defer tbl.Release()

	// The first source's type wins the union schema.
	idx := tbl.Schema().FieldIndices("TEMP")
	if len(idx) == 0 {
		t.Fatalf("TEMP not in result schema %v", tbl.Schema().Fields())
	}
	if got := tbl.Schema().Field(idx[0]).Type; !arrow.TypeEqual(got, arrow.PrimitiveTypes.Float64) {
		t.Fatalf("TEMP type = %s, want float64", got)
	}

	vals, valid := columnFloats(t, tbl, "TEMP")
	want := []float64{18.5, 22.0, 1.5, -1.5}
	if len(vals) != len(want) {
		t.Fatalf("got %d TEMP values, want %d", len(vals), len(want))
	}
	for i := range want {
		if !valid[i] || vals[i] != want[i] {
			t.Errorf("TEMP[%d] = %v (valid %v), want %v", i, vals[i], valid[i], want[i])
		}
	}
}

func TestSourceSchemaPrefersSidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fio := crocoio.NewLocalFileIO()
	schema := phySchema(false)

	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), schema, baseRows())
	if err := WriteDatasetMetadata(ctx, fio, dir, schema); err != nil {
		t.Fatalf("WriteDatasetMetadata failed: %v", err)
	}

	eng := NewParquet(fio)

	// The sidecar must not be picked up as a partition file.
	files, err := eng.partitionFiles(ctx, dir)
	if err != nil {
		t.Fatalf("partitionFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("partitionFiles = %v", files)
	}

	got, err := eng.SourceSchema(ctx, dir)
	if err != nil {
		t.Fatalf("SourceSchema failed: %v", err)
	}
	if len(got.Fields()) != len(schema.Fields()) {
		t.Fatalf("sidecar schema = %v", got.Fields())
	}
	for i, f := range schema.Fields() {
		if got.Field(i).Name != f.Name {
			t.Errorf("field %d = %q, want %q", i, got.Field(i).Name, f.Name)
		}
	}
}

func TestWriteDatasetMetadataAloneServesSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fio := crocoio.NewLocalFileIO()
	schema := phySchema(true)

	if err := WriteDatasetMetadata(ctx, fio, dir, schema); err != nil {
		t.Fatalf("WriteDatasetMetadata failed: %v", err)
	}
	got, err := NewParquet(fio).SourceSchema(ctx, dir)
	if err != nil {
		t.Fatalf("SourceSchema failed: %v", err)
	}
	if len(got.FieldIndices("DB_NAME")) == 0 {
		t.Errorf("sidecar schema missing DB_NAME: %v", got.Fields())
	}
}

func TestUnitsMetadata(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeParquetFixture(t, filepath.Join(dir, "part-0.parquet"), phySchema(false), baseRows())

	eng := NewParquet(crocoio.NewLocalFileIO(),
		WithUnits(map[string]string{"LATITUDE": "degrees_north"}))
	fr, err := eng.Open(ctx, Source{Name: "ARGO", Path: dir}, []string{"LATITUDE", "TEMP"}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	schema, err := fr.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	f := schema.Field(0)
	i := f.Metadata.FindKey("units")
	if i < 0 || f.Metadata.Values()[i] != "degrees_north" {
		t.Errorf("LATITUDE units metadata = %v", f.Metadata)
	}
}
