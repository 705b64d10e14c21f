package engine

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	crocoio "github.com/crocolake/go-crocolake/io"
)

// WriteDatasetMetadata writes the _common_metadata schema sidecar for a
// source directory: a zero-row Parquet file carrying the dataset schema.
// The dataset builder normally produces this; it is exposed here so tests
// and repair tooling can regenerate it.
func WriteDatasetMetadata(ctx context.Context, fio crocoio.FileIO, dir string, schema *arrow.Schema) error {
	out, err := fio.Create(ctx, fio.Join(dir, MetadataFile))
	if err != nil {
		return fmt.Errorf("creating metadata sidecar: %w", err)
	}
	w, err := out.CreateOverwrite(ctx)
	if err != nil {
		return fmt.Errorf("creating metadata sidecar: %w", err)
	}
	defer w.Close()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	pw, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("opening metadata writer: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	return nil
}
