package crocolake

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crocolake/go-crocolake/engine"
)

// Dataset is the lazy tabular handle produced by Loader.GetDataframe. It
// references on-disk data but moves none of it until Collect.
type Dataset struct {
	id      string
	frame   engine.Frame
	sources []string
	log     *logrus.Logger
}

func newDataset(frame engine.Frame, sources []string, log *logrus.Logger) *Dataset {
	return &Dataset{
		id:      uuid.NewString(),
		frame:   frame,
		sources: sources,
		log:     log,
	}
}

// ID returns the handle identifier, used in log narration.
func (d *Dataset) ID() string {
	return d.id
}

// Sources returns the source names the dataset covers.
func (d *Dataset) Sources() []string {
	out := make([]string, len(d.sources))
	copy(out, d.sources)
	return out
}

// Schema returns the schema the dataset materializes to: the selected
// variables plus the mandatory identifier columns, with unit metadata.
func (d *Dataset) Schema(ctx context.Context) (*arrow.Schema, error) {
	return d.frame.Schema(ctx)
}

// EstimateRows returns an upper bound on the materialized row count from
// file metadata, after row-group pruning, without decoding any rows.
func (d *Dataset) EstimateRows(ctx context.Context) (int64, error) {
	return d.frame.EstimateRows(ctx)
}

// Collect materializes the dataset into an Arrow table. This is where row
// data is read; the caller is responsible for the result fitting in
// memory (see CollectWithin).
func (d *Dataset) Collect(ctx context.Context) (arrow.Table, error) {
	d.log.Infof("collecting dataset %s from sources %v", d.id, d.sources)
	return d.frame.Collect(ctx)
}

// CollectWithin materializes only if a metadata-based size estimate stays
// within limitBytes; otherwise it fails with ErrResultTooLarge before any
// row data is read. The estimate assumes eight bytes per value and is an
// upper bound only in row count, not in width of variable-length columns.
func (d *Dataset) CollectWithin(ctx context.Context, limitBytes int64) (arrow.Table, error) {
	rows, err := d.frame.EstimateRows(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := d.frame.Schema(ctx)
	if err != nil {
		return nil, err
	}

	estimated := rows * int64(len(schema.Fields())) * 8
	if estimated > limitBytes {
		return nil, &ResultTooLargeError{EstimatedBytes: estimated, LimitBytes: limitBytes}
	}
	return d.Collect(ctx)
}
