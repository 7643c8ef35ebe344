package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// Predicate reports whether a row should survive Select.
type Predicate func(row table.Row) bool

// Select evaluates predicate over every row of id's table to build a
// boolean mask, then filters by it, registering the surviving rows as a new
// table (spec.md §4.11).
func Select(tctx *tmctx.Context, reg *table.Registry, id string, predicate Predicate) (string, error) {
	t, err := reg.Get(id)
	if err != nil {
		return "", err
	}

	batch, err := singleBatch(tctx.Allocator(), t)
	if err != nil {
		return "", errors.Wrap(err, "ops: select concatenate input")
	}
	defer batch.Release()

	rows := int(batch.NumRows())
	mask := make([]bool, rows)
	for i := 0; i < rows; i++ {
		mask[i] = predicate(table.NewRow(batch, i))
	}

	filtered, err := kernel.FilterByMask(tctx.Allocator(), batch, mask)
	if err != nil {
		return "", errors.Wrap(err, "ops: select filter")
	}
	defer filtered.Release()

	bt, err := table.FromRecordBatch(filtered)
	if err != nil {
		return "", errors.Wrap(err, "ops: select wrap result")
	}
	return reg.Put(bt), nil
}

// Project builds a new schema and table holding only cols, preserving the
// input's chunking: each output batch corresponds 1:1 to an input batch,
// unlike every other operator here which first concatenates (spec.md
// §4.11's "preserving their chunking").
func Project(tctx *tmctx.Context, reg *table.Registry, id string, cols []int) (string, error) {
	if err := requireNonEmptyCols(cols); err != nil {
		return "", err
	}
	t, err := reg.Get(id)
	if err != nil {
		return "", err
	}
	if err := validateColumns(t.NumCols(), cols); err != nil {
		return "", err
	}

	srcFields := t.Schema().Fields()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = srcFields[c]
	}
	schema := arrow.NewSchema(fields, nil)

	outBatches := make([]arrow.Record, 0, len(t.Batches()))
	defer func() {
		for _, b := range outBatches {
			b.Release()
		}
	}()

	for _, b := range t.Batches() {
		projected := make([]arrow.Array, len(cols))
		for i, c := range cols {
			projected[i] = b.Column(c)
		}
		outBatches = append(outBatches, array.NewRecord(schema, projected, b.NumRows()))
	}

	bt, err := table.New(schema, outBatches)
	if err != nil {
		return "", errors.Wrap(err, "ops: project wrap result")
	}
	return reg.Put(bt), nil
}
