package kernel

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// ConcatenateBatches appends batches end to end into a single contiguous
// record, preserving the given order (arrival order for a shuffle's
// received list, insertion order for Merge's input list). It also serves
// as combine-chunks: for this engine, "chunks" and "batches" are the same
// representation, so there is nothing left for a separate combine-chunks
// kernel to do once concatenation exists.
func ConcatenateBatches(mem memory.Allocator, batches []arrow.Record) (arrow.Record, error) {
	if len(batches) == 0 {
		return nil, errors.New("kernel: concatenate requires at least one batch")
	}
	schema := batches[0].Schema()
	for i, b := range batches[1:] {
		if !b.Schema().Equal(schema) {
			return nil, errors.Errorf("kernel: batch %d schema does not match batch 0", i+1)
		}
	}
	if len(batches) == 1 {
		batches[0].Retain()
		return batches[0], nil
	}

	numCols := int(schema.NumFields())
	cols := make([]arrow.Array, numCols)
	for col := 0; col < numCols; col++ {
		parts := make([]arrow.Array, len(batches))
		for i, b := range batches {
			parts[i] = b.Column(col)
		}
		merged, err := array.Concatenate(parts, mem)
		if err != nil {
			for _, c := range cols[:col] {
				c.Release()
			}
			return nil, errors.Wrapf(err, "kernel: concatenate column %d", col)
		}
		cols[col] = merged
	}

	var numRows int64
	for _, b := range batches {
		numRows += b.NumRows()
	}
	rec := array.NewRecord(schema, cols, numRows)
	for _, c := range cols {
		c.Release()
	}
	return rec, nil
}

// CombineChunks is ConcatenateBatches under the name spec.md's shuffle step
// uses for it.
func CombineChunks(mem memory.Allocator, batches []arrow.Record) (arrow.Record, error) {
	return ConcatenateBatches(mem, batches)
}

// ConcatenateWithSchema is ConcatenateBatches for batches that are
// schema-compatible (same field count and types) but not schema-equal
// (field names may differ), returning a record under the given canonical
// schema. Union (pkg/ops) needs this: spec.md §4.7 unions rows across
// tables whose column names need not match.
func ConcatenateWithSchema(mem memory.Allocator, schema *arrow.Schema, batches []arrow.Record) (arrow.Record, error) {
	if len(batches) == 0 {
		return EmptyRecord(mem, schema)
	}
	numCols := int(schema.NumFields())
	cols := make([]arrow.Array, numCols)
	for col := 0; col < numCols; col++ {
		parts := make([]arrow.Array, len(batches))
		for i, b := range batches {
			parts[i] = b.Column(col)
		}
		merged, err := array.Concatenate(parts, mem)
		if err != nil {
			for _, c := range cols[:col] {
				c.Release()
			}
			return nil, errors.Wrapf(err, "kernel: concatenate column %d", col)
		}
		cols[col] = merged
	}
	var numRows int64
	for _, b := range batches {
		numRows += b.NumRows()
	}
	rec := array.NewRecord(schema, cols, numRows)
	for _, c := range cols {
		c.Release()
	}
	return rec, nil
}

// EmptyRecord builds a zero-row record of schema. Used where a side of an
// operator legitimately received no batches at all.
func EmptyRecord(mem memory.Allocator, schema *arrow.Schema) (arrow.Record, error) {
	appenders, err := newAppenders(schema.Fields(), mem)
	if err != nil {
		return nil, err
	}
	defer releaseAppenders(appenders)
	return finishAppenders(schema, appenders, 0), nil
}
