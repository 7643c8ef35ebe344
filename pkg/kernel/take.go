package kernel

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TakeByIndices builds a new record holding row indices[0], indices[1], ...
// of batch in that order. Used by Sort (permutation from sort-indices) and
// by Union (per-side index vectors after row-set resolution).
func TakeByIndices(mem memory.Allocator, batch arrow.Record, indices []int) (arrow.Record, error) {
	fields := batch.Schema().Fields()
	appenders, err := newAppenders(fields, mem)
	if err != nil {
		return nil, err
	}
	defer releaseAppenders(appenders)

	for _, row := range indices {
		for col, a := range appenders {
			a.appendRow(batch.Column(col), row)
		}
	}

	return finishAppenders(batch.Schema(), appenders, int64(len(indices))), nil
}

// TakeByIndicesNullable is TakeByIndices with one addition: an index of -1
// appends a null instead of reading a row, letting a join build the
// nullable outer side of a LEFT/RIGHT/FULL result (spec.md §4.5: "outer-side
// columns nullable for non-inner kinds").
func TakeByIndicesNullable(mem memory.Allocator, batch arrow.Record, indices []int) (arrow.Record, error) {
	fields := batch.Schema().Fields()
	appenders, err := newAppenders(fields, mem)
	if err != nil {
		return nil, err
	}
	defer releaseAppenders(appenders)

	for _, row := range indices {
		for col, a := range appenders {
			if row < 0 {
				a.builder.AppendNull()
				continue
			}
			a.appendRow(batch.Column(col), row)
		}
	}

	return finishAppenders(batch.Schema(), appenders, int64(len(indices))), nil
}
