package kernel

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// FilterByMask builds a new record holding only the rows where mask[i] is
// true, preserving relative order. This is filterBatch from the teacher's
// pkg/engine/executor/filter.go generalized to the full newColumnAppender
// type set and to null-aware sources.
func FilterByMask(mem memory.Allocator, batch arrow.Record, mask []bool) (arrow.Record, error) {
	if int64(len(mask)) != batch.NumRows() {
		return nil, errors.Errorf("kernel: mask length %d does not match batch rows %d", len(mask), batch.NumRows())
	}

	fields := batch.Schema().Fields()
	appenders, err := newAppenders(fields, mem)
	if err != nil {
		return nil, err
	}
	defer releaseAppenders(appenders)

	var kept int64
	for row, include := range mask {
		if !include {
			continue
		}
		for col, a := range appenders {
			a.appendRow(batch.Column(col), row)
		}
		kept++
	}

	return finishAppenders(batch.Schema(), appenders, kept), nil
}
