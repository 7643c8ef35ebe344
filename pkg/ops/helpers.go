// Package ops implements the distributed relational operators built on top
// of pkg/exchange and pkg/join: hash-partition, shuffle, distributed join,
// union, sort, merge, select, and project (spec.md §4.2-§4.11). Every
// operator takes a *tmctx.Context for its rank/allocator/demux and a
// *table.Registry to read its input ids from and register its output id
// into, mirroring the original's free functions over a global table
// registry (original_source/cpp/src/twisterx/table_api.cpp).
package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/status"
	"github.com/tablemesh/tablemesh/pkg/table"
)

// singleBatch concatenates a table's batches into one contiguous batch, the
// row-addressing scheme most of these operators need. Callers must Release
// the result.
func singleBatch(mem memory.Allocator, t *table.Table) (arrow.Record, error) {
	batches := t.Batches()
	if len(batches) == 0 {
		return kernel.EmptyRecord(mem, t.Schema())
	}
	return kernel.ConcatenateBatches(mem, batches)
}

func validateColumns(numCols int, cols []int) error {
	for _, c := range cols {
		if c < 0 || c >= numCols {
			return status.New(status.IndexError, "ops: column %d out of range [0,%d)", c, numCols)
		}
	}
	return nil
}

func requireNonEmptyCols(cols []int) error {
	if len(cols) == 0 {
		return status.New(status.Invalid, "ops: at least one column is required")
	}
	return nil
}

// partitionVector computes, for every row of batch, which of numPartitions
// buckets it hashes into (spec.md §4.2: xxhash-based mixing over keyCols,
// position-dependent so column order matters).
func partitionVector(batch arrow.Record, keyCols []int, numPartitions int) ([]int, error) {
	if numPartitions <= 0 {
		return nil, status.New(status.Invalid, "ops: numPartitions must be positive, got %d", numPartitions)
	}
	if err := validateColumns(int(batch.NumCols()), keyCols); err != nil {
		return nil, err
	}
	rows := int(batch.NumRows())
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = int(kernel.HashRow(batch, i, keyCols) % uint64(numPartitions))
	}
	return out, nil
}
