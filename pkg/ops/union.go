package ops

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/status"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// Union returns the set union of two schema-compatible, already co-located
// tables: duplicates removed, first-occurrence order preserved within each
// side, all surviving left rows ordered before surviving right rows
// (spec.md §4.7).
//
// Survival is decided by walking both sides in lockstep (row i of the left
// side, then row i of the right side, for i in [0, max(|L|,|R|))) and
// inserting each row's full-column byte key into a set the first time it is
// seen; a key already present marks that address a duplicate. This makes
// the row that "wins" a key shared by both sides deterministic across runs
// even though it has no bearing on the final column values, since only the
// surviving row's address (not its columns) contributes to the output.
func Union(tctx *tmctx.Context, reg *table.Registry, leftID, rightID string) (string, error) {
	left, err := reg.Get(leftID)
	if err != nil {
		return "", err
	}
	right, err := reg.Get(rightID)
	if err != nil {
		return "", err
	}
	if !table.SchemaCompatible(left.Schema(), right.Schema()) {
		return "", status.New(status.Invalid, "ops: union requires schema-compatible tables")
	}

	leftBatch, err := singleBatch(tctx.Allocator(), left)
	if err != nil {
		return "", errors.Wrap(err, "ops: union concatenate left")
	}
	defer leftBatch.Release()
	rightBatch, err := singleBatch(tctx.Allocator(), right)
	if err != nil {
		return "", errors.Wrap(err, "ops: union concatenate right")
	}
	defer rightBatch.Release()

	numCols := int(leftBatch.NumCols())
	allCols := make([]int, numCols)
	for i := range allCols {
		allCols[i] = i
	}

	leftRows := int(leftBatch.NumRows())
	rightRows := int(rightBatch.NumRows())
	maxRows := leftRows
	if rightRows > maxRows {
		maxRows = rightRows
	}

	seen := make(map[string]bool, leftRows+rightRows)
	var leftKept, rightKept []int
	for i := 0; i < maxRows; i++ {
		if i < leftRows {
			key := kernel.RowKeyBytes(leftBatch, i, allCols)
			if !seen[key] {
				seen[key] = true
				leftKept = append(leftKept, i)
			}
		}
		if i < rightRows {
			key := kernel.RowKeyBytes(rightBatch, i, allCols)
			if !seen[key] {
				seen[key] = true
				rightKept = append(rightKept, i)
			}
		}
	}

	leftOut, err := kernel.TakeByIndices(tctx.Allocator(), leftBatch, leftKept)
	if err != nil {
		return "", errors.Wrap(err, "ops: union take left survivors")
	}
	defer leftOut.Release()
	rightOut, err := kernel.TakeByIndices(tctx.Allocator(), rightBatch, rightKept)
	if err != nil {
		return "", errors.Wrap(err, "ops: union take right survivors")
	}
	defer rightOut.Release()

	result, err := kernel.ConcatenateWithSchema(tctx.Allocator(), leftBatch.Schema(), []arrow.Record{leftOut, rightOut})
	if err != nil {
		return "", errors.Wrap(err, "ops: union combine survivors")
	}
	defer result.Release()

	bt, err := table.FromRecordBatch(result)
	if err != nil {
		return "", errors.Wrap(err, "ops: union wrap result")
	}
	return reg.Put(bt), nil
}

// DistributedUnion is Union for tables scattered arbitrarily across ranks:
// it shuffles both sides on every column so that duplicate rows always land
// on the same rank before the local union runs (spec.md §4.7's distributed
// variant). Intermediate shuffle outputs are always removed before
// returning.
func DistributedUnion(ctx context.Context, tctx *tmctx.Context, reg *table.Registry, leftID, rightID string) (string, error) {
	if tctx.WorldSize() == 1 {
		return Union(tctx, reg, leftID, rightID)
	}

	left, err := reg.Get(leftID)
	if err != nil {
		return "", err
	}
	right, err := reg.Get(rightID)
	if err != nil {
		return "", err
	}
	if !table.SchemaCompatible(left.Schema(), right.Schema()) {
		return "", status.New(status.Invalid, "ops: union requires schema-compatible tables")
	}

	allCols := make([]int, left.NumCols())
	for i := range allCols {
		allCols[i] = i
	}

	shuffledLeft, shuffledRight, err := ShuffleTwo(ctx, tctx, reg, leftID, allCols, rightID, allCols)
	if err != nil {
		return "", errors.Wrap(err, "ops: distributed union shuffle")
	}
	defer reg.Remove(shuffledLeft)
	defer reg.Remove(shuffledRight)

	return Union(tctx, reg, shuffledLeft, shuffledRight)
}
