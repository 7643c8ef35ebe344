package ops

import (
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// Sort registers a new table holding id's rows ordered non-decreasing on
// col, nulls last, stable on ties (spec.md §4.9). Only local, single-column
// sorting is implemented; a distributed sample-sort is out of scope (spec.md
// §9's open question is resolved that way — see DESIGN.md).
func Sort(tctx *tmctx.Context, reg *table.Registry, id string, col int) (string, error) {
	t, err := reg.Get(id)
	if err != nil {
		return "", err
	}

	batch, err := singleBatch(tctx.Allocator(), t)
	if err != nil {
		return "", errors.Wrap(err, "ops: sort concatenate input")
	}
	defer batch.Release()

	indices, err := kernel.SortIndices(batch, col)
	if err != nil {
		return "", errors.Wrap(err, "ops: sort compute indices")
	}
	sorted, err := kernel.TakeByIndices(tctx.Allocator(), batch, indices)
	if err != nil {
		return "", errors.Wrap(err, "ops: sort materialize")
	}
	defer sorted.Release()

	bt, err := table.FromRecordBatch(sorted)
	if err != nil {
		return "", errors.Wrap(err, "ops: sort wrap result")
	}
	return reg.Put(bt), nil
}
