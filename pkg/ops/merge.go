package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// Merge concatenates every table in ids, in order, into one new table
// (spec.md §4.10). All must share an equal schema; an unknown id fails with
// a KeyError, exactly as Registry.Get reports it.
func Merge(tctx *tmctx.Context, reg *table.Registry, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", errors.New("ops: merge requires at least one table id")
	}

	var batches []arrow.Record
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	for _, id := range ids {
		t, err := reg.Get(id)
		if err != nil {
			return "", err
		}
		for _, b := range t.Batches() {
			b.Retain()
			batches = append(batches, b)
		}
	}

	merged, err := kernel.CombineChunks(tctx.Allocator(), batches)
	if err != nil {
		return "", errors.Wrap(err, "ops: merge combine chunks")
	}
	defer merged.Release()

	bt, err := table.FromRecordBatch(merged)
	if err != nil {
		return "", errors.Wrap(err, "ops: merge wrap result")
	}
	return reg.Put(bt), nil
}
