package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/status"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// HashPartition splits the table registered under id into numPartitions
// buckets by keyCols, registering one new table per non-empty bucket and
// returning the partition-number-to-id map (spec.md §4.2). Partitions that
// received no rows have no entry, matching kernel.SplitByPartition.
func HashPartition(ctx *tmctx.Context, reg *table.Registry, id string, keyCols []int, numPartitions int) (map[int]string, error) {
	if err := requireNonEmptyCols(keyCols); err != nil {
		return nil, err
	}
	t, err := reg.Get(id)
	if err != nil {
		return nil, err
	}

	batch, err := singleBatch(ctx.Allocator(), t)
	if err != nil {
		return nil, errors.Wrap(err, "ops: hash-partition concatenate input")
	}
	defer batch.Release()

	partOf, err := partitionVector(batch, keyCols, numPartitions)
	if err != nil {
		return nil, err
	}
	keyArrays := make([]arrow.Array, len(keyCols))
	for i, c := range keyCols {
		keyArrays[i] = batch.Column(c)
	}
	if _, err := kernel.EqualLength(keyArrays); err != nil {
		return nil, status.Wrap(status.IndexError, err, "ops: hash-partition key columns")
	}

	buckets, err := kernel.SplitByPartition(ctx.Allocator(), batch, partOf, numPartitions)
	if err != nil {
		return nil, errors.Wrap(err, "ops: hash-partition split")
	}

	out := make(map[int]string, len(buckets))
	for p, b := range buckets {
		bt, err := table.FromRecordBatch(b)
		b.Release()
		if err != nil {
			for _, id := range out {
				reg.Remove(id)
			}
			return nil, errors.Wrap(err, "ops: hash-partition wrap bucket")
		}
		out[p] = reg.Put(bt)
	}
	return out, nil
}
