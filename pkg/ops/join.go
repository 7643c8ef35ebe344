package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/join"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// JoinTables performs cfg's equi-join between two already co-located
// tables, without shuffling: the local half of spec.md §4.5, used directly
// when world_size==1 or when a caller has already partitioned both sides
// itself.
func JoinTables(tctx *tmctx.Context, reg *table.Registry, leftID, rightID string, cfg config.JoinConfig) (string, error) {
	left, err := reg.Get(leftID)
	if err != nil {
		return "", err
	}
	right, err := reg.Get(rightID)
	if err != nil {
		return "", err
	}

	leftBatch, err := singleBatch(tctx.Allocator(), left)
	if err != nil {
		return "", errors.Wrap(err, "ops: join concatenate left")
	}
	defer leftBatch.Release()
	rightBatch, err := singleBatch(tctx.Allocator(), right)
	if err != nil {
		return "", errors.Wrap(err, "ops: join concatenate right")
	}
	defer rightBatch.Release()

	result, err := join.Local(tctx.Allocator(), leftBatch, rightBatch, cfg)
	if err != nil {
		return "", errors.Wrap(err, "ops: join local")
	}
	defer result.Release()

	bt, err := table.FromRecordBatch(result)
	if err != nil {
		return "", errors.Wrap(err, "ops: join wrap result")
	}
	return reg.Put(bt), nil
}

// DistributedJoin performs cfg's equi-join between two tables that may be
// scattered arbitrarily across ranks: it shuffles both sides on their join
// column so matching keys land on the same rank, then joins locally
// (spec.md §4.5). Intermediate shuffle outputs are always removed from the
// registry before returning, on both the success and error paths.
func DistributedJoin(ctx context.Context, tctx *tmctx.Context, reg *table.Registry, leftID, rightID string, cfg config.JoinConfig) (string, error) {
	if tctx.WorldSize() == 1 {
		return JoinTables(tctx, reg, leftID, rightID, cfg)
	}

	shuffledLeft, shuffledRight, err := ShuffleTwo(ctx, tctx, reg, leftID, []int{cfg.LeftColumnIndex}, rightID, []int{cfg.RightColumnIndex})
	if err != nil {
		return "", errors.Wrap(err, "ops: distributed join shuffle")
	}
	defer reg.Remove(shuffledLeft)
	defer reg.Remove(shuffledRight)

	return JoinTables(tctx, reg, shuffledLeft, shuffledRight, cfg)
}
