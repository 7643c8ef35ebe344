package ops

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/exchange"
	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// Shuffle redistributes the table registered under id across every rank,
// hashing hashCols to pick a destination rank per row, and registers the
// locally-received result under a new id (spec.md §4.4). numPartitions is
// pinned to world_size: one bucket per destination rank.
//
// edgeID must be unique among concurrently-live exchanges sharing this
// context's Demux; callers draw it from tctx.NextSequence(). Shuffle blocks
// until every rank's contribution has been delivered, or ctx is done.
func Shuffle(ctx context.Context, tctx *tmctx.Context, reg *table.Registry, id string, hashCols []int, edgeID int64) (string, error) {
	if err := requireNonEmptyCols(hashCols); err != nil {
		return "", err
	}
	t, err := reg.Get(id)
	if err != nil {
		return "", err
	}
	schema := t.Schema()

	batch, err := singleBatch(tctx.Allocator(), t)
	if err != nil {
		return "", errors.Wrap(err, "ops: shuffle concatenate input")
	}
	defer batch.Release()

	worldSize := tctx.WorldSize()
	rank := tctx.Rank()

	if worldSize == 1 {
		bt, err := table.FromRecordBatch(batch)
		if err != nil {
			return "", errors.Wrap(err, "ops: shuffle wrap single-rank result")
		}
		return reg.Put(bt), nil
	}

	partOf, err := partitionVector(batch, hashCols, worldSize)
	if err != nil {
		return "", err
	}
	buckets, err := kernel.SplitByPartition(tctx.Allocator(), batch, partOf, worldSize)
	if err != nil {
		return "", errors.Wrap(err, "ops: shuffle split by destination rank")
	}
	defer func() {
		for _, b := range buckets {
			b.Release()
		}
	}()

	var received []arrow.Record
	defer func() {
		for _, b := range received {
			b.Release()
		}
	}()

	// The local bucket never touches the transport: spec.md §4.4 step 3's
	// fast path for rows that are already on their destination rank.
	if local, ok := buckets[rank]; ok {
		local.Retain()
		received = append(received, local)
	}

	neighbours := tctx.Neighbours(true)
	ex, err := exchange.New(exchange.Params{
		Demux:      tctx.Demux(),
		Sources:    neighbours,
		Targets:    neighbours,
		EdgeID:     edgeID,
		Schema:     schema,
		Allocator:  tctx.Allocator(),
		Logger:     tctx.Logger(),
		Registerer: tctx.Registerer(),
		OnReceive: func(_ int, b arrow.Record) {
			b.Retain()
			received = append(received, b)
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "ops: shuffle build exchange")
	}

	for target, b := range buckets {
		if target == rank {
			continue
		}
		if err := ex.Insert(b, target); err != nil {
			return "", errors.Wrapf(err, "ops: shuffle insert into rank %d", target)
		}
	}
	if err := ex.Finish(); err != nil {
		return "", errors.Wrap(err, "ops: shuffle finish")
	}
	if err := runUntilComplete(ctx, ex.IsComplete); err != nil {
		return "", errors.Wrap(err, "ops: shuffle drain")
	}

	out, err := kernel.ConcatenateWithSchema(tctx.Allocator(), schema, received)
	if err != nil {
		return "", errors.Wrap(err, "ops: shuffle combine received batches")
	}
	defer out.Release()

	bt, err := table.FromRecordBatch(out)
	if err != nil {
		return "", errors.Wrap(err, "ops: shuffle wrap result")
	}
	return reg.Put(bt), nil
}

// ShuffleTwo shuffles left and right on their respective key columns using
// two freshly drawn edge ids, always assigning left the lower id so a
// caller reading two shuffle_two calls' logs can tell them apart (spec.md
// §4.4's two-sided shuffle used ahead of a distributed join).
func ShuffleTwo(ctx context.Context, tctx *tmctx.Context, reg *table.Registry, leftID string, leftKeys []int, rightID string, rightKeys []int) (string, string, error) {
	leftEdge := tctx.NextSequence()
	rightEdge := tctx.NextSequence()

	leftOut, err := Shuffle(ctx, tctx, reg, leftID, leftKeys, leftEdge)
	if err != nil {
		return "", "", errors.Wrap(err, "ops: shuffle_two left")
	}
	rightOut, err := Shuffle(ctx, tctx, reg, rightID, rightKeys, rightEdge)
	if err != nil {
		reg.Remove(leftOut)
		return "", "", errors.Wrap(err, "ops: shuffle_two right")
	}
	return leftOut, rightOut, nil
}

// runUntilComplete busy-polls isComplete until it reports done or errors.
// spec.md §9 notes that a faithful rewrite of the original's blocking
// distributed calls should expose exactly this kind of helper around the
// cooperative, caller-driven progress model the rest of this module uses;
// pkg/ops's distributed operators are the callers that actually need to
// block end to end, so the helper lives here rather than in a test file.
func runUntilComplete(ctx context.Context, isComplete func(context.Context) (bool, error)) error {
	for {
		done, err := isComplete(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
