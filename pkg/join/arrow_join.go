package join

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/exchange"
	"github.com/tablemesh/tablemesh/pkg/kernel"
)

// Callback receives the result of a completed ArrowJoin exactly once. The
// returned bool is advisory: ArrowJoin ignores it and does not log it.
type Callback func(result arrow.Record) (ok bool)

// ArrowJoinParams constructs a streaming join operator over two AToA
// exchanges sharing one edge pair.
type ArrowJoinParams struct {
	Demux         *exchange.Demux
	Sources       []int
	Targets       []int
	LeftEdgeID    int64
	RightEdgeID   int64
	LeftSchema    *arrow.Schema
	RightSchema   *arrow.Schema
	JoinConfig    config.JoinConfig
	Callback      Callback
	Allocator     memory.Allocator
	Logger        log.Logger
	HighWaterMark int
}

// ArrowJoin drives two AToA exchanges (one per side) and performs a local
// join over everything received once both sides are done (spec.md §4.6).
type ArrowJoin struct {
	left  *exchange.Exchange
	right *exchange.Exchange

	mem         memory.Allocator
	cfg         config.JoinConfig
	callback    Callback
	leftSchema  *arrow.Schema
	rightSchema *arrow.Schema

	mu            sync.Mutex
	leftBatches   []arrow.Record
	rightBatches  []arrow.Record
	callbackFired bool
	closed        bool
}

// NewArrowJoin constructs an ArrowJoin. leftEdgeID and rightEdgeID must be
// distinct and drawn from the context's sequence (as shuffle_two does),
// since both exchanges share the same Demux.
func NewArrowJoin(p ArrowJoinParams) (*ArrowJoin, error) {
	if p.Callback == nil {
		return nil, errors.New("join: callback is required")
	}
	if p.LeftEdgeID == p.RightEdgeID {
		return nil, errors.New("join: left and right edge ids must differ")
	}
	mem := p.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	aj := &ArrowJoin{mem: mem, cfg: p.JoinConfig, callback: p.Callback, leftSchema: p.LeftSchema, rightSchema: p.RightSchema}

	var err error
	aj.left, err = exchange.New(exchange.Params{
		Demux:         p.Demux,
		Sources:       p.Sources,
		Targets:       p.Targets,
		EdgeID:        p.LeftEdgeID,
		Schema:        p.LeftSchema,
		Allocator:     mem,
		Logger:        p.Logger,
		HighWaterMark: p.HighWaterMark,
		OnReceive:     aj.onReceiveLeft,
	})
	if err != nil {
		return nil, errors.Wrap(err, "join: build left exchange")
	}
	aj.right, err = exchange.New(exchange.Params{
		Demux:         p.Demux,
		Sources:       p.Sources,
		Targets:       p.Targets,
		EdgeID:        p.RightEdgeID,
		Schema:        p.RightSchema,
		Allocator:     mem,
		Logger:        p.Logger,
		HighWaterMark: p.HighWaterMark,
		OnReceive:     aj.onReceiveRight,
	})
	if err != nil {
		return nil, errors.Wrap(err, "join: build right exchange")
	}
	return aj, nil
}

func (aj *ArrowJoin) onReceiveLeft(_ int, batch arrow.Record) {
	batch.Retain()
	aj.mu.Lock()
	aj.leftBatches = append(aj.leftBatches, batch)
	aj.mu.Unlock()
}

func (aj *ArrowJoin) onReceiveRight(_ int, batch arrow.Record) {
	batch.Retain()
	aj.mu.Lock()
	aj.rightBatches = append(aj.rightBatches, batch)
	aj.mu.Unlock()
}

// LeftInsert hands a locally produced batch to the left AToA.
func (aj *ArrowJoin) LeftInsert(batch arrow.Record, target int) error {
	return aj.left.Insert(batch, target)
}

// RightInsert hands a locally produced batch to the right AToA.
func (aj *ArrowJoin) RightInsert(batch arrow.Record, target int) error {
	return aj.right.Insert(batch, target)
}

// Finish calls Finish on both underlying exchanges.
func (aj *ArrowJoin) Finish() error {
	if err := aj.left.Finish(); err != nil {
		return err
	}
	return aj.right.Finish()
}

// IsComplete advances both exchanges. The first time both report DONE, it
// performs the local join on the full concatenation of received batches
// per side, invokes the callback exactly once, and returns true on every
// call thereafter.
func (aj *ArrowJoin) IsComplete(ctx context.Context) (bool, error) {
	aj.mu.Lock()
	if aj.callbackFired {
		aj.mu.Unlock()
		return true, nil
	}
	aj.mu.Unlock()

	leftDone, err := aj.left.IsComplete(ctx)
	if err != nil {
		return false, err
	}
	rightDone, err := aj.right.IsComplete(ctx)
	if err != nil {
		return false, err
	}
	if !leftDone || !rightDone {
		return false, nil
	}

	aj.mu.Lock()
	defer aj.mu.Unlock()
	if aj.callbackFired {
		return true, nil
	}

	leftBatch, err := concatOrEmpty(aj.mem, aj.leftBatches, aj.leftSchema)
	if err != nil {
		return false, err
	}
	defer leftBatch.Release()
	rightBatch, err := concatOrEmpty(aj.mem, aj.rightBatches, aj.rightSchema)
	if err != nil {
		return false, err
	}
	defer rightBatch.Release()

	result, err := Local(aj.mem, leftBatch, rightBatch, aj.cfg)
	if err != nil {
		return false, err
	}
	defer result.Release()

	aj.callbackFired = true
	aj.callback(result)
	return true, nil
}

// concatOrEmpty concatenates batches, or builds a zero-row record of schema
// if none arrived: a side of the join legitimately receiving nothing (every
// row hashed away from this rank) is not an error.
func concatOrEmpty(mem memory.Allocator, batches []arrow.Record, schema *arrow.Schema) (arrow.Record, error) {
	if len(batches) == 0 {
		return kernel.EmptyRecord(mem, schema)
	}
	return kernel.ConcatenateBatches(mem, batches)
}

// Close releases every batch this operator retained while receiving.
func (aj *ArrowJoin) Close() error {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	if aj.closed {
		return nil
	}
	aj.closed = true
	for _, b := range aj.leftBatches {
		b.Release()
	}
	for _, b := range aj.rightBatches {
		b.Release()
	}
	aj.leftBatches = nil
	aj.rightBatches = nil
	return nil
}
