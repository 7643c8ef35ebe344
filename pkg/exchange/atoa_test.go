package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh/pkg/transport"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func makeTestBatch(mem memory.Allocator, ids ...int64) arrow.Record {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(ids, nil)
	arr := b.NewArray()
	defer arr.Release()
	return array.NewRecord(testSchema, []arrow.Array{arr}, int64(len(ids)))
}

// runUntilComplete drives IsComplete in a tight loop, as spec.md §9
// suggests a faithful rewrite should (a run_until_complete helper standing
// in for the source's busy-wait).
func runUntilComplete(t *testing.T, ctx context.Context, e *Exchange, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		done, err := e.IsComplete(ctx)
		require.NoError(t, err)
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("exchange did not complete within %s", timeout)
		}
	}
}

func TestExchangeSingleRankLoopback(t *testing.T) {
	mem := memory.NewGoAllocator()
	channels := transport.NewInProcessGroup(1)
	demux := NewDemux(channels[0])

	var received []int64
	e, err := New(Params{
		Demux:     demux,
		Sources:   []int{0},
		Targets:   []int{0},
		EdgeID:    1,
		Schema:    testSchema,
		Allocator: mem,
		OnReceive: func(source int, batch arrow.Record) {
			require.Equal(t, 0, source)
			col := batch.Column(0).(*array.Int64)
			for i := 0; i < col.Len(); i++ {
				received = append(received, col.Value(i))
			}
		},
	})
	require.NoError(t, err)
	require.Equal(t, StateInit, e.State())

	batch := makeTestBatch(mem, 1, 2, 3)
	defer batch.Release()
	require.NoError(t, e.Insert(batch, 0))
	require.Equal(t, StateRunning, e.State())
	require.NoError(t, e.Finish())
	require.NoError(t, e.Finish()) // idempotent

	runUntilComplete(t, context.Background(), e, time.Second)
	require.Equal(t, StateDone, e.State())
	require.Equal(t, []int64{1, 2, 3}, received)
}

func TestExchangeTwoRanksAllToAll(t *testing.T) {
	mem := memory.NewGoAllocator()
	channels := transport.NewInProcessGroup(2)

	var mu sync.Mutex
	received := map[int][]int64{0: nil, 1: nil}

	exchanges := make([]*Exchange, 2)
	for rank := 0; rank < 2; rank++ {
		rank := rank
		demux := NewDemux(channels[rank])
		e, err := New(Params{
			Demux:   demux,
			Sources: []int{0, 1},
			Targets: []int{0, 1},
			EdgeID:  7,
			Schema:  testSchema,
			OnReceive: func(source int, batch arrow.Record) {
				mu.Lock()
				defer mu.Unlock()
				col := batch.Column(0).(*array.Int64)
				for i := 0; i < col.Len(); i++ {
					received[rank] = append(received[rank], col.Value(i))
				}
			},
		})
		require.NoError(t, err)
		exchanges[rank] = e
	}

	b0 := makeTestBatch(mem, 100)
	defer b0.Release()
	require.NoError(t, exchanges[0].Insert(b0, 1))
	require.NoError(t, exchanges[0].Finish())

	b1 := makeTestBatch(mem, 200)
	defer b1.Release()
	require.NoError(t, exchanges[1].Insert(b1, 0))
	require.NoError(t, exchanges[1].Finish())

	ctx := context.Background()
	deadline := time.Now().Add(time.Second)
	for {
		d0, err := exchanges[0].IsComplete(ctx)
		require.NoError(t, err)
		d1, err := exchanges[1].IsComplete(ctx)
		require.NoError(t, err)
		if d0 && d1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("exchanges did not complete in time")
		}
	}

	require.Equal(t, []int64{200}, received[0])
	require.Equal(t, []int64{100}, received[1])
}

func TestExchangeInsertAfterFinishFails(t *testing.T) {
	channels := transport.NewInProcessGroup(1)
	e, err := New(Params{
		Demux:   NewDemux(channels[0]),
		Sources: []int{0},
		Targets: []int{0},
		EdgeID:  1,
		Schema:  testSchema,
		OnReceive: func(int, arrow.Record) {
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Finish())

	batch := makeTestBatch(memory.NewGoAllocator(), 1)
	defer batch.Release()
	err = e.Insert(batch, 0)
	require.Error(t, err)
}

func TestExchangeHighWaterMarkReturnsWouldBlock(t *testing.T) {
	channels := transport.NewInProcessGroup(2)
	e, err := New(Params{
		Demux:         NewDemux(channels[0]),
		Sources:       []int{0, 1},
		Targets:       []int{0, 1},
		EdgeID:        3,
		Schema:        testSchema,
		HighWaterMark: 1,
		OnReceive:     func(int, arrow.Record) {},
	})
	require.NoError(t, err)

	mem := memory.NewGoAllocator()
	b1 := makeTestBatch(mem, 1)
	defer b1.Release()
	b2 := makeTestBatch(mem, 2)
	defer b2.Release()

	require.NoError(t, e.Insert(b1, 1))
	err = e.Insert(b2, 1)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestExchangeUnknownTargetRejected(t *testing.T) {
	channels := transport.NewInProcessGroup(2)
	e, err := New(Params{
		Demux:     NewDemux(channels[0]),
		Sources:   []int{0, 1},
		Targets:   []int{1},
		EdgeID:    4,
		Schema:    testSchema,
		OnReceive: func(int, arrow.Record) {},
	})
	require.NoError(t, err)

	batch := makeTestBatch(memory.NewGoAllocator(), 1)
	defer batch.Release()
	err = e.Insert(batch, 0)
	require.Error(t, err)
}
