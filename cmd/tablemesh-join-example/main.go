// Command tablemesh-join-example drives a streaming ArrowJoin across a
// simulated group of ranks in one process, generating random left/right
// tuples per rank the way original_source/cpp/src/examples/join_test.cpp
// drove the original's MPI-backed ArrowJoin: every rank inserts count
// tuples per round, targeting round-robin peers, polling isComplete after
// each round to keep the transport progressing.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/join"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
	"github.com/tablemesh/tablemesh/pkg/transport"
)

var joinSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "cost", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func main() {
	worldSize := flag.Int("world-size", 4, "number of simulated ranks")
	count := flag.Int("count", 1000, "tuples inserted per rank per round")
	rounds := flag.Int("rounds", 1, "number of insert rounds per rank")
	flag.Parse()

	channels := transport.NewInProcessGroup(*worldSize)

	var wg sync.WaitGroup
	var joinedTotal int64
	var mu sync.Mutex

	start := time.Now()
	for rank := 0; rank < *worldSize; rank++ {
		rank := rank
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runRank(channels[rank], *worldSize, *count, *rounds, func(rows int64) {
				mu.Lock()
				joinedTotal += rows
				mu.Unlock()
			}); err != nil {
				log.Printf("rank %d failed: %v", rank, err)
			}
		}()
	}
	wg.Wait()

	log.Printf("joined %d rows across %d ranks in %s", joinedTotal, *worldSize, time.Since(start))
}

func runRank(channel transport.Channel, worldSize, count, rounds int, onJoined func(rows int64)) error {
	tctx, err := tmctx.InitDistributed(tmctx.Params{Channel: channel})
	if err != nil {
		return err
	}
	defer tctx.Finalize()

	rank := tctx.Rank()
	mem := memory.NewGoAllocator()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(rank)))
	valueRange := count * worldSize

	neighbours := tctx.Neighbours(true)
	var joined bool
	aj, err := join.NewArrowJoin(join.ArrowJoinParams{
		Demux:       tctx.Demux(),
		Sources:     neighbours,
		Targets:     neighbours,
		LeftEdgeID:  0,
		RightEdgeID: 1,
		LeftSchema:  joinSchema,
		RightSchema: joinSchema,
		JoinConfig:  config.NewInnerJoin(0, 0),
		Allocator:   mem,
		Logger:      tctx.Logger(),
		Callback: func(result arrow.Record) bool {
			joined = true
			onJoined(result.NumRows())
			return true
		},
	})
	if err != nil {
		return err
	}
	defer aj.Close()

	for round := 0; round < rounds; round++ {
		target := (round + rank) % worldSize
		if err := aj.LeftInsert(randomBatch(mem, rng, count, valueRange), target); err != nil {
			return err
		}
		if err := aj.RightInsert(randomBatch(mem, rng, count, valueRange), target); err != nil {
			return err
		}
		// Progress comms between rounds, as the original's per-round
		// isComplete() call did.
		if _, err := aj.IsComplete(context.Background()); err != nil {
			return err
		}
	}

	if err := aj.Finish(); err != nil {
		return err
	}
	deadline := time.Now().Add(30 * time.Second)
	for {
		done, err := aj.IsComplete(context.Background())
		if err != nil {
			return err
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
	}
	_ = joined
	return nil
}

func randomBatch(mem memory.Allocator, rng *rand.Rand, count, valueRange int) arrow.Record {
	idBuilder := array.NewInt64Builder(mem)
	defer idBuilder.Release()
	costBuilder := array.NewInt64Builder(mem)
	defer costBuilder.Release()

	for i := 0; i < count; i++ {
		idBuilder.Append(int64(rng.Intn(valueRange)))
		costBuilder.Append(int64(i))
	}

	idArr := idBuilder.NewArray()
	defer idArr.Release()
	costArr := costBuilder.NewArray()
	defer costArr.Release()

	return array.NewRecord(joinSchema, []arrow.Array{idArr, costArr}, int64(count))
}
