package kernel

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// SplitByPartition builds one record per distinct value in
// [0, numPartitions) of partitionOf, holding the rows assigned to that
// partition in their original relative order (stable). Partitions with no
// rows are omitted from the result map, matching the original's
// per-partition table map which never held empty tables either.
//
// This generalizes the original's per-type CreateSplitter factory
// (table_api.cpp's HashPartitionArrays) into the same columnAppender
// dispatch every other kernel in this package uses.
func SplitByPartition(mem memory.Allocator, batch arrow.Record, partitionOf []int, numPartitions int) (map[int]arrow.Record, error) {
	if int64(len(partitionOf)) != batch.NumRows() {
		return nil, errors.Errorf("kernel: partition vector length %d does not match batch rows %d", len(partitionOf), batch.NumRows())
	}

	fields := batch.Schema().Fields()
	appendersByPartition := make(map[int][]*columnAppender, numPartitions)
	counts := make(map[int]int64, numPartitions)

	defer func() {
		for _, appenders := range appendersByPartition {
			releaseAppenders(appenders)
		}
	}()

	for row, p := range partitionOf {
		if p < 0 || p >= numPartitions {
			return nil, errors.Errorf("kernel: partition %d out of range [0,%d) at row %d", p, numPartitions, row)
		}
		appenders, ok := appendersByPartition[p]
		if !ok {
			var err error
			appenders, err = newAppenders(fields, mem)
			if err != nil {
				return nil, err
			}
			appendersByPartition[p] = appenders
		}
		for col, a := range appenders {
			a.appendRow(batch.Column(col), row)
		}
		counts[p]++
	}

	out := make(map[int]arrow.Record, len(appendersByPartition))
	for p, appenders := range appendersByPartition {
		out[p] = finishAppenders(batch.Schema(), appenders, counts[p])
	}
	return out, nil
}
