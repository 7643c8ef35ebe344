package join

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh/pkg/config"
)

func idValBatch(t *testing.T, mem memory.Allocator, ids []int64, vals []int64) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "c", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	ib.AppendValues(ids, nil)
	cb := array.NewInt64Builder(mem)
	defer cb.Release()
	cb.AppendValues(vals, nil)
	ia := ib.NewArray()
	defer ia.Release()
	ca := cb.NewArray()
	defer ca.Release()
	return array.NewRecord(schema, []arrow.Array{ia, ca}, int64(len(ids)))
}

func TestLocalInnerJoin(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := idValBatch(t, mem, []int64{1, 2, 3}, []int64{10, 20, 30})
	defer left.Release()
	right := idValBatch(t, mem, []int64{2, 3, 4}, []int64{200, 300, 400})
	defer right.Release()

	out, err := Local(mem, left, right, config.NewInnerJoin(0, 0))
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 2, out.NumRows())
	// left.id, left.c, right.id, right.c
	leftC := out.Column(1).(*array.Int64)
	rightID := out.Column(2).(*array.Int64)
	rightC := out.Column(3).(*array.Int64)
	require.EqualValues(t, 20, leftC.Value(0))
	require.EqualValues(t, 2, rightID.Value(0))
	require.EqualValues(t, 200, rightC.Value(0))
	require.EqualValues(t, 30, leftC.Value(1))
	require.EqualValues(t, 300, rightC.Value(1))
}

func TestLocalLeftJoinKeepsUnmatchedLeft(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := idValBatch(t, mem, []int64{1, 2}, []int64{10, 20})
	defer left.Release()
	right := idValBatch(t, mem, []int64{2}, []int64{200})
	defer right.Release()

	cfg := config.NewInnerJoin(0, 0)
	cfg.Kind = config.Left
	out, err := Local(mem, left, right, cfg)
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 2, out.NumRows())
	rightID := out.Column(2).(*array.Int64)
	require.True(t, rightID.IsNull(1) || rightID.Value(0) == 2)
}

func TestLocalRejectsSortAlgorithm(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := idValBatch(t, mem, []int64{1}, []int64{10})
	defer left.Release()
	right := idValBatch(t, mem, []int64{1}, []int64{100})
	defer right.Release()

	cfg := config.NewInnerJoin(0, 0)
	cfg.Algorithm = config.Sort
	_, err := Local(mem, left, right, cfg)
	require.Error(t, err)
}
