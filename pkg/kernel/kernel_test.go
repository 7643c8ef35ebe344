package kernel

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func mkBatch(t *testing.T, ids []int64, vals []string) arrow.Record {
	t.Helper()
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "val", Type: arrow.BinaryTypes.String},
	}, nil)

	ib := array.NewInt64Builder(pool)
	defer ib.Release()
	ib.AppendValues(ids, nil)
	vb := array.NewStringBuilder(pool)
	defer vb.Release()
	vb.AppendValues(vals, nil)

	ia := ib.NewArray()
	defer ia.Release()
	va := vb.NewArray()
	defer va.Release()

	return array.NewRecord(schema, []arrow.Array{ia, va}, int64(len(ids)))
}

func TestTakeByIndicesPreservesOrder(t *testing.T) {
	mem := memory.NewGoAllocator()
	batch := mkBatch(t, []int64{10, 20, 30}, []string{"a", "b", "c"})
	defer batch.Release()

	out, err := TakeByIndices(mem, batch, []int{2, 0})
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 2, out.NumRows())
	require.EqualValues(t, 30, out.Column(0).(*array.Int64).Value(0))
	require.EqualValues(t, 10, out.Column(0).(*array.Int64).Value(1))
}

func TestFilterByMask(t *testing.T) {
	mem := memory.NewGoAllocator()
	batch := mkBatch(t, []int64{1, 2, 3}, []string{"a", "b", "c"})
	defer batch.Release()

	out, err := FilterByMask(mem, batch, []bool{true, false, true})
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 2, out.NumRows())
	require.EqualValues(t, 1, out.Column(0).(*array.Int64).Value(0))
	require.EqualValues(t, 3, out.Column(0).(*array.Int64).Value(1))
}

func TestFilterByMaskRejectsWrongLength(t *testing.T) {
	mem := memory.NewGoAllocator()
	batch := mkBatch(t, []int64{1}, []string{"a"})
	defer batch.Release()

	_, err := FilterByMask(mem, batch, []bool{true, false})
	require.Error(t, err)
}

func TestSplitByPartitionIsStableAndComplete(t *testing.T) {
	mem := memory.NewGoAllocator()
	batch := mkBatch(t, []int64{1, 2, 3, 4}, []string{"a", "b", "c", "d"})
	defer batch.Release()

	parts, err := SplitByPartition(mem, batch, []int{0, 1, 0, 1}, 2)
	require.NoError(t, err)
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()

	require.Len(t, parts, 2)
	require.EqualValues(t, 2, parts[0].NumRows())
	require.EqualValues(t, 1, parts[0].Column(0).(*array.Int64).Value(0))
	require.EqualValues(t, 3, parts[0].Column(0).(*array.Int64).Value(1))
	require.EqualValues(t, 2, parts[1].Column(0).(*array.Int64).Value(0))
	require.EqualValues(t, 4, parts[1].Column(0).(*array.Int64).Value(1))
}

func TestConcatenateBatchesPreservesOrder(t *testing.T) {
	mem := memory.NewGoAllocator()
	b1 := mkBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer b1.Release()
	b2 := mkBatch(t, []int64{3}, []string{"c"})
	defer b2.Release()

	out, err := ConcatenateBatches(mem, []arrow.Record{b1, b2})
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 3, out.NumRows())
	col := out.Column(0).(*array.Int64)
	require.EqualValues(t, 1, col.Value(0))
	require.EqualValues(t, 2, col.Value(1))
	require.EqualValues(t, 3, col.Value(2))
}

func TestHashRowDeterministicAndOrderSensitive(t *testing.T) {
	batch := mkBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer batch.Release()

	h1 := HashRow(batch, 0, []int{0, 1})
	h2 := HashRow(batch, 0, []int{0, 1})
	require.Equal(t, h1, h2)

	h3 := HashRow(batch, 0, []int{1, 0})
	require.NotEqual(t, h1, h3, "column order must affect the hash")
}

func TestRowsEqual(t *testing.T) {
	a := mkBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer a.Release()
	b := mkBatch(t, []int64{2, 9}, []string{"b", "z"})
	defer b.Release()

	require.True(t, RowsEqual(a, 1, b, 0, []int{0, 1}))
	require.False(t, RowsEqual(a, 0, b, 0, []int{0, 1}))
}

func TestSortIndicesStable(t *testing.T) {
	batch := mkBatch(t, []int64{3, 1, 3, 2}, []string{"x", "y", "z", "w"})
	defer batch.Release()

	idx, err := SortIndices(batch, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 0, 2}, idx)

	sorted, err := TakeByIndices(memory.NewGoAllocator(), batch, idx)
	require.NoError(t, err)
	defer sorted.Release()

	vals := sorted.Column(1).(*array.String)
	require.Equal(t, "y", vals.Value(0))
	require.Equal(t, "w", vals.Value(1))
	require.Equal(t, "x", vals.Value(2))
	require.Equal(t, "z", vals.Value(3))
}
