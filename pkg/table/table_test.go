package table

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func buildBatch(t *testing.T, ids []int64, vals []string) RecordBatch {
	t.Helper()
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "val", Type: arrow.BinaryTypes.String},
	}, nil)

	idBuilder := array.NewInt64Builder(pool)
	defer idBuilder.Release()
	idBuilder.AppendValues(ids, nil)

	valBuilder := array.NewStringBuilder(pool)
	defer valBuilder.Release()
	valBuilder.AppendValues(vals, nil)

	idArr := idBuilder.NewArray()
	defer idArr.Release()
	valArr := valBuilder.NewArray()
	defer valArr.Release()

	return array.NewRecord(schema, []arrow.Array{idArr, valArr}, int64(len(ids)))
}

func TestNewRejectsSchemaMismatch(t *testing.T) {
	batch := buildBatch(t, []int64{1}, []string{"a"})
	defer batch.Release()

	otherSchema := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)
	_, err := New(otherSchema, []RecordBatch{batch})
	require.Error(t, err)
}

func TestNumRowsSumsBatches(t *testing.T) {
	b1 := buildBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer b1.Release()
	b2 := buildBatch(t, []int64{3}, []string{"c"})
	defer b2.Release()

	tbl, err := New(b1.Schema(), []RecordBatch{b1, b2})
	require.NoError(t, err)
	defer tbl.Release()

	require.EqualValues(t, 3, tbl.NumRows())
	require.Equal(t, 2, tbl.NumCols())
}

func TestSchemaCompatibleIgnoresNames(t *testing.T) {
	a := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := arrow.NewSchema([]arrow.Field{{Name: "other_id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	require.True(t, SchemaCompatible(a, b))

	c := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.BinaryTypes.String}}, nil)
	require.False(t, SchemaCompatible(a, c))
}

func TestRowValue(t *testing.T) {
	batch := buildBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer batch.Release()

	row := NewRow(batch, 1)
	v, err := row.Value(0)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	v, err = row.Value(1)
	require.NoError(t, err)
	require.Equal(t, "b", v)

	_, err = row.Value(5)
	require.Error(t, err)
}
