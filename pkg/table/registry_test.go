package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh/pkg/status"
)

func TestRegistryPutGetRemove(t *testing.T) {
	batch := buildBatch(t, []int64{1}, []string{"a"})
	defer batch.Release()
	tbl, err := FromRecordBatch(batch)
	require.NoError(t, err)

	r := NewRegistry()
	id := r.Put(tbl)
	require.NotEmpty(t, id)

	got, err := r.Get(id)
	require.NoError(t, err)
	require.Same(t, tbl, got)

	r.Remove(id)
	_, err = r.Get(id)
	require.Error(t, err)
	require.Equal(t, status.KeyError, status.CodeOf(err))
}

func TestRegistryGetMissingIsKeyError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("does-not-exist")
	require.Error(t, err)
	require.Equal(t, status.KeyError, status.CodeOf(err))
}

func TestRegistryPutWithIDReplaces(t *testing.T) {
	batch := buildBatch(t, []int64{1}, []string{"a"})
	defer batch.Release()
	tbl1, err := FromRecordBatch(batch)
	require.NoError(t, err)
	tbl2, err := FromRecordBatch(batch)
	require.NoError(t, err)

	r := NewRegistry()
	r.PutWithID("fixed", tbl1)
	r.PutWithID("fixed", tbl2)

	got, err := r.Get("fixed")
	require.NoError(t, err)
	require.Same(t, tbl2, got)
	require.Equal(t, 1, r.Len())
}
