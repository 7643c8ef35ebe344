package tmctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitLoopbackDefaults(t *testing.T) {
	ctx, err := InitLoopback()
	require.NoError(t, err)
	require.Equal(t, 0, ctx.Rank())
	require.Equal(t, 1, ctx.WorldSize())
	require.NotNil(t, ctx.Allocator())
	require.NoError(t, ctx.Finalize())
	// Finalize is idempotent.
	require.NoError(t, ctx.Finalize())
}

func TestNextSequenceMonotonic(t *testing.T) {
	ctx, err := InitLoopback()
	require.NoError(t, err)
	defer ctx.Finalize()

	first := ctx.NextSequence()
	second := ctx.NextSequence()
	require.Equal(t, first+1, second)
}

func TestNeighboursExcludesSelfByDefault(t *testing.T) {
	ctx, err := InitLoopback()
	require.NoError(t, err)
	defer ctx.Finalize()

	require.Empty(t, ctx.Neighbours(false))
	require.Equal(t, []int{0}, ctx.Neighbours(true))
}

func TestInitDistributedRequiresChannel(t *testing.T) {
	_, err := InitDistributed(Params{})
	require.Error(t, err)
}
