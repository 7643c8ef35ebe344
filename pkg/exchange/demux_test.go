package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh/pkg/transport"
)

func TestDemuxRoutesByEdgeID(t *testing.T) {
	channels := transport.NewInProcessGroup(2)
	sender := NewDemux(channels[0])
	receiver := NewDemux(channels[1])

	h1 := header{EdgeID: 1, Source: 0, Target: 1, Kind: kindFin}
	p1, err := encodeFrame(nil, h1, nil)
	require.NoError(t, err)
	h2 := header{EdgeID: 2, Source: 0, Target: 1, Kind: kindFin}
	p2, err := encodeFrame(nil, h2, nil)
	require.NoError(t, err)

	require.NoError(t, sender.Send(1, p1, nil))
	require.NoError(t, sender.Send(1, p2, nil))
	require.NoError(t, sender.Progress(context.Background()))
	require.NoError(t, receiver.Progress(context.Background()))

	_, _, ok := receiver.PopFrame(3)
	require.False(t, ok, "no frame should be routed to an edge with no traffic")

	source, payload, ok := receiver.PopFrame(1)
	require.True(t, ok)
	require.Equal(t, 0, source)
	require.NotEmpty(t, payload)

	_, _, ok = receiver.PopFrame(2)
	require.True(t, ok)
}
