package exchange

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/transport"
)

// Demux multiplexes one transport.Channel across several concurrently-live
// edges, standing in for the original's Communicator.CreateChannel — which
// handed every exchange its own Channel instance — over a transport package
// whose Channel is one physical connection per peer, not one per logical
// exchange. Every Exchange sharing a Demux calls Progress independently;
// the shared mutex makes that safe, and only the frame's edge id decides
// which Exchange eventually sees a given payload.
type Demux struct {
	channel transport.Channel

	mu    sync.Mutex
	inbox map[int64][]rawFrame
	err   error
}

type rawFrame struct {
	source  int
	payload []byte
}

// NewDemux wraps channel. One Demux should be shared by every Exchange
// built on the same underlying transport.Channel; tmctx.Context.Demux
// arranges this per context.
func NewDemux(channel transport.Channel) *Demux {
	return &Demux{
		channel: channel,
		inbox:   make(map[int64][]rawFrame),
	}
}

func (d *Demux) Rank() int      { return d.channel.Rank() }
func (d *Demux) WorldSize() int { return d.channel.WorldSize() }

// Send hands a pre-encoded frame to the underlying channel.
func (d *Demux) Send(target int, payload []byte, onComplete func(error)) error {
	return d.channel.Send(target, payload, onComplete)
}

// Progress advances the underlying transport once and routes every frame
// that arrived into its edge's inbox. A latched transport failure is
// returned on every call from then on, matching AToA's own FAILED latching
// behavior one layer up.
func (d *Demux) Progress(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	if err := d.channel.Progress(ctx); err != nil {
		d.err = err
		return err
	}
	for {
		msg, ok := d.channel.Poll()
		if !ok {
			break
		}
		edgeID, err := peekEdgeID(msg.Payload)
		if err != nil {
			d.err = errors.Wrap(err, "exchange: demux routing")
			return d.err
		}
		d.inbox[edgeID] = append(d.inbox[edgeID], rawFrame{source: msg.Source, payload: msg.Payload})
	}
	return nil
}

// PopFrame returns and removes the oldest queued frame for edgeID, if any.
// Frames for a given (source, edgeID) pair are returned in the order
// Progress observed them, which is the transport's own FIFO-per-source
// order (spec.md §5).
func (d *Demux) PopFrame(edgeID int64) (int, []byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue := d.inbox[edgeID]
	if len(queue) == 0 {
		return 0, nil, false
	}
	f := queue[0]
	d.inbox[edgeID] = queue[1:]
	return f.source, f.payload, true
}

// Close closes the underlying channel. Only the owner of the Demux (the
// Context) should call this.
func (d *Demux) Close() error {
	return d.channel.Close()
}
