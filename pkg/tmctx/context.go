// Package tmctx provides the per-process handle every distributed operator
// is constructed from: rank, world size, an edge-id sequence, and the
// allocator batches are built with.
package tmctx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tablemesh/tablemesh/pkg/exchange"
	"github.com/tablemesh/tablemesh/pkg/transport"
)

// Params holds parameters for constructing a new [Context]. Only Channel is
// required; the rest default the way engine.Params does.
type Params struct {
	Logger     log.Logger
	Registerer prometheus.Registerer
	Allocator  memory.Allocator

	// Channel is the transport this context drives. Its Rank/WorldSize
	// define the group; use transport.NewLoopback() for world_size==1.
	Channel transport.Channel
}

func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Allocator == nil {
		p.Allocator = memory.NewGoAllocator()
	}
	if p.Channel == nil {
		return errors.New("tmctx: channel is required")
	}
	return nil
}

// Context is the handle every table, exchange, and operator in this module
// is built from. It is not a context.Context: it carries no deadline or
// cancellation, matching spec.md's cooperative, caller-driven progress
// model, and is passed alongside a standard context.Context wherever an
// operation needs one for logging/tracing correlation.
type Context struct {
	logger     log.Logger
	registerer prometheus.Registerer
	allocator  memory.Allocator
	channel    transport.Channel

	seq atomic.Int64

	finalized atomic.Bool

	demuxOnce sync.Once
	demux     *exchange.Demux
}

// InitDistributed constructs a Context bound to the given transport
// channel. The channel's Rank/WorldSize become the context's, matching the
// original's init_distributed(transport_config) entry point.
func InitDistributed(params Params) (*Context, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	c := &Context{
		logger:     params.Logger,
		registerer: params.Registerer,
		allocator:  params.Allocator,
		channel:    params.Channel,
	}
	level.Info(c.logger).Log("msg", "context initialized", "rank", c.Rank(), "world_size", c.WorldSize())
	return c, nil
}

// InitLoopback is InitDistributed with a single-rank in-process channel, for
// world_size==1 usage and single-process tests.
func InitLoopback() (*Context, error) {
	return InitDistributed(Params{Channel: transport.NewLoopback()})
}

func (c *Context) Rank() int      { return c.channel.Rank() }
func (c *Context) WorldSize() int { return c.channel.WorldSize() }

// Neighbours returns every rank in [0, world_size), optionally including
// this context's own rank.
func (c *Context) Neighbours(includeSelf bool) []int {
	out := make([]int, 0, c.WorldSize())
	for r := 0; r < c.WorldSize(); r++ {
		if r == c.Rank() && !includeSelf {
			continue
		}
		out = append(out, r)
	}
	return out
}

// NextSequence returns a monotonically increasing, per-context integer
// suitable for use as an edge id. shuffle_two (pkg/ops) draws two of these
// per call so left work is always assigned a lower edge id than right.
func (c *Context) NextSequence() int64 {
	return c.seq.Add(1) - 1
}

// Demux returns the context's shared exchange multiplexer, creating it on
// first use. Every AToA and ArrowJoin built from this context should share
// this Demux so their frames all flow over the one underlying transport
// channel, distinguished only by edge id.
func (c *Context) Demux() *exchange.Demux {
	c.demuxOnce.Do(func() {
		c.demux = exchange.NewDemux(c.channel)
	})
	return c.demux
}

func (c *Context) Allocator() memory.Allocator       { return c.allocator }
func (c *Context) Logger() log.Logger                { return c.logger }
func (c *Context) Registerer() prometheus.Registerer { return c.registerer }
func (c *Context) Channel() transport.Channel        { return c.channel }

// Finalize releases the underlying transport. It is idempotent.
func (c *Context) Finalize() error {
	if !c.finalized.CompareAndSwap(false, true) {
		return nil
	}
	level.Info(c.logger).Log("msg", "context finalized", "rank", c.Rank())
	return c.channel.Close()
}

// Barrier sends tag to every rank and drives transport progress until it
// has received a message from every rank. Any message that arrives on the
// channel while it waits counts as that rank's marker, whatever its
// payload: the tag is sent but not checked on receipt, and the messages it
// consumes are not passed on. It is a thin convenience built on the
// same Progress loop AToA uses; ops that need synchronization without a
// full exchange (e.g. tests) can use it directly.
func (c *Context) Barrier(ctx context.Context, tag string) error {
	// A barrier is a degenerate all-to-all: every peer sends an empty
	// marker to every peer and waits to receive one from every peer.
	// Kept here rather than in pkg/exchange since it never carries a
	// batch payload and has no completion callback.
	pending := make(map[int]bool, c.WorldSize())
	for _, r := range c.Neighbours(true) {
		pending[r] = true
		if err := c.channel.Send(r, []byte(tag), nil); err != nil {
			return errors.Wrap(err, "tmctx: barrier send")
		}
	}
	for len(pending) > 0 {
		if err := c.channel.Progress(ctx); err != nil {
			return errors.Wrap(err, "tmctx: barrier progress")
		}
		for {
			msg, ok := c.channel.Poll()
			if !ok {
				break
			}
			delete(pending, msg.Source)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
