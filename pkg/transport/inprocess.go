package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// NewInProcessGroup builds worldSize Channels that deliver to each other
// through shared in-memory queues. Rank 0 with worldSize 1 is the loopback
// transport spec.md §6 calls out for the single-worker case; larger groups
// simulate the MPI-like point-to-point group inside one process, which is
// what the test suite uses to exercise multi-worker behavior without a real
// network.
func NewInProcessGroup(worldSize int) []Channel {
	if worldSize <= 0 {
		panic("transport: worldSize must be positive")
	}

	hub := &inProcessHub{
		worldSize: worldSize,
		inbound:   make([][]Message, worldSize),
	}

	channels := make([]Channel, worldSize)
	for r := 0; r < worldSize; r++ {
		channels[r] = &inProcessChannel{rank: r, hub: hub}
	}
	return channels
}

// NewLoopback is NewInProcessGroup(1)[0], named for the world_size==1 case.
func NewLoopback() Channel {
	return NewInProcessGroup(1)[0]
}

type pendingSend struct {
	target     int
	payload    []byte
	onComplete func(error)
}

// inProcessHub is the shared state backing an in-process group: one inbound
// queue per rank, guarded by a single mutex. This is deliberately simple
// (spec.md's concurrency model is cooperative single-threaded per context;
// the hub only needs to be safe for the handful of goroutines used in tests
// that drive several ranks concurrently).
type inProcessHub struct {
	mu        sync.Mutex
	worldSize int
	inbound   [][]Message
	closed    bool
}

type inProcessChannel struct {
	rank    int
	hub     *inProcessHub
	pending []pendingSend
}

func (c *inProcessChannel) Rank() int      { return c.rank }
func (c *inProcessChannel) WorldSize() int { return c.hub.worldSize }

func (c *inProcessChannel) Send(target int, payload []byte, onComplete func(error)) error {
	if target < 0 || target >= c.hub.worldSize {
		return errors.Errorf("transport: target rank %d out of range [0,%d)", target, c.hub.worldSize)
	}
	c.pending = append(c.pending, pendingSend{target: target, payload: payload, onComplete: onComplete})
	return nil
}

// Progress delivers every pending send directly into the target's inbound
// queue. Because delivery is synchronous and unconditional, FIFO per
// (source, target) falls out for free: pending sends are appended in
// insertion order and delivered in that same order.
func (c *inProcessChannel) Progress(_ context.Context) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	if c.hub.closed {
		return errors.New("transport: channel closed")
	}

	for _, p := range c.pending {
		c.hub.inbound[p.target] = append(c.hub.inbound[p.target], Message{Source: c.rank, Payload: p.payload})
		if p.onComplete != nil {
			p.onComplete(nil)
		}
	}
	c.pending = c.pending[:0]
	return nil
}

func (c *inProcessChannel) Poll() (Message, bool) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	queue := c.hub.inbound[c.rank]
	if len(queue) == 0 {
		return Message{}, false
	}
	msg := queue[0]
	c.hub.inbound[c.rank] = queue[1:]
	return msg, true
}

func (c *inProcessChannel) Close() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.closed = true
	return nil
}
