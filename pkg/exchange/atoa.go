// Package exchange implements the all-to-all table exchange spec.md §4.3
// describes: a per-edge, streaming, backpressured send/receive primitive
// that pkg/join and pkg/ops build every distributed operator on top of.
package exchange

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pkg/exchange")

// State is one node of the AToA state machine (spec.md §4.3).
type State int

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrWouldBlock is returned by Insert when the outbound buffer has reached
// the configured high-water mark; the caller should drive IsComplete before
// retrying (spec.md §4.3 backpressure).
var ErrWouldBlock = errors.New("exchange: insert would block")

// ReceiveFunc is invoked at most once per received batch, from within
// IsComplete. It must not call back into mutating methods of the owning
// Exchange for the same edge. The batch is only valid for the duration of
// the call unless the callback retains it (arrow.Record.Retain) itself.
type ReceiveFunc func(source int, batch arrow.Record)

// Params constructs an Exchange. EdgeID must be identical across every peer
// participating in this logical exchange; reusing an edge id for a second,
// concurrently-live exchange is undefined (spec.md §4.3).
type Params struct {
	Demux      *Demux
	Sources    []int
	Targets    []int
	EdgeID     int64
	OnReceive  ReceiveFunc
	Schema     *arrow.Schema
	Allocator  memory.Allocator
	Logger     log.Logger
	Registerer prometheus.Registerer

	// HighWaterMark bounds outbound in-flight batches; 0 means unbounded,
	// matching the original's default (spec.md §9 open question).
	HighWaterMark int
}

func (p *Params) validate() error {
	if p.Demux == nil {
		return errors.New("exchange: demux is required")
	}
	if p.OnReceive == nil {
		return errors.New("exchange: OnReceive is required")
	}
	if p.Schema == nil {
		return errors.New("exchange: schema is required")
	}
	if p.Allocator == nil {
		p.Allocator = memory.NewGoAllocator()
	}
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	return nil
}

// Exchange is one edge's all-to-all state, shared across every source and
// target rank of that edge.
type Exchange struct {
	demux     *Demux
	edgeID    int64
	sources   map[int]bool
	targets   map[int]bool
	onReceive ReceiveFunc
	schema    *arrow.Schema
	mem       memory.Allocator
	logger    log.Logger
	hwm       int
	metrics   *metrics

	mu               sync.Mutex
	state            State
	localFinished    bool
	finReceivedFrom  map[int]bool
	outboundInFlight int
	err              error
}

// New constructs an Exchange in state INIT.
func New(p Params) (*Exchange, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	sources := toSet(p.Sources)
	targets := toSet(p.Targets)
	e := &Exchange{
		demux:           p.Demux,
		edgeID:          p.EdgeID,
		sources:         sources,
		targets:         targets,
		onReceive:       p.OnReceive,
		schema:          p.Schema,
		mem:             p.Allocator,
		logger:          p.Logger,
		hwm:             p.HighWaterMark,
		metrics:         newMetrics(p.Registerer, p.EdgeID),
		state:           StateInit,
		finReceivedFrom: make(map[int]bool, len(sources)),
	}
	return e, nil
}

func toSet(ranks []int) map[int]bool {
	m := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		m[r] = true
	}
	return m
}

// State returns the current state machine node.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Insert enqueues batch for asynchronous delivery to target. Non-blocking:
// it either hands the batch to the transport or returns ErrWouldBlock.
func (e *Exchange) Insert(batch arrow.Record, target int) error {
	e.mu.Lock()
	if e.state == StateFailed {
		err := e.err
		e.mu.Unlock()
		return err
	}
	if e.state == StateDraining || e.state == StateDone {
		e.mu.Unlock()
		return errors.New("exchange: insert after finish")
	}
	if !e.targets[target] {
		e.mu.Unlock()
		return errors.Errorf("exchange: target %d is not in the target set", target)
	}
	if e.hwm > 0 && e.outboundInFlight >= e.hwm {
		e.mu.Unlock()
		e.metrics.wouldBlockTotal.Inc()
		return ErrWouldBlock
	}

	payload, err := encodeFrame(e.mem, header{EdgeID: e.edgeID, Source: int32(e.demux.Rank()), Target: int32(target), Kind: kindBatch}, batch)
	if err != nil {
		e.mu.Unlock()
		return errors.Wrap(err, "exchange: encode batch frame")
	}

	e.outboundInFlight++
	if e.state == StateInit {
		e.state = StateRunning
	}
	e.mu.Unlock()

	if sendErr := e.demux.Send(target, payload, e.onSendComplete); sendErr != nil {
		e.fail(sendErr)
		return sendErr
	}
	e.metrics.batchesInserted.Inc()
	return nil
}

func (e *Exchange) onSendComplete(err error) {
	e.mu.Lock()
	e.outboundInFlight--
	e.mu.Unlock()
	if err != nil {
		e.fail(err)
	}
}

func (e *Exchange) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateFailed {
		e.state = StateFailed
		e.err = err
		e.metrics.failuresTotal.Inc()
		level.Error(e.logger).Log("msg", "exchange failed", "edge_id", e.edgeID, "err", err)
	}
}

// Finish marks that no further local Insert calls will occur and sends FIN
// to every target, including this rank if it is one of them. Idempotent.
func (e *Exchange) Finish() error {
	e.mu.Lock()
	if e.localFinished {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateFailed {
		err := e.err
		e.mu.Unlock()
		return err
	}
	e.localFinished = true
	e.state = StateDraining
	targets := make([]int, 0, len(e.targets))
	for t := range e.targets {
		targets = append(targets, t)
	}
	e.mu.Unlock()

	for _, t := range targets {
		payload, err := encodeFrame(e.mem, header{EdgeID: e.edgeID, Source: int32(e.demux.Rank()), Target: int32(t), Kind: kindFin}, nil)
		if err != nil {
			e.fail(err)
			return err
		}
		if err := e.demux.Send(t, payload, func(err error) {
			if err != nil {
				e.fail(err)
			}
		}); err != nil {
			e.fail(err)
			return err
		}
	}
	return nil
}

// IsComplete advances transport progress, drains and dispatches any
// received frames for this edge, and reports whether the exchange has
// reached DONE. Bounded per call: it drains exactly what the transport has
// ready, never blocking on more arriving (spec.md §4.3).
func (e *Exchange) IsComplete(ctx context.Context) (bool, error) {
	e.mu.Lock()
	switch e.state {
	case StateFailed:
		err := e.err
		e.mu.Unlock()
		return false, err
	case StateDone:
		e.mu.Unlock()
		return true, nil
	}
	e.mu.Unlock()

	spanCtx, span := tracer.Start(ctx, "Exchange.IsComplete")
	defer span.End()

	if err := e.demux.Progress(spanCtx); err != nil {
		e.fail(err)
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		source, payload, ok := e.demux.PopFrame(e.edgeID)
		if !ok {
			break
		}
		h, batch, err := decodeFrame(e.mem, payload)
		if err != nil {
			e.state = StateFailed
			e.err = err
			return false, err
		}
		switch h.Kind {
		case kindBatch:
			e.metrics.batchesReceived.Inc()
			e.onReceive(source, batch)
			batch.Release()
		case kindFin:
			e.finReceivedFrom[source] = true
		}
	}

	if !e.localFinished {
		return false, nil
	}
	if e.outboundInFlight > 0 {
		return false, nil
	}
	for s := range e.sources {
		if !e.finReceivedFrom[s] {
			return false, nil
		}
	}

	e.state = StateDone
	level.Debug(e.logger).Log("msg", "exchange complete", "edge_id", e.edgeID)
	return true, nil
}
