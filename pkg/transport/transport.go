// Package transport implements the point-to-point send/recv primitive that
// pkg/exchange builds the all-to-all exchange on top of. It is named as an
// external collaborator in spec.md §1 ("the underlying transport"), but
// since there is no existing Go library that exposes exactly this shape,
// tablemesh ships two small implementations: an in-process group (used for
// world_size==1 loopback and for tests that simulate a worker group inside
// one process) and a TCP-backed group for real distributed deployment.
package transport

import "context"

// Message is a received, tagged payload. Source identifies the sending
// rank; the payload's own framing (see pkg/exchange) carries the edge id,
// target rank, and kind.
type Message struct {
	Source  int
	Payload []byte
}

// Channel is point-to-point send/recv between ranked peers in a fixed-size
// group. It is non-blocking: Send enqueues, Progress advances the
// transport, and Poll drains whatever has arrived. Callers advance progress
// by calling Progress in a loop, exactly as spec.md §4.3 describes for the
// all-to-all exchange itself.
type Channel interface {
	Rank() int
	WorldSize() int

	// Send enqueues payload for delivery to target. onComplete, if non-nil,
	// is invoked once the payload has been handed off to the peer. The
	// in-process channel queues the send and invokes onComplete from within
	// a later Progress call. The TCP channel delivers a send to its own rank
	// and invokes onComplete before Send returns; for other ranks it invokes
	// onComplete from the peer's writer goroutine, and Send blocks while
	// that peer's 64-frame send queue is full.
	Send(target int, payload []byte, onComplete func(error)) error

	// Progress advances the transport. The in-process channel delivers its
	// queued sends to their targets' inbound queues here. The TCP channel
	// moves bytes on background goroutines, so its Progress only reports a
	// latched failure.
	Progress(ctx context.Context) error

	// Poll pops the next received message, if any, in FIFO order per
	// source. It never blocks.
	Poll() (Message, bool)

	Close() error
}
