package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// DefaultMaxFrameSizeBytes bounds a single frame's payload to guard against
// a corrupt length prefix causing an unbounded allocation, matching the
// teacher's ProtobufProtocol.maxFrameSizeBytes guard.
const DefaultMaxFrameSizeBytes = 256 * 1024 * 1024

// TCPConfig describes a static, fully-connected worker group addressed by
// rank. Peers[r] is the "host:port" every other rank dials (or is dialed
// from) to reach rank r.
type TCPConfig struct {
	Rank        int
	Peers       []string
	DialTimeout time.Duration
	Logger      log.Logger
}

// NewTCPGroup establishes a full mesh of TCP connections for the group
// described by cfg and returns this rank's Channel. It blocks until every
// connection in the mesh is established or one of them fails. DialTimeout
// bounds each outbound dial; waiting for inbound connections has no
// timeout. It returns no partial mesh, since the group is static for the context's lifetime (spec.md's non-goal of dynamic
// membership) and there is no useful partial state to hand back.
//
// Connection is symmetric: rank i dials rank j for every j < i, and accepts
// the corresponding inbound connection for every j > i. Each connection
// opens with a 4-byte rank handshake so the accepting side can tell which
// peer connected without relying on accept order.
func NewTCPGroup(ctx context.Context, cfg TCPConfig) (Channel, error) {
	if cfg.Rank < 0 || cfg.Rank >= len(cfg.Peers) {
		return nil, errors.Errorf("transport: rank %d out of range for %d peers", cfg.Rank, len(cfg.Peers))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	worldSize := len(cfg.Peers)
	addr, err := newTCPAddr(cfg.Peers[cfg.Rank])
	if err != nil {
		return nil, errors.Wrap(err, "transport: invalid local address")
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, addr.Network(), addr.String())
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}

	c := &tcpChannel{
		rank:      cfg.Rank,
		worldSize: worldSize,
		logger:    logger,
		peers:     make([]*tcpPeer, worldSize),
		inbound:   make([]Message, 0, 64),
	}

	var wg sync.WaitGroup
	errs := make(chan error, worldSize)

	// Accept connections from higher-numbered ranks.
	inboundCount := worldSize - 1 - cfg.Rank
	if inboundCount > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < inboundCount; i++ {
				conn, err := ln.Accept()
				if err != nil {
					errs <- errors.Wrap(err, "transport: accept")
					return
				}
				peerRank, err := handshake(conn, cfg.Rank)
				if err != nil {
					errs <- err
					return
				}
				c.attach(peerRank, conn)
			}
		}()
	}

	// Dial lower-numbered ranks.
	for j := 0; j < cfg.Rank; j++ {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			var d net.Dialer
			conn, err := d.DialContext(dialCtx, "tcp", cfg.Peers[j])
			if err != nil {
				errs <- errors.Wrapf(err, "transport: dial rank %d", j)
				return
			}
			peerRank, err := handshake(conn, cfg.Rank)
			if err != nil {
				errs <- err
				return
			}
			c.attach(peerRank, conn)
		}()
	}

	wg.Wait()
	_ = ln.Close() // stop accepting once the mesh is formed; the group is static.
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	level.Info(logger).Log("msg", "tcp group established", "rank", cfg.Rank, "world_size", worldSize)
	return c, nil
}

func handshake(conn net.Conn, selfRank int) (int, error) {
	if err := binary.Write(conn, binary.BigEndian, uint32(selfRank)); err != nil {
		return 0, errors.Wrap(err, "transport: handshake write")
	}
	var peerRank uint32
	if err := binary.Read(conn, binary.BigEndian, &peerRank); err != nil {
		return 0, errors.Wrap(err, "transport: handshake read")
	}
	return int(peerRank), nil
}

type tcpPeer struct {
	conn    net.Conn
	sendCh  chan pendingFrame
	mu      sync.Mutex
	closeCh chan struct{}
}

type pendingFrame struct {
	payload    []byte
	onComplete func(error)
}

type tcpChannel struct {
	rank      int
	worldSize int
	logger    log.Logger

	peers []*tcpPeer

	mu      sync.Mutex
	inbound []Message
	failed  error
}

func (c *tcpChannel) Rank() int      { return c.rank }
func (c *tcpChannel) WorldSize() int { return c.worldSize }

// attach spins up the background reader/writer goroutines for a connection
// to peerRank, mirroring the teacher's prefetchWrapper: socket I/O always
// happens off the caller's goroutine, and Progress only drains what has
// already landed.
func (c *tcpChannel) attach(peerRank int, conn net.Conn) {
	p := &tcpPeer{
		conn:    conn,
		sendCh:  make(chan pendingFrame, 64),
		closeCh: make(chan struct{}),
	}
	c.peers[peerRank] = p

	go c.writeLoop(peerRank, p)
	go c.readLoop(peerRank, p)
}

func (c *tcpChannel) writeLoop(peerRank int, p *tcpPeer) {
	for {
		select {
		case frame, ok := <-p.sendCh:
			if !ok {
				return
			}
			err := writeFrame(p.conn, frame.payload)
			if frame.onComplete != nil {
				frame.onComplete(err)
			}
			if err != nil {
				level.Error(c.logger).Log("msg", "tcp write failed", "peer", peerRank, "err", err)
				c.fail(errors.Wrapf(err, "transport: write to rank %d", peerRank))
				return
			}
		case <-p.closeCh:
			return
		}
	}
}

func (c *tcpChannel) readLoop(peerRank int, p *tcpPeer) {
	for {
		payload, err := readFrame(p.conn)
		if err != nil {
			if err != io.EOF {
				level.Warn(c.logger).Log("msg", "tcp read failed", "peer", peerRank, "err", err)
				c.fail(errors.Wrapf(err, "transport: read from rank %d", peerRank))
			}
			return
		}
		c.mu.Lock()
		c.inbound = append(c.inbound, Message{Source: peerRank, Payload: payload})
		c.mu.Unlock()
	}
}

func (c *tcpChannel) fail(err error) {
	c.mu.Lock()
	if c.failed == nil {
		c.failed = err
	}
	c.mu.Unlock()
}

func (c *tcpChannel) Send(target int, payload []byte, onComplete func(error)) error {
	if target < 0 || target >= c.worldSize {
		return errors.Errorf("transport: target rank %d out of range [0,%d)", target, c.worldSize)
	}
	if target == c.rank {
		// Sending to self never touches the network.
		c.mu.Lock()
		c.inbound = append(c.inbound, Message{Source: c.rank, Payload: payload})
		c.mu.Unlock()
		if onComplete != nil {
			onComplete(nil)
		}
		return nil
	}
	p := c.peers[target]
	if p == nil {
		return errors.Errorf("transport: no connection to rank %d", target)
	}
	p.sendCh <- pendingFrame{payload: payload, onComplete: onComplete}
	return nil
}

// Progress reports any latched transport failure and otherwise does no
// work: reads and writes already happen on background goroutines started by
// attach, and Poll returns whatever those goroutines have queued, whether
// or not Progress has been called.
func (c *tcpChannel) Progress(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *tcpChannel) Poll() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return Message{}, false
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return msg, true
}

func (c *tcpChannel) Close() error {
	for _, p := range c.peers {
		if p == nil {
			continue
		}
		close(p.closeCh)
		close(p.sendCh)
		_ = p.conn.Close()
	}
	return nil
}

// writeFrame/readFrame use the teacher's length-prefixed shape
// ([4-byte big-endian length][payload]) without the protobuf envelope: the
// payload here is already the encoded pkg/exchange frame, so there is
// nothing left for this layer to marshal.
func writeFrame(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
		return errors.Wrap(err, "write length prefix")
	}
	n, err := w.Write(payload)
	if err != nil {
		return errors.Wrap(err, "write payload")
	}
	if n != len(payload) {
		return errors.Errorf("incomplete write: wrote %d of %d bytes", n, len(payload))
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > DefaultMaxFrameSizeBytes {
		return nil, errors.Errorf("frame size %d exceeds maximum %d", length, DefaultMaxFrameSizeBytes)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	return payload, nil
}
