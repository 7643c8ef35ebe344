package transport

import (
	"errors"
	"net"
)

// tcpAddr is a minimal net.Addr for peers named by "host:port" strings,
// used when dialing/accepting connections for a TCPGroup.
type tcpAddr struct {
	addr string
}

func (a *tcpAddr) Network() string { return "tcp" }
func (a *tcpAddr) String() string  { return a.addr }

func newTCPAddr(s string) (net.Addr, error) {
	if s == "" {
		return nil, errors.New("transport: empty address")
	}
	return &tcpAddr{addr: s}, nil
}
