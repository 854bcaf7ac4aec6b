// Package client implements the RUDP active-open side: resolving a remote
// address, opening a dedicated UDP socket, and driving the 3-way handshake
// through to an established Connection. Grounded on the teacher's
// lib/pcpcore.go DialPcp, trimmed of its raw-socket/WinDivert setup since
// RUDP dials over an ordinary net.PacketConn.
package client

import (
	"net"
	"time"

	"github.com/deng-rui/RUDP/config"
	"github.com/deng-rui/RUDP/rudp"
	"github.com/deng-rui/RUDP/rudperr"
)

// Conn wraps an established rudp.Connection with its dedicated socket, so
// Close can tear down both together.
type Conn struct {
	*rudp.Connection
	sock *net.UDPConn
}

// SendTo implements rudp.Transport over the dialed socket.
func (c *Conn) SendTo(addr net.Addr, b []byte) error {
	_, err := c.sock.WriteTo(b, addr)
	return err
}

// Dial opens a UDP socket to addr, performs the RUDP 3-way handshake, and
// returns once the connection reaches ESTAB or the timeout elapses.
func Dial(addr string, profile *config.Profile, timeout time.Duration, listeners ...rudp.StateListener) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &rudperr.IoError{Op: "client.Dial", Err: err}
	}
	sock, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, &rudperr.IoError{Op: "client.Dial", Err: err}
	}

	c := &Conn{sock: sock}

	opened := make(chan struct{})
	failed := make(chan error, 1)
	wrapped := append([]rudp.StateListener{openSignal{opened: opened, failed: failed}}, listeners...)

	engine := rudp.Dial(raddr.String(), profile, sock.LocalAddr(), raddr, c, wrapped)
	c.Connection = engine

	go c.receiveLoop()

	if timeout <= 0 {
		select {
		case <-opened:
			return c, nil
		case err := <-failed:
			sock.Close()
			return nil, err
		}
	}
	select {
	case <-opened:
		return c, nil
	case err := <-failed:
		sock.Close()
		return nil, err
	case <-time.After(timeout):
		sock.Close()
		_ = engine.Close()
		return nil, &rudperr.TimeoutError{Op: "client.Dial"}
	}
}

func (c *Conn) receiveLoop() {
	buf := make([]byte, 65535)
	for {
		n, raddr, err := c.sock.ReadFrom(buf)
		if err != nil {
			return
		}
		if raddr.String() != c.Connection.RemoteAddr().String() {
			continue // stray datagram from someone other than our peer
		}
		seg, err := rudp.Parse(buf, 0, n)
		if err != nil {
			continue
		}
		c.Connection.Deliver(seg)
	}
}

// Close shuts down the RUDP connection and releases the dialed socket.
func (c *Conn) Close() error {
	err := c.Connection.Close()
	c.sock.Close()
	return err
}

// openSignal is a one-shot StateListener that turns the first OnOpen or
// OnFailure into a channel signal for Dial to wait on.
type openSignal struct {
	opened chan struct{}
	failed chan error
}

func (s openSignal) OnOpen(c *rudp.Connection) {
	select {
	case <-s.opened:
	default:
		close(s.opened)
	}
}

func (s openSignal) OnClose(c *rudp.Connection) {}

func (s openSignal) OnFailure(c *rudp.Connection, err error) {
	select {
	case s.failed <- err:
	default:
	}
}
