// Package server implements the RUDP passive-open side: binding a UDP
// socket, demultiplexing inbound datagrams to per-peer connection engines by
// source address, and handing newly-established connections to Accept
// through a bounded backlog. Grounded on the teacher's lib/service.go
// Service (NewService/Start/handleIncomingPackets/Accept), generalized from
// raw-IP capture to a plain net.PacketConn since RUDP needs no kernel
// packet-filter bypass.
package server

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/deng-rui/RUDP/config"
	"github.com/deng-rui/RUDP/rudp"
	"github.com/deng-rui/RUDP/rudperr"
)

// defaultBacklogSize is spec.md §6's default when Bind is given backlog ≤ 0,
// matching the original RUDP server socket's DEFAULT_BACKLOG_SIZE.
const defaultBacklogSize = 50

// Listener accepts inbound RUDP connections on one bound UDP address.
type Listener struct {
	conn    *net.UDPConn
	profile *config.Profile

	mu     sync.Mutex
	peers  map[string]*rudp.Connection
	closed bool

	backlog chan *rudp.Connection
	stopCh  chan struct{}

	timeout time.Duration

	wg sync.WaitGroup
}

// Bind opens addr and starts the demultiplexer goroutine. backlog bounds how
// many established-but-unaccepted connections may queue, the RUDP analogue
// of the teacher's Service.newConnChannel capacity.
func Bind(addr string, profile *config.Profile, backlog int) (*Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &rudperr.IoError{Op: "server.Bind", Err: err}
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, &rudperr.IoError{Op: "server.Bind", Err: err}
	}
	if backlog <= 0 {
		backlog = defaultBacklogSize
	}

	l := &Listener{
		conn:    conn,
		profile: profile,
		peers:   make(map[string]*rudp.Connection),
		backlog: make(chan *rudp.Connection, backlog),
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.receiveLoop()
	return l, nil
}

// SendTo implements rudp.Transport over the listener's shared socket.
func (l *Listener) SendTo(addr net.Addr, b []byte) error {
	_, err := l.conn.WriteTo(b, addr)
	return err
}

// receiveLoop is the single reader of the bound socket, dispatching each
// datagram to its connection engine by source address - the teacher's
// handleIncomingPackets, minus the raw-IP header stripping it does before
// this point.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, raddr, err := l.conn.ReadFrom(buf)
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			log.Printf("server: read error: %v", err)
			continue
		}

		seg, err := rudp.Parse(buf, 0, n)
		if err != nil {
			log.Printf("server: malformed segment from %s: %v", raddr, err)
			continue
		}

		key := raddr.String()
		l.mu.Lock()
		conn, ok := l.peers[key]
		if !ok {
			if seg.Kind != rudp.KindSYN || seg.HasAck {
				l.mu.Unlock()
				continue // stray non-SYN from an unknown peer, discard
			}
			// acceptNewLocked already consumes this SYN's sequence number
			// and replies with SYN+ACK; delivering it again would only
			// provoke a redundant duplicate-SYN resend.
			l.acceptNewLocked(key, raddr, seg)
			l.mu.Unlock()
			continue
		}
		l.mu.Unlock()
		conn.Deliver(seg)
	}
}

func (l *Listener) acceptNewLocked(key string, raddr net.Addr, syn *rudp.Segment) *rudp.Connection {
	conn := rudp.AcceptSyn(key, l.profile, l.conn.LocalAddr(), raddr, l, syn, nil, func(c *rudp.Connection) {
		// Runs on its own goroutine (connection.go's enterEstabLocked), so
		// blocking here until Accept drains the backlog, or the listener
		// closes, is safe: it never holds the engine's lock.
		select {
		case l.backlog <- c:
		case <-l.stopCh:
		}
	})
	conn.SetOnTerminated(func(c *rudp.Connection) {
		l.mu.Lock()
		delete(l.peers, key)
		l.mu.Unlock()
	})
	l.peers[key] = conn
	return conn
}

// Accept blocks until a connection completes its handshake, or the
// listener's timeout (if set) elapses.
func (l *Listener) Accept() (*rudp.Connection, error) {
	if l.timeout <= 0 {
		select {
		case c := <-l.backlog:
			return c, nil
		case <-l.stopCh:
			return nil, &rudperr.ClosedError{Op: "server.Accept"}
		}
	}
	select {
	case c := <-l.backlog:
		return c, nil
	case <-l.stopCh:
		return nil, &rudperr.ClosedError{Op: "server.Accept"}
	case <-time.After(l.timeout):
		return nil, &rudperr.TimeoutError{Op: "server.Accept"}
	}
}

// GetLocalPort reports the bound UDP port.
func (l *Listener) GetLocalPort() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

// SetTimeout bounds how long Accept will wait; zero means block forever.
func (l *Listener) SetTimeout(d time.Duration) { l.timeout = d }

// GetTimeout reports the current Accept timeout.
func (l *Listener) GetTimeout() time.Duration { return l.timeout }

// Close stops accepting new connections and closes the underlying socket
// at once. Connections created by this listener send and receive through
// that socket, so after Close they can no longer exchange segments; Close
// does not close their engines, which are closed individually.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.mu.Unlock()

	err := l.conn.Close()
	l.wg.Wait()
	return err
}
