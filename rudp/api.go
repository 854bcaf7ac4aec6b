package rudp

import (
	"net"

	"github.com/deng-rui/RUDP/config"
)

// AcceptSyn creates a passive-open (server-side) connection engine from an
// inbound SYN segment, negotiating its carried profile against localProfile,
// and starts it running. Exported for server.Listener's demultiplexer.
func AcceptSyn(key string, localProfile *config.Profile, local, remote net.Addr, tr Transport, syn *Segment, listeners []StateListener, acceptNotify func(*Connection)) *Connection {
	return acceptSyn(key, localProfile, local, remote, tr, syn, listeners, acceptNotify)
}

// Dial creates an active-open (client-side) connection engine, sends the
// opening SYN, and starts it running.
func Dial(key string, profile *config.Profile, local, remote net.Addr, tr Transport, listeners []StateListener) *Connection {
	return dial(key, profile, local, remote, tr, listeners)
}

// Deliver hands an inbound segment to the connection engine for processing.
// Safe to call concurrently with anything; it only ever enqueues.
func (c *Connection) Deliver(seg *Segment) {
	c.deliver(seg)
}

// SetOnTerminated registers a callback invoked once, from its own goroutine,
// when the connection reaches CLOSED - used by server.Listener to drop the
// connection from its peer table.
func (c *Connection) SetOnTerminated(fn func(*Connection)) {
	c.mu.Lock()
	c.onTerminated = fn
	c.mu.Unlock()
}

// AddListener registers an additional state listener after construction.
func (c *Connection) AddListener(l StateListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}
