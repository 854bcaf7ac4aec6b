package rudp

// StateListener receives connection lifecycle notifications, spec.md §6's
// "Listener callback set". The teacher notifies a single fixed path per
// event (Service.newConnChannel for open, connSignalFailed for failure);
// spec.md asks for a *set* of listeners per connection, so engines hold a
// slice and fan a notification out to all of them.
type StateListener interface {
	// OnOpen fires once, when the 3-way handshake completes (state -> ESTAB).
	OnOpen(c *Connection)
	// OnClose fires once, when the connection enters CLOSE-WAIT, whichever
	// side initiated the close.
	OnClose(c *Connection)
	// OnFailure fires once, when retransmission is exhausted, an unexpected
	// RST arrives, or a null-segment keepalive goes unanswered.
	OnFailure(c *Connection, err error)
}

// notifyOpen/notifyClosed/notifyFailure are invoked with the engine's lock
// released (spec.md §5: "Listeners are invoked outside locks to avoid
// reentrancy deadlock"), matching the teacher's pattern of sending on a
// channel rather than calling out while its own mutex is held.
func (c *Connection) notifyOpen() {
	for _, l := range c.listeners {
		l.OnOpen(c)
	}
}

func (c *Connection) notifyClosed() {
	for _, l := range c.listeners {
		l.OnClose(c)
	}
}

func (c *Connection) notifyFailure(err error) {
	for _, l := range c.listeners {
		l.OnFailure(c, err)
	}
}
