package rudp

// ReadStream and WriteStream are the boundary-facing stream adapters of
// spec.md §4.7: byte-stream facades over a Connection's MSS-chunked
// segments, returned separately by GetInputStream/GetOutputStream so a
// caller can close one direction without affecting the other. Grounded on
// the teacher's Connection.Read/Write pair in lib/pconn.go, split into two
// objects because spec.md models them as independently closable components.
type ReadStream struct {
	conn *Connection
}

// Read blocks until at least one byte is available, the input direction is
// shut down locally, or the connection is closed, matching io.Reader.
func (r *ReadStream) Read(b []byte) (int, error) {
	return r.conn.read(b)
}

// Available reports the number of bytes currently buffered and ready to read.
func (r *ReadStream) Available() int {
	return r.conn.available()
}

// Close shuts down the input direction only; it does not touch the wire.
func (r *ReadStream) Close() error {
	return r.conn.shutdownInput()
}

// WriteStream is the output-direction facade: Write segments user bytes and
// pushes them through the send window; Close sends a FIN and begins orderly
// shutdown of the output direction.
type WriteStream struct {
	conn *Connection
}

// Write blocks while the send queue is at capacity (spec.md §4.4
// backpressure), returning once every byte of b has been queued.
func (w *WriteStream) Write(b []byte) (int, error) {
	return w.conn.write(b)
}

// Flush forces immediate engine handoff, spec.md §4.7's third write-adapter
// operation alongside write/close. Write already hands every byte to the
// engine before returning, so there is nothing buffered here to push out;
// Flush exists so callers coded against the boundary API still have an
// explicit handoff point to call, and reports ClosedError once the
// connection is gone, matching write's own failure mode.
func (w *WriteStream) Flush() error {
	return w.conn.flush()
}

// Close sends a FIN and begins the orderly-close path; it does not wait for
// the peer's final ack. Use Connection.Close to wait for full teardown.
func (w *WriteStream) Close() error {
	return w.conn.shutdownOutput()
}

// GetInputStream returns the connection's read-side stream adapter.
func (c *Connection) GetInputStream() *ReadStream {
	return &ReadStream{conn: c}
}

// GetOutputStream returns the connection's write-side stream adapter.
func (c *Connection) GetOutputStream() *WriteStream {
	return &WriteStream{conn: c}
}
