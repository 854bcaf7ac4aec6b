// Package rudp implements the Reliable UDP transport: segment encoding, the
// per-connection state machine, and the stream adapters user code reads and
// writes through. Grounded throughout on the teacher's lib/pconn.go and
// lib/server/connection.go connection engine, generalized from TCP-shaped
// sequence/ack numbers to RUDP's 8-bit modulo-256 ones.
package rudp

import (
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	rp "github.com/Clouded-Sabre/ringpool/lib"

	"github.com/deng-rui/RUDP/config"
	"github.com/deng-rui/RUDP/rudperr"
)

// Connection is one RUDP connection's engine: state machine, send window,
// receive reassembly, and timers, all behind a single mutex per spec.md §5
// ("each engine's internal state is protected by one mutex; timer callbacks
// either enqueue work onto the engine task or take its lock directly").
// This engine takes the lock directly from timer callbacks, the lighter of
// the two options spec.md allows, matching the way the teacher's pConn
// timers (handleCloseConnection) call back into state guarded by pConn.mutex.
type Connection struct {
	mu   sync.Mutex
	cond *sync.Cond

	key        string
	profile    *config.Profile
	isServer   bool
	localAddr  net.Addr
	remoteAddr net.Addr
	transport  Transport

	state  connState
	closed bool

	// send side
	sendNext  uint8
	sendQueue [][]byte
	resend    *resendList
	synSeq    uint8
	finSeq    uint8
	finSent   bool

	// receive side
	recvNext     uint8
	reasm        *reassembly
	recvBuf      []byte
	inputClosed  bool
	cumAckCount  int
	outOfSeqHits int

	nullTimer   *timer
	cumAckTimer *timer
	lingerTimer *timer

	listeners []StateListener

	// acceptNotify, set by server.Listener when it creates a passive-open
	// engine, pushes the connection onto the accept backlog once the 3-way
	// handshake completes. nil for client-dialed connections.
	acceptNotify func(*Connection)

	// onTerminated, set by server.Listener for the engines in its peer
	// table, removes the entry once CLOSED is reached. nil for
	// client-dialed connections.
	onTerminated func(*Connection)

	inputChan chan *Segment
	stopCh    chan struct{}
	doneCh    chan struct{}

	// pool stages each outbound chunk of user bytes through a pooled
	// Payload buffer, the role the teacher's lib/pool.go Payload pool plays
	// for outgoing TCP payload chunks. write still copies every chunk into
	// a new slice before queuing it.
	pool *rp.RingPool
}

func newConnection(key string, profile *config.Profile, local, remote net.Addr, tr Transport, isServer bool) *Connection {
	c := &Connection{
		key:        key,
		profile:    profile,
		isServer:   isServer,
		localAddr:  local,
		remoteAddr: remote,
		transport:  tr,
		resend:     newResendList(),
		reasm:      newReassembly(profile.MaxRecvQueueSize),
		inputChan:  make(chan *Segment, profile.MaxRecvQueueSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		pool:       newPayloadPool(profile.MaxSendQueueSize, profile.MaxSegmentSize),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// dial creates a client-side engine in SYN-SENT, sends the opening SYN, and
// starts its run loop. Grounded on lib/pcpcore.go DialPcp's dial() sequence.
func dial(key string, profile *config.Profile, local, remote net.Addr, tr Transport, listeners []StateListener) *Connection {
	c := newConnection(key, profile, local, remote, tr, false)
	c.listeners = listeners
	c.state = stateSynSent

	c.mu.Lock()
	c.synSeq = c.sendNext
	seg := NewSYN(c.synSeq, profile)
	c.sendNext = seqIncrement(c.sendNext)
	c.armRetransmit(seg)
	c.transmit(seg)
	c.mu.Unlock()

	go c.runLoop()
	return c
}

// acceptSyn creates a server-side engine in SYN-RCVD from an inbound SYN,
// replies with SYN+ACK carrying the negotiated profile, and starts its run
// loop. Grounded on lib/server/connection.go's handle3WayHandshake
// passive-open branch.
func acceptSyn(key string, localProfile *config.Profile, local, remote net.Addr, tr Transport, syn *Segment, listeners []StateListener, acceptNotify func(*Connection)) *Connection {
	profile := negotiateProfile(localProfile, decodeProfile(syn.Payload))

	c := newConnection(key, profile, local, remote, tr, true)
	c.listeners = listeners
	c.acceptNotify = acceptNotify
	c.state = stateSynRcvd
	c.recvNext = seqIncrement(syn.Sequence)

	c.mu.Lock()
	c.synSeq = c.sendNext
	seg := NewSYNACK(c.synSeq, prevSeq(c.recvNext), profile)
	c.sendNext = seqIncrement(c.sendNext)
	c.armRetransmit(seg)
	c.transmit(seg)
	c.mu.Unlock()

	go c.runLoop()
	return c
}

// negotiateProfile resolves the listener's configured profile against the
// dialer's proposed one, carried in the SYN body: capacity and window
// fields settle on whichever side is smaller, so neither peer is asked to
// exceed a limit it advertised; timeout fields settle on whichever side is
// larger, so the slower peer's timing assumptions still hold.
func negotiateProfile(local, remote *config.Profile) *config.Profile {
	min := func(a, b int) int {
		if a < b {
			return a
		}
		return b
	}
	max := func(a, b int) int {
		if a > b {
			return a
		}
		return b
	}
	p := &config.Profile{
		MaxSendQueueSize:       min(local.MaxSendQueueSize, remote.MaxSendQueueSize),
		MaxRecvQueueSize:       min(local.MaxRecvQueueSize, remote.MaxRecvQueueSize),
		MaxSegmentSize:         min(local.MaxSegmentSize, remote.MaxSegmentSize),
		MaxOutstandingSegs:     min(local.MaxOutstandingSegs, remote.MaxOutstandingSegs),
		MaxRetrans:             local.MaxRetrans,
		MaxCumulativeAcks:      min(local.MaxCumulativeAcks, remote.MaxCumulativeAcks),
		MaxOutOfSequence:       min(local.MaxOutOfSequence, remote.MaxOutOfSequence),
		MaxAutoReset:           local.MaxAutoReset,
		NullSegmentTimeoutMs:   max(local.NullSegmentTimeoutMs, remote.NullSegmentTimeoutMs),
		RetransTimeoutMs:       max(local.RetransTimeoutMs, remote.RetransTimeoutMs),
		CumulativeAckTimeoutMs: max(local.CumulativeAckTimeoutMs, remote.CumulativeAckTimeoutMs),
	}
	if negotiated, err := config.New(p); err == nil {
		return negotiated
	}
	return local
}

func prevSeq(s uint8) uint8 { return s - 1 }

func (c *Connection) transmit(seg *Segment) {
	if err := c.transport.SendTo(c.remoteAddr, Serialize(seg)); err != nil {
		log.Printf("rudp: %s: send %s failed: %v", c.key, seg.Kind, err)
	}
}

func (c *Connection) armRetransmit(seg *Segment) {
	p := &pendingSegment{seg: seg, sentAt: time.Now()}
	seq := seg.Sequence
	p.rtxTimer = startTimer(c.retransDuration(), func() { c.onRetransmitTimeout(seq) })
	c.resend.add(p)
}

func (c *Connection) retransDuration() time.Duration {
	return time.Duration(c.profile.RetransTimeoutMs) * time.Millisecond
}

func (c *Connection) nullDuration() time.Duration {
	return time.Duration(c.profile.NullSegmentTimeoutMs) * time.Millisecond
}

func (c *Connection) cumAckDuration() time.Duration {
	return time.Duration(c.profile.CumulativeAckTimeoutMs) * time.Millisecond
}

// deliver hands seg to the engine for processing; called by whoever owns
// the shared socket read loop (server.Listener's demultiplexer, or the
// client's single-peer receive goroutine).
func (c *Connection) deliver(seg *Segment) {
	select {
	case c.inputChan <- seg:
	case <-c.stopCh:
	}
}

// runLoop is the engine task: one goroutine per connection, consuming
// inbound segments and timer-armed work. Grounded on
// lib/server/connection.go's handleIncomingPackets loop.
func (c *Connection) runLoop() {
	defer close(c.doneCh)
	for {
		select {
		case seg := <-c.inputChan:
			c.mu.Lock()
			c.handleSegment(seg)
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Connection) handleSegment(seg *Segment) {
	switch seg.Kind {
	case KindSYN:
		if seg.HasAck {
			c.handleSynAck(seg)
		} else {
			c.handleSyn(seg)
		}
	case KindACK:
		c.handleAck(seg)
	case KindEAK:
		c.handleEak(seg)
	case KindDAT:
		c.handleDat(seg)
	case KindNUL:
		c.handleNul(seg)
	case KindRST:
		c.handleRst(seg)
	case KindFIN:
		c.handleFin(seg)
	}
}

func (c *Connection) handleSyn(seg *Segment) {
	switch c.state {
	case stateSynRcvd:
		resp := NewSYNACK(c.synSeq, prevSeq(c.recvNext), c.profile)
		c.transmit(resp)
	case stateSynSent:
		// we're the dialer; a bare SYN makes no sense here, ignore.
	default:
		c.transmit(NewACK(c.sendNext, prevSeq(c.recvNext)))
	}
}

func (c *Connection) handleSynAck(seg *Segment) {
	if c.state != stateSynSent {
		return
	}
	if !seg.HasAck || seg.AckNumber != c.synSeq {
		return
	}
	c.resend.removeThrough(c.synSeq)
	c.recvNext = seqIncrement(seg.Sequence)
	c.transmit(NewACK(c.sendNext, prevSeq(c.recvNext)))
	c.enterEstabLocked()
}

func (c *Connection) handleAck(seg *Segment) {
	switch c.state {
	case stateSynRcvd:
		if seg.AckNumber != c.synSeq {
			return
		}
		c.resend.removeThrough(c.synSeq)
		c.enterEstabLocked()
	case stateEstab, stateCloseWait:
		c.resend.removeThrough(seg.AckNumber)
		c.cond.Broadcast()
		c.trySendLocked()
		c.maybeFinishCloseLocked()
	}
}

func (c *Connection) handleEak(seg *Segment) {
	if c.state != stateEstab && c.state != stateCloseWait {
		return
	}
	c.resend.removeThrough(seg.AckNumber)
	c.resend.removeSet(seg.Payload)
	c.cond.Broadcast()
	if p, ok := c.resend.oldest(); ok {
		c.transmit(p.seg)
	}
	c.trySendLocked()
	c.maybeFinishCloseLocked()
}

func (c *Connection) handleNul(seg *Segment) {
	if c.state != stateEstab && c.state != stateCloseWait {
		return
	}
	c.acceptSequencedLocked(seg.Sequence, nil)
}

func (c *Connection) handleDat(seg *Segment) {
	if c.state != stateEstab && c.state != stateCloseWait {
		return
	}
	c.acceptSequencedLocked(seg.Sequence, seg.Payload)
}

// acceptSequencedLocked runs the spec.md §4.5 receive decision for any
// segment that consumes a sequence number (DAT or NUL): deliver in-order,
// buffer out-of-order, or force an ack for a duplicate.
func (c *Connection) acceptSequencedLocked(seq uint8, payload []byte) {
	switch {
	case seq == c.recvNext:
		if len(payload) > 0 {
			c.deliverLocked(payload)
		}
		c.recvNext = seqIncrement(c.recvNext)
		next, drained := c.reasm.drainFrom(c.recvNext)
		for _, p := range drained {
			if len(p) > 0 {
				c.deliverLocked(p)
			}
		}
		c.recvNext = next

		c.cumAckCount++
		if c.profile.MaxCumulativeAcks > 0 && c.cumAckCount >= c.profile.MaxCumulativeAcks {
			c.sendCumulativeAckLocked()
		} else {
			c.cumAckTimer.reset(c.cumAckDuration())
		}
	case seqGreater(seq, c.recvNext):
		if c.reasm.insertOutOfOrder(seq, payload) {
			c.outOfSeqHits++
			if c.profile.MaxOutOfSequence > 0 && c.outOfSeqHits >= c.profile.MaxOutOfSequence {
				c.sendEakLocked()
				c.outOfSeqHits = 0
			}
		}
	default:
		c.sendCumulativeAckLocked()
	}
}

func (c *Connection) handleRst(seg *Segment) {
	if c.state == stateClosed {
		return
	}
	err := &rudperr.ConnectionFailure{Reason: "peer reset the connection"}
	c.transitionClosedLocked(err)
}

func (c *Connection) handleFin(seg *Segment) {
	switch c.state {
	case stateEstab:
		if seg.Sequence == c.recvNext {
			c.recvNext = seqIncrement(c.recvNext)
		}
		c.transmit(NewACK(c.sendNext, prevSeq(c.recvNext)))
		c.enterCloseWaitLocked()
	case stateCloseWait:
		c.transmit(NewACK(c.sendNext, prevSeq(c.recvNext)))
	}
}

func (c *Connection) enterEstabLocked() {
	c.state = stateEstab
	c.nullTimer = startTimer(c.nullDuration(), c.onNullTimeout)
	c.cumAckTimer = startTimer(c.cumAckDuration(), c.onCumAckTimeout)
	if c.acceptNotify != nil {
		notify := c.acceptNotify
		go notify(c)
	}
	c.mu.Unlock()
	c.notifyOpen()
	c.mu.Lock()
}

// enterCloseWaitLocked transitions ESTAB -> CLOSE-WAIT, whichever side
// triggered it (user Close or peer FIN). spec.md's table documents
// connection_closed only on the peer-FIN row; end-to-end scenario 6 has
// both sides observe it, so this engine notifies on every path into
// CLOSE-WAIT - an Open Question resolved in favor of the symmetric reading.
func (c *Connection) enterCloseWaitLocked() {
	if c.state == stateCloseWait {
		return
	}
	c.state = stateCloseWait
	c.nullTimer.stop()
	c.lingerTimer = startTimer(8*c.retransDuration(), c.onLingerExpired)
	c.mu.Unlock()
	c.notifyClosed()
	c.mu.Lock()
	c.maybeFinishCloseLocked()
}

func (c *Connection) maybeFinishCloseLocked() {
	if c.state == stateCloseWait && c.finSent && c.resend.len() == 0 {
		c.transitionClosedLocked(nil)
	}
}

func (c *Connection) onLingerExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateCloseWait {
		c.transitionClosedLocked(nil)
	}
}

func (c *Connection) transitionClosedLocked(failure error) {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	c.closed = true
	c.inputClosed = true
	c.nullTimer.stop()
	c.cumAckTimer.stop()
	c.lingerTimer.stop()
	for _, p := range c.resend.all() {
		p.rtxTimer.stop()
	}
	c.cond.Broadcast()
	close(c.stopCh)

	onTerm := c.onTerminated
	if failure != nil {
		c.mu.Unlock()
		c.notifyFailure(failure)
		c.mu.Lock()
	}
	if onTerm != nil {
		go onTerm(c)
	}
}

func (c *Connection) sendCumulativeAckLocked() {
	c.transmit(NewACK(c.sendNext, prevSeq(c.recvNext)))
	c.cumAckCount = 0
	c.cumAckTimer.reset(c.cumAckDuration())
}

func (c *Connection) sendEakLocked() {
	c.transmit(NewEAK(c.sendNext, prevSeq(c.recvNext), c.reasm.outOfOrderSeqs()))
}

func (c *Connection) deliverLocked(payload []byte) {
	if c.inputClosed {
		return
	}
	c.recvBuf = append(c.recvBuf, payload...)
	c.cond.Broadcast()
}

// trySendLocked pushes queued user bytes out as DAT segments while the
// outstanding window has room, spec.md §4.4's send path.
func (c *Connection) trySendLocked() {
	for len(c.sendQueue) > 0 && c.resend.len() < c.profile.MaxOutstandingSegs {
		chunk := c.sendQueue[0]
		c.sendQueue = c.sendQueue[1:]
		seq := c.sendNext
		c.sendNext = seqIncrement(c.sendNext)
		seg := NewDAT(seq, prevSeq(c.recvNext), chunk)
		c.armRetransmit(seg)
		c.transmit(seg)
		c.nullTimer.reset(c.nullDuration())
	}
	c.cond.Broadcast()
}

func (c *Connection) onRetransmitTimeout(seq uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.resend.get(seq)
	if !ok {
		return
	}
	p.retries++
	if c.profile.MaxRetrans > 0 && p.retries > c.profile.MaxRetrans {
		c.transitionClosedLocked(&rudperr.ConnectionFailure{Reason: fmt.Sprintf("retransmission limit exceeded for sequence %d", seq)})
		return
	}
	c.transmit(p.seg)
	p.sentAt = time.Now()
	p.rtxTimer = startTimer(c.retransDuration(), func() { c.onRetransmitTimeout(seq) })
}

func (c *Connection) onNullTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateEstab {
		return
	}
	if len(c.sendQueue) == 0 {
		seq := c.sendNext
		c.sendNext = seqIncrement(c.sendNext)
		seg := NewNUL(seq)
		c.armRetransmit(seg)
		c.transmit(seg)
	}
	c.nullTimer.reset(c.nullDuration())
}

func (c *Connection) onCumAckTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateEstab && c.state != stateCloseWait {
		return
	}
	if c.cumAckCount > 0 {
		c.sendCumulativeAckLocked()
	} else {
		c.cumAckTimer.reset(c.cumAckDuration())
	}
}

// write chunks b into MSS-sized payloads, blocking while send_queue is at
// max_send_queue_size (spec.md §4.4 backpressure), then pushes whatever the
// window allows out immediately.
func (c *Connection) write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.finSent {
		return 0, &rudperr.ClosedError{Op: "write"}
	}

	maxPayload := c.maxPayload()
	n := 0
	for n < len(b) {
		end := n + maxPayload
		if end > len(b) {
			end = len(b)
		}
		el := c.pool.GetElement()
		pl := el.Data.(*Payload)
		pl.Copy(b[n:end])
		chunk := append([]byte(nil), pl.Bytes()...)
		c.pool.ReturnElement(el)

		for len(c.sendQueue) >= c.profile.MaxSendQueueSize {
			if c.closed {
				return n, &rudperr.ClosedError{Op: "write"}
			}
			c.trySendLocked()
			c.cond.Wait()
		}
		c.sendQueue = append(c.sendQueue, chunk)
		n = end
	}
	c.trySendLocked()
	return n, nil
}

// flush is a no-op beyond a liveness check: write already hands every chunk
// to trySendLocked before returning, so there is never anything staged here
// for Flush to push out.
func (c *Connection) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &rudperr.ClosedError{Op: "flush"}
	}
	return nil
}

// read copies buffered, in-order bytes into b, blocking until at least one
// byte is available or the input side is closed.
func (c *Connection) read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.recvBuf) == 0 {
		if c.inputClosed {
			return 0, io.EOF
		}
		c.cond.Wait()
	}
	n := copy(b, c.recvBuf)
	c.recvBuf = c.recvBuf[n:]
	return n, nil
}

func (c *Connection) available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recvBuf)
}

// shutdownOutput sends a FIN, consuming the orderly-close path of spec.md
// §4.3 (ESTAB -> CLOSE-WAIT on user close). Idempotent.
func (c *Connection) shutdownOutput() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finSent {
		return nil
	}
	if c.state != stateEstab {
		return &rudperr.ClosedError{Op: "shutdownOutput"}
	}
	c.finSeq = c.sendNext
	c.sendNext = seqIncrement(c.sendNext)
	seg := NewFIN(c.finSeq)
	c.armRetransmit(seg)
	c.transmit(seg)
	c.finSent = true
	c.enterCloseWaitLocked()
	return nil
}

// shutdownInput stops local reads without sending anything on the wire;
// buffered bytes already delivered remain readable until drained.
func (c *Connection) shutdownInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputClosed = true
	c.cond.Broadcast()
	return nil
}

// Close, in ESTAB, shuts down both directions and waits for the engine to
// fully settle into CLOSED. In any other state (including CLOSE-WAIT) it
// sends an immediate RST and closes the engine without waiting for acks.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state == stateEstab {
		c.mu.Unlock()
		_ = c.shutdownInput()
		_ = c.shutdownOutput()
	} else {
		seg := NewRST(c.sendNext)
		c.transmit(seg)
		c.transitionClosedLocked(nil)
		c.mu.Unlock()
	}
	<-c.doneCh
	return nil
}

// LocalAddr and RemoteAddr report this connection's endpoints.
func (c *Connection) LocalAddr() net.Addr  { return c.localAddr }
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }

// maxPayload is the largest number of user bytes one DAT segment carries
// under this connection's negotiated profile.
func (c *Connection) maxPayload() int {
	n := c.profile.MaxSegmentSize - headerSize
	if n <= 0 {
		return 1
	}
	return n
}

// GetSendBufferSize reports the byte capacity of the output direction: the
// negotiated send queue depth in DAT-sized chunks, spec §6's
// get_send_buffer_size().
func (c *Connection) GetSendBufferSize() int {
	return c.profile.MaxSendQueueSize * c.maxPayload()
}

// GetReceiveBufferSize reports the byte capacity of the input direction:
// the negotiated receive queue depth in DAT-sized chunks, spec §6's
// get_receive_buffer_size().
func (c *Connection) GetReceiveBufferSize() int {
	return c.profile.MaxRecvQueueSize * c.maxPayload()
}

// State reports the current handshake/teardown state, chiefly for tests.
func (c *Connection) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}
