package rudp

import (
	"log"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

// Payload is a pooled byte buffer for DAT segment payloads, the RUDP
// analogue of the teacher's lib/pool.go Payload (which pools TCP segment
// payload chunks the same way). Connection.write stages each outbound chunk
// through one of these before copying it into the send queue; the receive
// path does not use the pool.
type Payload struct {
	bytes  []byte
	length int
}

var emptyPayload []byte

func setEmptyPayload(n int) {
	if len(emptyPayload) < n {
		emptyPayload = make([]byte, n)
	}
}

// NewPayload is the ring pool element constructor, called by rp.NewRingPool
// once per pooled slot.
func NewPayload(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Println("rudp.NewPayload: expected exactly one parameter, the buffer length")
		return nil
	}
	n, ok := params[0].(int)
	if !ok {
		log.Println("rudp.NewPayload: parameter must be an int buffer length")
		return nil
	}
	setEmptyPayload(n)
	return &Payload{bytes: make([]byte, n)}
}

// Reset clears the payload's content, as required by rp.DataInterface.
func (p *Payload) Reset() {
	setEmptyPayload(len(p.bytes))
	copy(p.bytes, emptyPayload[:len(p.bytes)])
	p.length = 0
}

// Copy stores src, growing a fresh backing slice if src is larger than the pooled buffer.
func (p *Payload) Copy(src []byte) {
	if len(src) > len(p.bytes) {
		p.bytes = make([]byte, len(src))
	}
	copy(p.bytes, src)
	p.length = len(src)
}

// Bytes returns the stored content.
func (p *Payload) Bytes() []byte {
	return p.bytes[:p.length]
}

// PrintContent prints the payload's content, as required by rp.DataInterface.
func (p *Payload) PrintContent() {
	log.Printf("rudp.Payload: %d bytes: %v", p.length, p.bytes[:p.length])
}

// newPayloadPool builds the ring pool for one connection: newConnection
// calls it once per engine, sized from that engine's profile (the teacher's
// lib.Pool is a package-level global instead).
func newPayloadPool(poolSize, maxSegmentSize int) *rp.RingPool {
	pool := rp.NewRingPool("rudp: ", poolSize, NewPayload, maxSegmentSize)
	return pool
}
