package rudp

import "sort"

// reassembly is the receive-side reassembly buffer of spec.md §3/§4.5: the
// ordered-by-sequence recv_queue plus the out_of_seq_set of sequences
// received above recv_next. Grounded on the teacher's PacketGapMap in
// lib/packet.go (a map keyed by sequence with an ascending-order drain
// helper), restricted - like resendList - to the engine's single mutex
// instead of carrying its own.
type reassembly struct {
	maxQueueSize int
	buffered     map[uint8][]byte // sequence -> payload, both in-order-delivered-pending and out-of-order
	outOfSeq     map[uint8]bool   // subset of buffered keys that are still above recvNext
}

func newReassembly(maxQueueSize int) *reassembly {
	return &reassembly{
		maxQueueSize: maxQueueSize,
		buffered:     make(map[uint8][]byte),
		outOfSeq:     make(map[uint8]bool),
	}
}

func (r *reassembly) size() int { return len(r.buffered) }

func (r *reassembly) full() bool { return len(r.buffered) >= r.maxQueueSize }

// insertOutOfOrder buffers a DAT payload received above recvNext. Returns
// false if the buffer is at max_recv_queue_size (spec.md §4.5: dropped, no
// ack advance, letting the peer retransmit).
func (r *reassembly) insertOutOfOrder(seq uint8, payload []byte) bool {
	if _, dup := r.buffered[seq]; dup {
		return true
	}
	if r.full() {
		return false
	}
	r.buffered[seq] = payload
	r.outOfSeq[seq] = true
	return true
}

// drainFrom pulls every contiguously-buffered successor of next out of the
// out-of-order set, in ascending sequence order, returning the new recvNext
// and the delivered payloads. Mirrors PacketGapMap.getPacketsInAscendingOrder
// sorting before delivery.
func (r *reassembly) drainFrom(next uint8) (uint8, [][]byte) {
	var delivered [][]byte
	for {
		payload, ok := r.buffered[next]
		if !ok || !r.outOfSeq[next] {
			break
		}
		delivered = append(delivered, payload)
		delete(r.buffered, next)
		delete(r.outOfSeq, next)
		next = seqIncrement(next)
	}
	return next, delivered
}

// outOfOrderSeqs returns the currently buffered out-of-order sequence
// numbers in ascending order, for building an EAK segment body.
func (r *reassembly) outOfOrderSeqs() []uint8 {
	seqs := make([]uint8, 0, len(r.outOfSeq))
	for s := range r.outOfSeq {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
