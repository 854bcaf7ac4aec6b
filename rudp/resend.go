package rudp

import "time"

// pendingSegment is one entry of unacked_sent (spec.md §3): a transmitted
// segment awaiting acknowledgement, with its retransmission counter and
// retransmission timer. This is the RUDP-scale analogue of the teacher's
// PacketInfo/ResendPackets pair in lib/packet.go (LastSentTime, ResendCount,
// Data keyed by sequence number), cut down to the single per-engine mutex
// spec.md §5 calls for instead of ResendPackets' own lock.
type pendingSegment struct {
	seg      *Segment
	retries  int
	sentAt   time.Time
	rtxTimer *timer
}

// resendList is the connection engine's unacked_sent: an ordered map from
// sequence number to pendingSegment. It is manipulated only while the owning
// engine holds its single mutex (spec.md §5), so it carries no lock of its
// own - unlike the teacher's ResendPackets, which guards itself because
// multiple teacher goroutines reach it directly.
type resendList struct {
	order []uint8 // sequence numbers, oldest first
	items map[uint8]*pendingSegment
}

func newResendList() *resendList {
	return &resendList{items: make(map[uint8]*pendingSegment)}
}

func (r *resendList) len() int { return len(r.order) }

func (r *resendList) add(p *pendingSegment) {
	r.order = append(r.order, p.seg.Sequence)
	r.items[p.seg.Sequence] = p
}

func (r *resendList) get(seq uint8) (*pendingSegment, bool) {
	p, ok := r.items[seq]
	return p, ok
}

// removeThrough drops every entry with sequence <= ack (modulo-256 compare),
// stopping their retransmission timers, and returns them oldest-first.
func (r *resendList) removeThrough(ack uint8) []*pendingSegment {
	var removed []*pendingSegment
	kept := r.order[:0]
	for _, seq := range r.order {
		if seqLessOrEqual(seq, ack) {
			p := r.items[seq]
			p.rtxTimer.stop()
			delete(r.items, seq)
			removed = append(removed, p)
		} else {
			kept = append(kept, seq)
		}
	}
	r.order = kept
	return removed
}

// removeSet drops every entry whose sequence appears in seqs (spec.md §4.4
// EAK handling), regardless of cumulative position.
func (r *resendList) removeSet(seqs []uint8) []*pendingSegment {
	if len(seqs) == 0 {
		return nil
	}
	want := make(map[uint8]bool, len(seqs))
	for _, s := range seqs {
		want[s] = true
	}
	var removed []*pendingSegment
	kept := r.order[:0]
	for _, seq := range r.order {
		if want[seq] {
			p := r.items[seq]
			p.rtxTimer.stop()
			delete(r.items, seq)
			removed = append(removed, p)
		} else {
			kept = append(kept, seq)
		}
	}
	r.order = kept
	return removed
}

// oldest returns the earliest-sent still-unacked segment, used to eagerly
// retransmit the oldest hole on EAK per spec.md §4.4.
func (r *resendList) oldest() (*pendingSegment, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.items[r.order[0]], true
}

func (r *resendList) all() []*pendingSegment {
	out := make([]*pendingSegment, 0, len(r.order))
	for _, seq := range r.order {
		out = append(out, r.items[seq])
	}
	return out
}
