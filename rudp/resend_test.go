package rudp

import "testing"

func newPending(seq uint8) *pendingSegment {
	return &pendingSegment{seg: &Segment{Sequence: seq}, rtxTimer: &timer{}}
}

func TestResendListRemoveThroughCumulative(t *testing.T) {
	r := newResendList()
	r.add(newPending(1))
	r.add(newPending(2))
	r.add(newPending(3))
	r.add(newPending(4))

	removed := r.removeThrough(2)
	if len(removed) != 2 {
		t.Fatalf("removeThrough(2) removed %d entries, want 2", len(removed))
	}
	if r.len() != 2 {
		t.Fatalf("resendList.len() = %d, want 2", r.len())
	}
	if _, ok := r.get(1); ok {
		t.Error("sequence 1 should have been removed")
	}
	if _, ok := r.get(3); !ok {
		t.Error("sequence 3 should remain")
	}
}

func TestResendListRemoveSet(t *testing.T) {
	r := newResendList()
	r.add(newPending(1))
	r.add(newPending(2))
	r.add(newPending(3))

	removed := r.removeSet([]uint8{1, 3})
	if len(removed) != 2 {
		t.Fatalf("removeSet removed %d entries, want 2", len(removed))
	}
	if r.len() != 1 {
		t.Fatalf("resendList.len() = %d, want 1", r.len())
	}
	if _, ok := r.get(2); !ok {
		t.Error("sequence 2 should remain after removeSet")
	}
}

func TestResendListOldest(t *testing.T) {
	r := newResendList()
	if _, ok := r.oldest(); ok {
		t.Fatal("oldest() on empty list should report false")
	}
	r.add(newPending(5))
	r.add(newPending(6))
	p, ok := r.oldest()
	if !ok || p.seg.Sequence != 5 {
		t.Fatalf("oldest() = %v, want sequence 5", p)
	}
}
