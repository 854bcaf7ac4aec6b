package rudp

import (
	"bytes"
	"testing"
)

func TestReassemblyDrainContiguous(t *testing.T) {
	r := newReassembly(8)

	r.insertOutOfOrder(2, []byte("c"))
	r.insertOutOfOrder(1, []byte("b"))
	// 0 never arrives out of order; it's delivered directly by the caller.

	next, drained := r.drainFrom(1)
	if next != 3 {
		t.Fatalf("drainFrom(1) next = %d, want 3", next)
	}
	if len(drained) != 2 || !bytes.Equal(drained[0], []byte("b")) || !bytes.Equal(drained[1], []byte("c")) {
		t.Fatalf("drainFrom(1) = %v, want [b c]", drained)
	}
	if r.size() != 0 {
		t.Fatalf("reassembly.size() = %d after full drain, want 0", r.size())
	}
}

func TestReassemblyLeavesGap(t *testing.T) {
	r := newReassembly(8)
	r.insertOutOfOrder(1, []byte("b"))
	r.insertOutOfOrder(3, []byte("d")) // gap at 2

	next, drained := r.drainFrom(1)
	if next != 2 {
		t.Fatalf("drainFrom(1) next = %d, want 2 (stopped at gap)", next)
	}
	if len(drained) != 1 {
		t.Fatalf("drainFrom(1) drained %d entries, want 1", len(drained))
	}
	if r.size() != 1 {
		t.Fatalf("reassembly.size() = %d, want 1 (sequence 3 still buffered)", r.size())
	}
}

func TestReassemblyFullRejectsNewEntries(t *testing.T) {
	r := newReassembly(2)
	if !r.insertOutOfOrder(1, []byte("a")) {
		t.Fatal("first insert should succeed")
	}
	if !r.insertOutOfOrder(2, []byte("b")) {
		t.Fatal("second insert should succeed")
	}
	if r.insertOutOfOrder(3, []byte("c")) {
		t.Fatal("insert into a full reassembly buffer should be rejected")
	}
	if !r.full() {
		t.Fatal("reassembly should report full at max_recv_queue_size")
	}
}

func TestReassemblyDedupesInsert(t *testing.T) {
	r := newReassembly(1)
	if !r.insertOutOfOrder(5, []byte("x")) {
		t.Fatal("first insert should succeed")
	}
	if !r.insertOutOfOrder(5, []byte("x")) {
		t.Fatal("re-inserting an already-buffered sequence should succeed without consuming capacity")
	}
}

func TestReassemblyOutOfOrderSeqsSorted(t *testing.T) {
	r := newReassembly(8)
	r.insertOutOfOrder(9, nil)
	r.insertOutOfOrder(3, nil)
	r.insertOutOfOrder(5, nil)

	got := r.outOfOrderSeqs()
	want := []uint8{3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("outOfOrderSeqs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outOfOrderSeqs() = %v, want %v", got, want)
		}
	}
}
