package rudp

// Sequence and ack numbers are 8-bit values with modulo-256 wrap (spec.md
// §3, §9 "Sequence-number wrap"). Comparisons use the half-window
// convention: a < b iff (b-a) mod 256 is in (0, 128]. This is the uint8
// analogue of the teacher's isGreater in lib/utils.go, which does the same
// thing for uint32 sequence numbers by picking the shorter of the direct
// and wrapped distances.

func seqIncrement(seq uint8) uint8 {
	return seq + 1 // wraps automatically at 256
}

// seqGreater reports whether a is strictly ahead of b in the modulo-256
// ordering, i.e. b was sent/received before a within half the sequence space.
func seqGreater(a, b uint8) bool {
	if a == b {
		return false
	}
	diff := int(a) - int(b)
	if diff < 0 {
		diff += 256
	}
	return diff > 0 && diff <= 128
}

func seqGreaterOrEqual(a, b uint8) bool {
	return a == b || seqGreater(a, b)
}

func seqLess(a, b uint8) bool {
	return !seqGreaterOrEqual(a, b)
}

func seqLessOrEqual(a, b uint8) bool {
	return !seqGreater(a, b)
}
