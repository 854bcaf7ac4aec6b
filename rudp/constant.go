package rudp

// Flag bits, MSB first, as laid out in spec.md §3. This mirrors the teacher's
// lib/constant.go flag block, which dedicates one bit per control meaning
// instead of encoding a variant tag.
const (
	SYNFlag uint8 = 0x80
	ACKFlag uint8 = 0x40
	EAKFlag uint8 = 0x20
	RSTFlag uint8 = 0x10
	NULFlag uint8 = 0x08
	CHKFlag uint8 = 0x04 // reserved, written zero, never validated on receipt
	FINFlag uint8 = 0x02

	knownFlags = SYNFlag | ACKFlag | EAKFlag | RSTFlag | NULFlag | CHKFlag | FINFlag
)

// headerSize is the fixed 6-byte RUDP header: flags(1) | header_length(1) | sequence(1) | ack_number(1) | checksum(2).
const headerSize = 6

// Kind tags which segment variant a parsed Segment represents.
type Kind uint8

const (
	KindSYN Kind = iota
	KindACK
	KindEAK
	KindRST
	KindNUL
	KindFIN
	KindDAT
)

func (k Kind) String() string {
	switch k {
	case KindSYN:
		return "SYN"
	case KindACK:
		return "ACK"
	case KindEAK:
		return "EAK"
	case KindRST:
		return "RST"
	case KindNUL:
		return "NUL"
	case KindFIN:
		return "FIN"
	case KindDAT:
		return "DAT"
	default:
		return "UNKNOWN"
	}
}

// Connection state machine states, spec.md §4.3. Named the way the teacher
// names its 3-way/4-way handshake state constants in lib/constant.go.
type connState uint

const (
	stateClosed connState = iota
	stateListen
	stateSynSent
	stateSynRcvd
	stateEstab
	stateCloseWait
)

func (s connState) String() string {
	switch s {
	case stateClosed:
		return "CLOSED"
	case stateListen:
		return "LISTEN"
	case stateSynSent:
		return "SYN-SENT"
	case stateSynRcvd:
		return "SYN-RCVD"
	case stateEstab:
		return "ESTAB"
	case stateCloseWait:
		return "CLOSE-WAIT"
	default:
		return "UNKNOWN"
	}
}
