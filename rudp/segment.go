package rudp

import (
	"encoding/binary"

	"github.com/deng-rui/RUDP/config"
	"github.com/deng-rui/RUDP/rudperr"
)

// Segment is the parsed form of one RUDP PDU (spec.md §3, §4.1). Parse and
// Serialize are bit-exact inverses of each other for every well-formed
// segment. This plays the role the teacher's PcpPacket Marshal/Unmarshal
// pair plays in lib/packet.go, cut down to the 6-byte RUDP header instead
// of a TCP-shaped one.
type Segment struct {
	Kind         Kind
	Flags        uint8
	HeaderLength uint8
	Sequence     uint8
	HasAck       bool
	AckNumber    uint8
	Checksum     uint16

	// Payload carries the variant-specific body starting at HeaderLength:
	//   SYN: negotiated profile, see encodeProfile/decodeProfile
	//   DAT: user bytes
	//   EAK: one byte per out-of-order sequence number
	//   ACK, RST, NUL, FIN: empty
	Payload []byte
}

// Parse decodes a segment from b[off:off+length]. Dispatch priority follows
// spec.md §4.1 exactly: SYN, NUL, EAK, RST, FIN, then ACK (split into
// header-only ACK vs DAT by total length). Unknown flag combinations are
// rejected as malformed.
func Parse(b []byte, off, length int) (*Segment, error) {
	if length < headerSize {
		return nil, &rudperr.MalformedError{Msg: "segment shorter than header"}
	}
	if off < 0 || off+length > len(b) {
		return nil, &rudperr.MalformedError{Msg: "segment bounds out of range"}
	}
	buf := b[off : off+length]

	flags := buf[0]
	hlen := buf[1]
	seq := buf[2]
	ackNum := buf[3]
	checksum := binary.BigEndian.Uint16(buf[4:6])
	hasAck := flags&ACKFlag != 0

	if flags&^knownFlags != 0 {
		return nil, &rudperr.MalformedError{Msg: "unrecognized flag bits set"}
	}

	var kind Kind
	switch {
	case flags&SYNFlag != 0:
		kind = KindSYN
	case flags&NULFlag != 0:
		kind = KindNUL
	case flags&EAKFlag != 0:
		kind = KindEAK
	case flags&RSTFlag != 0:
		kind = KindRST
	case flags&FINFlag != 0:
		kind = KindFIN
	case hasAck:
		if length == headerSize {
			kind = KindACK
		} else {
			kind = KindDAT
		}
	default:
		return nil, &rudperr.MalformedError{Msg: "no recognized variant flag set"}
	}

	bodyOff := int(hlen)
	if bodyOff < headerSize {
		bodyOff = headerSize
	}
	var payload []byte
	if bodyOff < length {
		payload = append([]byte(nil), buf[bodyOff:length]...)
	}

	return &Segment{
		Kind:         kind,
		Flags:        flags,
		HeaderLength: hlen,
		Sequence:     seq,
		HasAck:       hasAck,
		AckNumber:    ackNum,
		Checksum:     checksum,
		Payload:      payload,
	}, nil
}

// Serialize renders s back to its wire form. Round-trips with Parse for
// every Segment Parse or the New* constructors can produce.
func Serialize(s *Segment) []byte {
	hlen := s.HeaderLength
	if hlen < headerSize {
		hlen = headerSize
	}
	total := int(hlen) + len(s.Payload)
	buf := make([]byte, total)
	buf[0] = s.Flags
	buf[1] = hlen
	buf[2] = s.Sequence
	buf[3] = s.AckNumber
	binary.BigEndian.PutUint16(buf[4:6], s.Checksum)
	if len(s.Payload) > 0 {
		copy(buf[hlen:], s.Payload)
	}
	return buf
}

func newBase(kind Kind, flags uint8, seq uint8, payload []byte) *Segment {
	return &Segment{
		Kind:         kind,
		Flags:        flags,
		HeaderLength: headerSize,
		Sequence:     seq,
		Payload:      payload,
	}
}

// NewSYN builds a connection-initiating segment carrying the dialer's profile.
func NewSYN(seq uint8, p *config.Profile) *Segment {
	return newBase(KindSYN, SYNFlag, seq, encodeProfile(p))
}

// NewSYNACK builds the server's response to a SYN, itself carrying the
// server's (possibly negotiated-down) profile and piggybacking an ack.
func NewSYNACK(seq, ack uint8, p *config.Profile) *Segment {
	s := newBase(KindSYN, SYNFlag|ACKFlag, seq, encodeProfile(p))
	s.HasAck = true
	s.AckNumber = ack
	return s
}

// NewACK builds a header-only cumulative acknowledgement.
func NewACK(seq, ack uint8) *Segment {
	s := newBase(KindACK, ACKFlag, seq, nil)
	s.HasAck = true
	s.AckNumber = ack
	return s
}

// NewDAT builds a data segment; ACK is always piggybacked per spec.md §3.
func NewDAT(seq, ack uint8, payload []byte) *Segment {
	s := newBase(KindDAT, ACKFlag, seq, payload)
	s.HasAck = true
	s.AckNumber = ack
	return s
}

// NewEAK builds an extended (selective) ack listing out-of-order sequences.
func NewEAK(seq, ack uint8, outOfOrder []uint8) *Segment {
	s := newBase(KindEAK, EAKFlag|ACKFlag, seq, append([]uint8(nil), outOfOrder...))
	s.HasAck = true
	s.AckNumber = ack
	return s
}

// NewNUL builds a keepalive segment; it consumes a sequence number like any other.
func NewNUL(seq uint8) *Segment {
	return newBase(KindNUL, NULFlag, seq, nil)
}

// NewRST builds an abortive reset.
func NewRST(seq uint8) *Segment {
	return newBase(KindRST, RSTFlag, seq, nil)
}

// NewFIN builds an orderly-close segment; it consumes a sequence number.
func NewFIN(seq uint8) *Segment {
	return newBase(KindFIN, FINFlag, seq, nil)
}

// profileWireLen is the fixed body size of a SYN segment's negotiated
// parameters: 1+1+2+1+1+1+1+1+2+2+2 = 15 bytes of fields, big-endian, plus
// one reserved trailing byte.
const profileWireLen = 16

func encodeProfile(p *config.Profile) []byte {
	b := make([]byte, profileWireLen)
	b[0] = uint8(p.MaxSendQueueSize)
	b[1] = uint8(p.MaxRecvQueueSize)
	binary.BigEndian.PutUint16(b[2:4], uint16(p.MaxSegmentSize))
	b[4] = uint8(p.MaxOutstandingSegs)
	b[5] = uint8(p.MaxRetrans)
	b[6] = uint8(p.MaxCumulativeAcks)
	b[7] = uint8(p.MaxOutOfSequence)
	b[8] = uint8(p.MaxAutoReset)
	binary.BigEndian.PutUint16(b[9:11], uint16(p.NullSegmentTimeoutMs))
	binary.BigEndian.PutUint16(b[11:13], uint16(p.RetransTimeoutMs))
	binary.BigEndian.PutUint16(b[13:15], uint16(p.CumulativeAckTimeoutMs))
	// b[15] reserved/padding, written zero
	return b
}

// decodeProfile reads back a profile encoded by encodeProfile. A short or
// missing body yields the protocol defaults, since early RUDP peers (or a
// terse test fixture) may omit it.
func decodeProfile(b []byte) *config.Profile {
	p := config.Default()
	if len(b) < profileWireLen {
		return p
	}
	p.MaxSendQueueSize = int(b[0])
	p.MaxRecvQueueSize = int(b[1])
	p.MaxSegmentSize = int(binary.BigEndian.Uint16(b[2:4]))
	p.MaxOutstandingSegs = int(b[4])
	p.MaxRetrans = int(b[5])
	p.MaxCumulativeAcks = int(b[6])
	p.MaxOutOfSequence = int(b[7])
	p.MaxAutoReset = int(b[8])
	p.NullSegmentTimeoutMs = int(binary.BigEndian.Uint16(b[9:11]))
	p.RetransTimeoutMs = int(binary.BigEndian.Uint16(b[11:13]))
	p.CumulativeAckTimeoutMs = int(binary.BigEndian.Uint16(b[13:15]))
	return p
}
