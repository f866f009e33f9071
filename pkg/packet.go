package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

const (
	HeaderLen      = 12
	MaxPayloadSize = 1012 // MSS
	MaxSegmentSize = HeaderLen + MaxPayloadSize
	MaxWindowSize  = 20
)

const (
	flagSyn uint8 = 1 << 0
	flagAck uint8 = 1 << 1
)

var (
	ErrShortSegment     = errors.New("segment shorter than header")
	ErrTruncatedSegment = errors.New("segment length exceeds datagram")
	ErrOversizedSegment = errors.New("segment payload exceeds MSS")
)

// Flags is the set of control bits carried by a segment. Both may be set,
// as in the responder's SYN+ACK.
type Flags struct {
	SYN bool
	ACK bool
}

func (flags Flags) bits() uint8 {
	var b uint8
	if flags.SYN {
		b |= flagSyn
	}
	if flags.ACK {
		b |= flagAck
	}
	return b
}

func flagsFromByte(b uint8) Flags {
	return Flags{
		SYN: b&flagSyn != 0,
		ACK: b&flagAck != 0,
	}
}

func (flags Flags) String() string {
	switch {
	case flags.SYN && flags.ACK:
		return "SYN|ACK"
	case flags.SYN:
		return "SYN"
	case flags.ACK:
		return "ACK"
	}
	return "-"
}

// Segment is one protocol message. Seq is the stream offset of the first
// payload byte (or the ISN during the handshake) and Ack is cumulative.
type Segment struct {
	Ack     seqnum.Value
	Seq     seqnum.Value
	Flags   Flags
	Payload []byte
}

// Len is the value of the length field on the wire.
func (seg *Segment) Len() int {
	return len(seg.Payload)
}

// End is the sequence number right after the last payload byte.
func (seg *Segment) End() seqnum.Value {
	return seg.Seq.Add(seqnum.Size(len(seg.Payload)))
}

func (seg *Segment) String() string {
	return fmt.Sprintf("SEQ=%d ACK=%d LEN=%d FLAGS=%s", uint32(seg.Seq), uint32(seg.Ack), seg.Len(), seg.Flags)
}

// MarshalSegment encodes seg in network byte order: ack, seq, length, flags,
// one reserved byte, then the payload.
func MarshalSegment(seg *Segment) ([]byte, error) {
	if len(seg.Payload) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrOversizedSegment, "payload of %d bytes", len(seg.Payload))
	}
	buf := make([]byte, HeaderLen+len(seg.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(seg.Ack))
	binary.BigEndian.PutUint32(buf[4:8], uint32(seg.Seq))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(seg.Payload)))
	buf[10] = seg.Flags.bits()
	buf[11] = 0
	copy(buf[HeaderLen:], seg.Payload)
	return buf, nil
}

// UnmarshalSegment decodes a datagram. Trailing bytes past the length field
// are ignored and unused flag bits are dropped. The payload is copied so the
// caller can reuse datagram.
func UnmarshalSegment(datagram []byte) (*Segment, error) {
	if len(datagram) < HeaderLen {
		return nil, errors.Wrapf(ErrShortSegment, "got %d bytes", len(datagram))
	}

	// Extract header fields
	ack := binary.BigEndian.Uint32(datagram[0:4])
	seq := binary.BigEndian.Uint32(datagram[4:8])
	length := int(binary.BigEndian.Uint16(datagram[8:10]))
	flags := flagsFromByte(datagram[10])

	if length > MaxPayloadSize {
		return nil, errors.Wrapf(ErrOversizedSegment, "length field %d", length)
	}
	if HeaderLen+length > len(datagram) {
		return nil, errors.Wrapf(ErrTruncatedSegment, "length field %d, %d payload bytes present", length, len(datagram)-HeaderLen)
	}

	seg := &Segment{
		Ack:   seqnum.Value(ack),
		Seq:   seqnum.Value(seq),
		Flags: flags,
	}
	if length > 0 {
		seg.Payload = make([]byte, length)
		copy(seg.Payload, datagram[HeaderLen:HeaderLen+length])
	}
	return seg, nil
}
