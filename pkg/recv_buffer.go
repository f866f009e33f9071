package protocol

import (
	"udp-tcp-pa/priorityQueue"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

var (
	ErrBufferFull   = errors.New("receive buffer full")
	ErrStaleSegment = errors.New("segment below receive cursor")
	ErrEmptySegment = errors.New("segment carries no payload")
)

// ReceiveBuffer holds segments that arrived ahead of a gap in the byte stream.
// Entries are not de-duplicated against each other.
type ReceiveBuffer struct {
	early    priorityQueue.PriorityQueue
	capacity int
}

func NewReceiveBuffer(capacity int) *ReceiveBuffer {
	return &ReceiveBuffer{
		early:    make(priorityQueue.PriorityQueue, 0, capacity),
		capacity: capacity,
	}
}

// Insert admits seg when it starts at or after next.
func (rb *ReceiveBuffer) Insert(seg *Segment, next seqnum.Value) error {
	if seg.Len() == 0 {
		return ErrEmptySegment
	}
	if seg.Seq.LessThan(next) {
		return errors.Wrapf(ErrStaleSegment, "SEQ=%d, expecting %d", uint32(seg.Seq), uint32(next))
	}
	if rb.early.Len() >= rb.capacity {
		return errors.Wrapf(ErrBufferFull, "dropping SEQ=%d", uint32(seg.Seq))
	}
	rb.early.Insert(seg.Seq, seg.Payload)
	return nil
}

// Drain hands every payload contiguous with *next to deliver, lowest first,
// advancing *next past each one. Copies left below the cursor by duplicate
// arrivals are discarded on the way. It stops at the first gap or at the
// first deliver error, in which case *next is not advanced for that payload.
func (rb *ReceiveBuffer) Drain(next *seqnum.Value, deliver func([]byte) error) (int, error) {
	delivered := 0
	for {
		top, ok := rb.early.Peek()
		if !ok {
			return delivered, nil
		}
		if top.SeqNum.LessThan(*next) {
			rb.early.PopLowest()
			continue
		}
		if top.SeqNum != *next {
			return delivered, nil
		}
		if err := deliver(top.PacketData); err != nil {
			return delivered, err
		}
		rb.early.PopLowest()
		*next = next.Add(seqnum.Size(len(top.PacketData)))
		delivered++
	}
}

func (rb *ReceiveBuffer) Len() int { return rb.early.Len() }

func (rb *ReceiveBuffer) Cap() int { return rb.capacity }
