package protocol

import (
	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

var ErrWindowFull = errors.New("send window full")

// SendWindow holds segments that were transmitted but not yet acknowledged,
// in transmission order.
type SendWindow struct {
	segments []Segment
	capacity int
}

func NewSendWindow(capacity int) *SendWindow {
	return &SendWindow{
		segments: make([]Segment, 0, capacity),
		capacity: capacity,
	}
}

// Append records seg as in flight. It fails with ErrWindowFull at capacity.
func (window *SendWindow) Append(seg Segment) error {
	if len(window.segments) >= window.capacity {
		return errors.Wrapf(ErrWindowFull, "dropping SEQ=%d", uint32(seg.Seq))
	}
	window.segments = append(window.segments, seg)
	return nil
}

// Prune removes every segment whose seq is below the cumulative ack and
// returns how many were removed.
func (window *SendWindow) Prune(ack seqnum.Value) int {
	kept := window.segments[:0]
	for _, seg := range window.segments {
		if seg.Seq.LessThan(ack) {
			continue
		}
		kept = append(kept, seg)
	}
	removed := len(window.segments) - len(kept)
	// Clear the tail so dropped payloads can be collected
	for i := len(kept); i < len(window.segments); i++ {
		window.segments[i] = Segment{}
	}
	window.segments = kept
	return removed
}

// Lowest returns the unacknowledged segment with the smallest seq.
func (window *SendWindow) Lowest() (Segment, bool) {
	if len(window.segments) == 0 {
		return Segment{}, false
	}
	lowest := window.segments[0]
	for _, seg := range window.segments[1:] {
		if seg.Seq.LessThan(lowest.Seq) {
			lowest = seg
		}
	}
	return lowest, true
}

func (window *SendWindow) Len() int { return len(window.segments) }

func (window *SendWindow) Cap() int { return window.capacity }

func (window *SendWindow) Full() bool { return len(window.segments) >= window.capacity }

// Seqs lists the sequence numbers currently in flight.
func (window *SendWindow) Seqs() []uint32 {
	seqs := make([]uint32, 0, len(window.segments))
	for _, seg := range window.segments {
		seqs = append(seqs, uint32(seg.Seq))
	}
	return seqs
}
