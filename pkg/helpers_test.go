package protocol

import (
	"bytes"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/google/netstack/tcpip/seqnum"
)

// memChannel is an in-memory Channel. Datagrams sent on one end of a pair
// arrive on the other; a full queue drops like a real network would.
type memChannel struct {
	in     chan []byte
	out    chan []byte
	local  net.Addr
	remote net.Addr
	sent   [][]byte
}

func newMemChannelPair() (*memChannel, *memChannel) {
	aToB := make(chan []byte, 256)
	bToA := make(chan []byte, 256)
	addrA := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	addrB := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	a := &memChannel{in: bToA, out: aToB, local: addrA, remote: addrB}
	b := &memChannel{in: aToB, out: bToA, local: addrB, remote: addrA}
	return a, b
}

func (ch *memChannel) TrySend(datagram []byte) error {
	cp := append([]byte(nil), datagram...)
	ch.sent = append(ch.sent, cp)
	select {
	case ch.out <- cp:
	default:
	}
	return nil
}

func (ch *memChannel) TryRecv(buf []byte) (int, error) {
	select {
	case datagram := <-ch.in:
		return copy(buf, datagram), nil
	default:
		runtime.Gosched()
		return 0, ErrWouldBlock
	}
}

func (ch *memChannel) LocalAddr() net.Addr  { return ch.local }
func (ch *memChannel) RemoteAddr() net.Addr { return ch.remote }

// inject queues seg as if the peer had sent it.
func (ch *memChannel) inject(t *testing.T, seg *Segment) {
	t.Helper()
	datagram, err := MarshalSegment(seg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ch.in <- datagram
}

// takeSent decodes and clears everything sent so far.
func (ch *memChannel) takeSent(t *testing.T) []*Segment {
	t.Helper()
	var segs []*Segment
	for _, datagram := range ch.sent {
		seg, err := UnmarshalSegment(datagram)
		if err != nil {
			t.Fatalf("unmarshal sent datagram: %v", err)
		}
		segs = append(segs, seg)
	}
	ch.sent = nil
	return segs
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// chunkSource hands out queued chunks one TryRead at a time.
type chunkSource struct {
	chunks [][]byte
	reads  int
	eof    bool
}

func (src *chunkSource) TryRead(p []byte) (int, error) {
	src.reads++
	if len(src.chunks) == 0 {
		if src.eof {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, src.chunks[0])
	src.chunks = src.chunks[1:]
	return n, nil
}

// newEstablished returns a connection already in the data phase with the
// given cursors, wired to an in-memory channel and a fake clock.
func newEstablished(t *testing.T, snd, rcv uint32) (*Connection, *memChannel, *chunkSource, *bytes.Buffer, *fakeClock) {
	t.Helper()
	ch, _ := newMemChannelPair()
	src := &chunkSource{}
	out := &bytes.Buffer{}
	clock := newFakeClock()
	conn := NewInitiator(ch, src, out, DefaultConfig(), WithClock(clock.Now))
	conn.currentSeq = seqnum.Value(snd)
	conn.nextExpectedSeq = seqnum.Value(rcv)
	conn.establish()
	return conn, ch, src, out, clock
}

func payloadOf(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}
