package protocol

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func fixedISN(isns ...uint32) func() uint32 {
	i := 0
	return func() uint32 {
		isn := isns[i%len(isns)]
		i++
		return isn
	}
}

// recvSegment waits for the next datagram the other end of ch's pair sent.
func recvSegment(t *testing.T, ch *memChannel) *Segment {
	t.Helper()
	select {
	case datagram := <-ch.in:
		seg, err := UnmarshalSegment(datagram)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return seg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a segment")
	}
	return nil
}

func TestHandshake(t *testing.T) {
	a, b := newMemChannelPair()
	initiator := NewInitiator(a, &chunkSource{}, &bytes.Buffer{}, DefaultConfig(), WithISNSource(fixedISN(1000)))
	responder := NewResponder(b, &chunkSource{}, &bytes.Buffer{}, DefaultConfig(), WithISNSource(fixedISN(5000)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, conn := range []*Connection{initiator, responder} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = conn.Handshake(ctx)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("handshake %d: %v", i, err)
		}
	}

	if initiator.State() != Established || responder.State() != Established {
		t.Fatalf("states = %s, %s", initiator.State(), responder.State())
	}
	if initiator.CurrentSeq() != 1002 || initiator.NextExpectedSeq() != 5001 {
		t.Fatalf("initiator: current %d, next %d; want 1002, 5001", initiator.CurrentSeq(), initiator.NextExpectedSeq())
	}
	if responder.CurrentSeq() != 5001 || responder.NextExpectedSeq() != 1002 {
		t.Fatalf("responder: current %d, next %d; want 5001, 1002", responder.CurrentSeq(), responder.NextExpectedSeq())
	}

	sent := a.takeSent(t)
	if len(sent) != 2 {
		t.Fatalf("initiator sent %d segments, want SYN and ACK", len(sent))
	}
	if syn := sent[0]; !syn.Flags.SYN || syn.Flags.ACK || syn.Seq != 1000 {
		t.Fatalf("SYN = %s", syn)
	}
	if ack := sent[1]; ack.Flags.SYN || !ack.Flags.ACK || ack.Seq != 1001 || ack.Ack != 5001 {
		t.Fatalf("ACK = %s", ack)
	}
	sent = b.takeSent(t)
	if len(sent) != 1 {
		t.Fatalf("responder sent %d segments, want SYN+ACK", len(sent))
	}
	if synAck := sent[0]; !synAck.Flags.SYN || !synAck.Flags.ACK || synAck.Seq != 5000 || synAck.Ack != 1001 {
		t.Fatalf("SYN+ACK = %s", synAck)
	}
}

func TestInitiatorRetriesWithFreshISN(t *testing.T) {
	a, peer := newMemChannelPair()
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	conn := NewInitiator(a, &chunkSource{}, &bytes.Buffer{}, cfg, WithISNSource(fixedISN(1000, 2000)))

	done := make(chan error, 1)
	go func() { done <- conn.Handshake(context.Background()) }()

	if syn := recvSegment(t, peer); !syn.Flags.SYN || syn.Seq != 1000 {
		t.Fatalf("first SYN = %s", syn)
	}
	// Left unanswered, the attempt times out and a new SYN goes out
	if syn := recvSegment(t, peer); !syn.Flags.SYN || syn.Seq != 2000 {
		t.Fatalf("second SYN = %s", syn)
	}

	// A reply to the abandoned attempt is ignored
	a.inject(t, &Segment{Seq: 6000, Ack: 1001, Flags: Flags{SYN: true, ACK: true}})
	a.inject(t, &Segment{Seq: 7000, Ack: 2001, Flags: Flags{SYN: true, ACK: true}})

	ack := recvSegment(t, peer)
	if ack.Flags.SYN || !ack.Flags.ACK || ack.Seq != 2001 || ack.Ack != 7001 {
		t.Fatalf("ACK = %s", ack)
	}
	if err := <-done; err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if conn.CurrentSeq() != 2002 || conn.NextExpectedSeq() != 7001 {
		t.Fatalf("current %d, next %d", conn.CurrentSeq(), conn.NextExpectedSeq())
	}
}

func TestResponderIgnoresUnexpectedSegments(t *testing.T) {
	b, peer := newMemChannelPair()
	conn := NewResponder(b, &chunkSource{}, &bytes.Buffer{}, DefaultConfig(), WithISNSource(fixedISN(5000)))

	done := make(chan error, 1)
	go func() { done <- conn.Handshake(context.Background()) }()

	b.inject(t, &Segment{Seq: 1, Ack: 1, Flags: Flags{ACK: true}, Payload: []byte("early")})
	b.inject(t, &Segment{Seq: 1000, Flags: Flags{SYN: true}})

	synAck := recvSegment(t, peer)
	if !synAck.Flags.SYN || !synAck.Flags.ACK || synAck.Seq != 5000 || synAck.Ack != 1001 {
		t.Fatalf("SYN+ACK = %s", synAck)
	}

	b.inject(t, &Segment{Seq: 1001, Ack: 4000, Flags: Flags{ACK: true}})
	b.inject(t, &Segment{Seq: 1001, Ack: 5001, Flags: Flags{ACK: true}})

	if err := <-done; err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if conn.CurrentSeq() != 5001 || conn.NextExpectedSeq() != 1002 {
		t.Fatalf("current %d, next %d", conn.CurrentSeq(), conn.NextExpectedSeq())
	}
}

func TestResponderListensAgainAfterTimeout(t *testing.T) {
	b, peer := newMemChannelPair()
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	conn := NewResponder(b, &chunkSource{}, &bytes.Buffer{}, cfg, WithISNSource(fixedISN(5000, 8000)))

	done := make(chan error, 1)
	go func() { done <- conn.Handshake(context.Background()) }()

	b.inject(t, &Segment{Seq: 1000, Flags: Flags{SYN: true}})
	recvSegment(t, peer)

	// No ACK: after the timeout a new SYN starts over
	time.Sleep(150 * time.Millisecond)
	b.inject(t, &Segment{Seq: 3000, Flags: Flags{SYN: true}})
	synAck := recvSegment(t, peer)
	if synAck.Seq != 8000 || synAck.Ack != 3001 {
		t.Fatalf("SYN+ACK = %s", synAck)
	}
	b.inject(t, &Segment{Seq: 3001, Ack: 8001, Flags: Flags{ACK: true}})

	if err := <-done; err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if conn.NextExpectedSeq() != 3002 {
		t.Fatalf("next = %d, want 3002", conn.NextExpectedSeq())
	}
}

func TestHandshakeHonorsContext(t *testing.T) {
	b, _ := newMemChannelPair()
	conn := NewResponder(b, &chunkSource{}, &bytes.Buffer{}, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := conn.Handshake(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if conn.State() != Listening {
		t.Fatalf("state = %s, want LISTEN", conn.State())
	}
}
