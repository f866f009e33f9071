package protocol

import (
	"strings"
	"testing"
)

func TestStatusTable(t *testing.T) {
	conn, ch, src, _, _ := newEstablished(t, 1002, 5001)
	src.chunks = [][]byte{[]byte("abc")}
	if err := conn.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	ch.takeSent(t)

	status := conn.Status()
	for _, want := range []string{"initiator", "ESTABLISHED", "127.0.0.1:4000", "127.0.0.1:5000", "1005", "5001", "1/20"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}
}

func TestStatusBeforePeerKnown(t *testing.T) {
	ch, _ := newMemChannelPair()
	ch.remote = nil
	conn := NewResponder(ch, &chunkSource{}, nil, DefaultConfig())

	status := conn.Status()
	for _, want := range []string{"responder", "LISTEN", " * "} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}
}
