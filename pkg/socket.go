package protocol

import (
	"context"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

// Handshake runs the role's side of the three-way handshake until the
// connection is established or ctx ends. Failed attempts are retried forever.
func (tcpConn *Connection) Handshake(ctx context.Context) error {
	for tcpConn.state != Established {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if tcpConn.role == Initiator {
			err = tcpConn.connectAttempt(ctx)
		} else {
			err = tcpConn.acceptAttempt(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// connectAttempt sends one SYN with a fresh ISN and waits for the matching
// SYN+ACK for up to the handshake timeout.
func (tcpConn *Connection) connectAttempt(ctx context.Context) error {
	isn := seqnum.Value(tcpConn.newISN())
	syn := &Segment{Seq: isn, Flags: Flags{SYN: true}}
	tcpConn.setState(SynSent)
	tcpConn.transmit(syn)
	tcpConn.logger.Info("sent first handshake packet", "seq", uint32(isn))

	deadline := tcpConn.now().Add(tcpConn.cfg.HandshakeTimeout)
	for tcpConn.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, err := tcpConn.poll()
		if err != nil {
			return err
		}
		if seg == nil {
			continue
		}
		tcpConn.logger.Info("received second handshake packet", "seq", uint32(seg.Seq), "ack", uint32(seg.Ack))
		if !seg.Flags.SYN || !seg.Flags.ACK || seg.Ack != isn.Add(1) {
			continue
		}

		ack := &Segment{Seq: isn.Add(1), Ack: seg.Seq.Add(1), Flags: Flags{ACK: true}}
		tcpConn.transmit(ack)
		tcpConn.logger.Info("sent third handshake packet", "seq", uint32(ack.Seq), "ack", uint32(ack.Ack))

		// SYN and the ACK-only segment each consume one sequence number
		tcpConn.currentSeq = isn.Add(2)
		tcpConn.nextExpectedSeq = seg.Seq.Add(1)
		tcpConn.establish()
		return nil
	}
	tcpConn.logger.Info("handshake timed out, retrying")
	tcpConn.setState(Closed)
	return nil
}

// acceptAttempt waits for a SYN, answers with SYN+ACK and waits for the
// confirming ACK for up to the handshake timeout. On timeout it goes back to
// waiting for a new SYN without resending the SYN+ACK.
func (tcpConn *Connection) acceptAttempt(ctx context.Context) error {
	tcpConn.setState(Listening)
	var syn *Segment
	for syn == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, err := tcpConn.poll()
		if err != nil {
			return err
		}
		if seg != nil && seg.Flags.SYN {
			syn = seg
		}
	}
	tcpConn.logger.Info("received first handshake packet", "seq", uint32(syn.Seq), "peer", formatAddr(tcpConn.channel.RemoteAddr()))

	initialSeq := syn.Seq
	isn := seqnum.Value(tcpConn.newISN())
	synAck := &Segment{Seq: isn, Ack: initialSeq.Add(1), Flags: Flags{SYN: true, ACK: true}}
	tcpConn.transmit(synAck)
	tcpConn.setState(SynReceived)
	tcpConn.logger.Info("sent second handshake packet", "seq", uint32(isn), "ack", uint32(synAck.Ack))

	deadline := tcpConn.now().Add(tcpConn.cfg.HandshakeTimeout)
	for tcpConn.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, err := tcpConn.poll()
		if err != nil {
			return err
		}
		if seg == nil {
			continue
		}
		tcpConn.logger.Info("received third handshake packet", "seq", uint32(seg.Seq), "ack", uint32(seg.Ack))
		if !seg.Flags.ACK || seg.Ack != isn.Add(1) || seg.Seq != initialSeq.Add(1) {
			continue
		}

		tcpConn.currentSeq = seg.Ack
		tcpConn.nextExpectedSeq = seg.Seq
		if seg.Len() == 0 {
			// The ACK-only segment consumed a sequence number on the peer
			tcpConn.nextExpectedSeq = tcpConn.nextExpectedSeq.Add(1)
		}
		tcpConn.establish()
		return nil
	}
	tcpConn.logger.Info("handshake timed out, waiting for a new SYN")
	return nil
}

func (tcpConn *Connection) establish() {
	tcpConn.setState(Established)
	tcpConn.lastAckProgress = tcpConn.now()
	tcpConn.logger.Info("connection established",
		"peer", formatAddr(tcpConn.channel.RemoteAddr()),
		"snd_nxt", uint32(tcpConn.currentSeq),
		"rcv_nxt", uint32(tcpConn.nextExpectedSeq))
}

// poll makes one receive attempt. It returns a nil segment when nothing
// usable arrived; only channel failures are returned as errors.
func (tcpConn *Connection) poll() (*Segment, error) {
	n, err := tcpConn.channel.TryRecv(tcpConn.recvBuf)
	if errors.Is(err, ErrWouldBlock) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	datagram := tcpConn.recvBuf[:n]
	tcpConn.trace(Inbound, datagram)

	seg, err := UnmarshalSegment(datagram)
	if err != nil {
		tcpConn.stats.DroppedMalformed++
		tcpConn.logger.Debug("ignoring datagram", "error", err)
		return nil, nil
	}
	tcpConn.stats.SegmentsReceived++
	tcpConn.logger.Debug("received packet", "seq", uint32(seg.Seq), "ack", uint32(seg.Ack), "len", seg.Len(), "flags", seg.Flags)
	return seg, nil
}

// transmit sends seg once. A failed send is logged and treated like a lost
// datagram.
func (tcpConn *Connection) transmit(seg *Segment) {
	datagram, err := MarshalSegment(seg)
	if err != nil {
		tcpConn.logger.Warn("cannot encode segment", "error", err)
		return
	}
	if err := tcpConn.channel.TrySend(datagram); err != nil {
		tcpConn.logger.Warn("send failed", "seq", uint32(seg.Seq), "error", err)
		return
	}
	tcpConn.trace(Outbound, datagram)
	tcpConn.stats.SegmentsSent++
}

func (tcpConn *Connection) trace(dir Direction, datagram []byte) {
	if tcpConn.tracer == nil {
		return
	}
	err := tcpConn.tracer.Record(tcpConn.now(), dir, tcpConn.channel.LocalAddr(), tcpConn.channel.RemoteAddr(), datagram)
	if err != nil {
		tcpConn.logger.Warn("trace capture failed, disabling", "error", err)
		tcpConn.tracer = nil
	}
}
