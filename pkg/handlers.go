package protocol

import (
	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

// onReceiveSegment applies an inbound segment during the data phase: the
// cumulative ack prunes the send window, then any payload is buffered and
// every contiguous run is written to the output.
func (tcpConn *Connection) onReceiveSegment(seg *Segment) error {
	if seg.Flags.ACK {
		if removed := tcpConn.sendWindow.Prune(seg.Ack); removed > 0 {
			tcpConn.logger.Debug("removed acknowledged packets", "ack", uint32(seg.Ack), "count", removed, "in_flight", tcpConn.sendWindow.Len())
		}
	}

	if seg.Len() == 0 {
		return nil
	}

	// Do not add packets that are duplicates of previously delivered data
	if err := tcpConn.recvBuffer.Insert(seg, tcpConn.nextExpectedSeq); err != nil {
		switch {
		case errors.Is(err, ErrStaleSegment):
			tcpConn.stats.DroppedStale++
		case errors.Is(err, ErrBufferFull):
			tcpConn.stats.DroppedBufferFull++
		}
		tcpConn.logger.Debug("not buffering segment", "error", err)
	}

	_, err := tcpConn.recvBuffer.Drain(&tcpConn.nextExpectedSeq, tcpConn.deliver)
	return err
}

func (tcpConn *Connection) deliver(payload []byte) error {
	if _, err := tcpConn.output.Write(payload); err != nil {
		return errors.Wrap(err, "write output")
	}
	tcpConn.stats.BytesDelivered += len(payload)
	return nil
}

// onAck runs the retransmission bookkeeping for an ACK-flagged segment: it
// restarts the retransmit timer and counts duplicates of the most recent
// ack value. Reaching the threshold resends the oldest unacked segment and
// re-arms the counter.
func (tcpConn *Connection) onAck(ack seqnum.Value) {
	tcpConn.lastAckProgress = tcpConn.now()
	if ack != tcpConn.mostRecentAck {
		tcpConn.mostRecentAck = ack
		tcpConn.duplicateAckCount = 0
		return
	}
	tcpConn.duplicateAckCount++
	if tcpConn.duplicateAckCount < tcpConn.cfg.DuplicateAckThreshold {
		return
	}
	tcpConn.duplicateAckCount = 0
	if seg, ok := tcpConn.retransmitLowest(); ok {
		tcpConn.stats.FastRetransmits++
		tcpConn.logger.Info("retransmitting packet after duplicate acks", "seq", uint32(seg.Seq), "ack", uint32(ack))
	}
}

// checkRetransmitTimer resends the oldest unacked segment when no ack has
// arrived for the retransmit timeout. The timer restarts even when there is
// nothing to resend.
func (tcpConn *Connection) checkRetransmitTimer() {
	now := tcpConn.now()
	if now.Sub(tcpConn.lastAckProgress) < tcpConn.cfg.RetransmitTimeout {
		return
	}
	if seg, ok := tcpConn.retransmitLowest(); ok {
		tcpConn.stats.TimeoutRetransmits++
		tcpConn.logger.Info("retransmitting packet after timeout", "seq", uint32(seg.Seq), "len", seg.Len())
	}
	tcpConn.lastAckProgress = now
}

func (tcpConn *Connection) retransmitLowest() (Segment, bool) {
	seg, ok := tcpConn.sendWindow.Lowest()
	if !ok {
		return Segment{}, false
	}
	tcpConn.transmit(&seg)
	return seg, true
}
