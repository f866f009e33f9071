package protocol

import (
	"io"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
)

// sendFromInput reads at most one MSS from the local input when the send
// window has room and transmits it, piggy-backing an owed ack. The window
// keeps the copy without the ack.
func (tcpConn *Connection) sendFromInput() error {
	if tcpConn.inputDone || tcpConn.sendWindow.Full() {
		return nil
	}
	n, err := tcpConn.input.TryRead(tcpConn.inputBuf)
	switch {
	case errors.Is(err, ErrWouldBlock):
		return nil
	case errors.Is(err, io.EOF):
		tcpConn.inputDone = true
		tcpConn.logger.Info("local input closed, still serving the connection")
		return nil
	case err != nil:
		return err
	case n == 0:
		return nil
	}

	payload := make([]byte, n)
	copy(payload, tcpConn.inputBuf[:n])
	seg := Segment{Seq: tcpConn.currentSeq, Payload: payload}

	if err := tcpConn.sendWindow.Append(seg); err != nil {
		tcpConn.stats.DroppedWindowFull++
		tcpConn.logger.Warn("buffer full, cannot add more packets", "error", err)
	}
	tcpConn.logger.Debug("buffer contents", "seqs", tcpConn.sendWindow.Seqs())

	wire := seg
	if tcpConn.ackOwed {
		wire.Ack = tcpConn.nextExpectedSeq
		wire.Flags.ACK = true
		tcpConn.ackOwed = false
	}
	tcpConn.transmit(&wire)
	tcpConn.stats.BytesSent += n
	tcpConn.logger.Debug("sent packet", "seq", uint32(wire.Seq), "ack", uint32(wire.Ack), "len", n)

	tcpConn.currentSeq = tcpConn.currentSeq.Add(seqnum.Size(n))
	return nil
}

// sendOwedAck sends a standalone ack when received data was not acknowledged
// by a piggy-backed one this iteration. Standalone acks are never buffered.
func (tcpConn *Connection) sendOwedAck() {
	if !tcpConn.ackOwed {
		return
	}
	ack := &Segment{Ack: tcpConn.nextExpectedSeq, Flags: Flags{ACK: true}}
	tcpConn.transmit(ack)
	tcpConn.ackOwed = false
	tcpConn.logger.Debug("sent ack", "ack", uint32(ack.Ack))
}
