package protocol

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotEstablished = errors.New("connection not established")

// Run completes the handshake and then services the connection until ctx
// ends or a local collaborator fails.
func (tcpConn *Connection) Run(ctx context.Context) error {
	if err := tcpConn.Handshake(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tcpConn.status:
			tcpConn.logger.Info("connection status\n" + tcpConn.Status())
		default:
		}
		if err := tcpConn.Step(); err != nil {
			return err
		}
	}
}

// Step performs one loop iteration: one receive attempt, the retransmit
// timer check, one local input read and an owed ack if any.
func (tcpConn *Connection) Step() error {
	if tcpConn.state != Established {
		return ErrNotEstablished
	}

	seg, err := tcpConn.poll()
	if err != nil {
		return err
	}
	if seg != nil {
		if err := tcpConn.onReceiveSegment(seg); err != nil {
			return err
		}
		if seg.Len() > 0 {
			tcpConn.ackOwed = true
		}
		if seg.Flags.ACK {
			tcpConn.onAck(seg.Ack)
		}
	}

	tcpConn.checkRetransmitTimer()

	if err := tcpConn.sendFromInput(); err != nil {
		return err
	}
	tcpConn.sendOwedAck()
	return nil
}
