package protocol

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrWouldBlock = errors.New("operation would block")
	ErrNoPeer     = errors.New("peer address not known yet")
)

// Channel is the unreliable datagram service the connection runs over.
// TryRecv returns ErrWouldBlock when nothing is pending.
type Channel interface {
	TrySend(datagram []byte) error
	TryRecv(buf []byte) (int, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// UDPChannel is a Channel over a UDP socket. A short read deadline stands in
// for a non-blocking socket.
type UDPChannel struct {
	Conn         *net.UDPConn
	Peer         *net.UDPAddr // nil until learned when listening
	LearnPeer    bool         // update Peer from every inbound datagram
	PollInterval time.Duration
}

// DialChannel creates the initiator's channel to a fixed peer.
func DialChannel(host string, port uint16, pollInterval time.Duration) (*UDPChannel, error) {
	if host == "localhost" {
		host = "127.0.0.1"
	}
	peer, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s:%d", host, port)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create socket")
	}
	return &UDPChannel{
		Conn:         conn,
		Peer:         peer,
		PollInterval: pollInterval,
	}, nil
}

// ListenChannel creates the responder's channel bound to port on every
// interface. The peer is whoever sent the most recent datagram.
func ListenChannel(port uint16, pollInterval time.Duration) (*UDPChannel, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: int(port)})
	if err != nil {
		return nil, errors.Wrapf(err, "bind port %d", port)
	}
	return NewUDPChannel(conn, nil, pollInterval), nil
}

// NewUDPChannel wraps an existing socket. With a nil peer the channel learns
// it from inbound traffic.
func NewUDPChannel(conn *net.UDPConn, peer *net.UDPAddr, pollInterval time.Duration) *UDPChannel {
	return &UDPChannel{
		Conn:         conn,
		Peer:         peer,
		LearnPeer:    peer == nil,
		PollInterval: pollInterval,
	}
}

func (ch *UDPChannel) TrySend(datagram []byte) error {
	if ch.Peer == nil {
		return ErrNoPeer
	}
	if _, err := ch.Conn.WriteToUDP(datagram, ch.Peer); err != nil {
		return errors.Wrapf(err, "send to %s", ch.Peer)
	}
	return nil
}

func (ch *UDPChannel) TryRecv(buf []byte) (int, error) {
	if err := ch.Conn.SetReadDeadline(time.Now().Add(ch.PollInterval)); err != nil {
		return 0, errors.Wrap(err, "set read deadline")
	}
	n, addr, err := ch.Conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrWouldBlock
		}
		return 0, errors.Wrap(err, "receive")
	}
	if ch.LearnPeer {
		ch.Peer = addr
	}
	return n, nil
}

func (ch *UDPChannel) LocalAddr() net.Addr { return ch.Conn.LocalAddr() }

func (ch *UDPChannel) RemoteAddr() net.Addr {
	if ch.Peer == nil {
		return nil
	}
	return ch.Peer
}

func (ch *UDPChannel) Close() error { return ch.Conn.Close() }
