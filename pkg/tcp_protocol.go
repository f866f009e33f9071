package protocol

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/netstack/tcpip/seqnum"
)

type Role int

const (
	Initiator Role = iota
	Responder
)

func (role Role) String() string {
	if role == Responder {
		return "responder"
	}
	return "initiator"
}

type State int

const (
	Closed State = iota
	Listening
	SynSent
	SynReceived
	Established
)

func (state State) String() string {
	switch state {
	case Closed:
		return "CLOSED"
	case Listening:
		return "LISTEN"
	case SynSent:
		return "SYN_SENT"
	case SynReceived:
		return "SYN_RECEIVED"
	case Established:
		return "ESTABLISHED"
	}
	return "UNKNOWN"
}

// Stats counts what the connection has done since it was created.
type Stats struct {
	SegmentsSent       int
	SegmentsReceived   int
	BytesSent          int
	BytesDelivered     int
	FastRetransmits    int
	TimeoutRetransmits int
	DroppedWindowFull  int
	DroppedBufferFull  int
	DroppedStale       int
	DroppedMalformed   int
}

// Connection is one side of a session. All of its state is owned by the
// goroutine that calls Handshake, Step or Run.
type Connection struct {
	role    Role
	state   State
	cfg     Config
	channel Channel
	input   Source
	output  io.Writer

	logger *slog.Logger
	tracer *Tracer
	now    func() time.Time
	newISN func() uint32
	status <-chan os.Signal

	sendWindow *SendWindow
	recvBuffer *ReceiveBuffer

	nextExpectedSeq   seqnum.Value // receive cursor
	currentSeq        seqnum.Value // next byte offset to issue
	mostRecentAck     seqnum.Value
	duplicateAckCount int
	lastAckProgress   time.Time
	ackOwed           bool
	inputDone         bool

	recvBuf  []byte
	inputBuf []byte
	stats    Stats
}

type Option func(*Connection)

func WithLogger(logger *slog.Logger) Option {
	return func(tcpConn *Connection) {
		if logger != nil {
			tcpConn.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(tcpConn *Connection) { tcpConn.now = now }
}

// WithISNSource replaces the random initial sequence number generator.
func WithISNSource(newISN func() uint32) Option {
	return func(tcpConn *Connection) { tcpConn.newISN = newISN }
}

func WithTracer(tracer *Tracer) Option {
	return func(tcpConn *Connection) { tcpConn.tracer = tracer }
}

// WithStatusSignal makes the loop log Status whenever ch fires.
func WithStatusSignal(ch <-chan os.Signal) Option {
	return func(tcpConn *Connection) { tcpConn.status = ch }
}

// NewInitiator creates a connection that opens the handshake toward the
// channel's fixed peer.
func NewInitiator(ch Channel, in Source, out io.Writer, cfg Config, opts ...Option) *Connection {
	return newConnection(Initiator, Closed, ch, in, out, cfg, opts)
}

// NewResponder creates a connection that waits for one initiator.
func NewResponder(ch Channel, in Source, out io.Writer, cfg Config, opts ...Option) *Connection {
	return newConnection(Responder, Listening, ch, in, out, cfg, opts)
}

func newConnection(role Role, state State, ch Channel, in Source, out io.Writer, cfg Config, opts []Option) *Connection {
	tcpConn := &Connection{
		role:       role,
		state:      state,
		cfg:        cfg,
		channel:    ch,
		input:      in,
		output:     out,
		logger:     discardLogger(),
		now:        time.Now,
		newISN:     randomISN,
		sendWindow: NewSendWindow(cfg.WindowSize),
		recvBuffer: NewReceiveBuffer(cfg.ReceiveBufferSize),
		recvBuf:    make([]byte, MaxSegmentSize),
		inputBuf:   make([]byte, MaxPayloadSize),
	}
	for _, opt := range opts {
		opt(tcpConn)
	}
	tcpConn.logger = tcpConn.logger.With("role", role.String())
	return tcpConn
}

// randomISN keeps the top bit clear so plain comparisons stay valid for the
// first 2 GiB of the stream.
func randomISN() uint32 {
	return rand.Uint32() >> 1
}

func (tcpConn *Connection) Role() Role { return tcpConn.role }

func (tcpConn *Connection) State() State { return tcpConn.state }

func (tcpConn *Connection) NextExpectedSeq() seqnum.Value { return tcpConn.nextExpectedSeq }

func (tcpConn *Connection) CurrentSeq() seqnum.Value { return tcpConn.currentSeq }

func (tcpConn *Connection) Stats() Stats { return tcpConn.stats }

func (tcpConn *Connection) SendWindow() *SendWindow { return tcpConn.sendWindow }

func (tcpConn *Connection) ReceiveBuffer() *ReceiveBuffer { return tcpConn.recvBuffer }

func (tcpConn *Connection) setState(state State) {
	if tcpConn.state == state {
		return
	}
	tcpConn.logger.Debug("state change", "from", tcpConn.state, "to", state)
	tcpConn.state = state
}
