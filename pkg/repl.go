package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Status renders the connection as a small table.
func (tcpConn *Connection) Status() string {
	var res strings.Builder
	res.WriteString("Role       State         LAddr                 RAddr                 SndNxt      RcvNxt")
	fmt.Fprintf(&res, "\n%-10s %-13s %-21s %-21s %-11d %d",
		tcpConn.role,
		tcpConn.state,
		formatAddr(tcpConn.channel.LocalAddr()),
		formatAddr(tcpConn.channel.RemoteAddr()),
		uint32(tcpConn.currentSeq),
		uint32(tcpConn.nextExpectedSeq))

	res.WriteString("\nInFlight  Buffered  LastAck     DupAcks")
	fmt.Fprintf(&res, "\n%-9s %-9s %-11d %d",
		strconv.Itoa(tcpConn.sendWindow.Len())+"/"+strconv.Itoa(tcpConn.sendWindow.Cap()),
		strconv.Itoa(tcpConn.recvBuffer.Len())+"/"+strconv.Itoa(tcpConn.recvBuffer.Cap()),
		uint32(tcpConn.mostRecentAck),
		tcpConn.duplicateAckCount)

	stats := tcpConn.stats
	res.WriteString("\nSent  Recv  BytesOut  BytesIn  FastRetx  TimeoutRetx  Dropped")
	fmt.Fprintf(&res, "\n%-5d %-5d %-9d %-8d %-9d %-12d %d",
		stats.SegmentsSent,
		stats.SegmentsReceived,
		stats.BytesSent,
		stats.BytesDelivered,
		stats.FastRetransmits,
		stats.TimeoutRetransmits,
		stats.DroppedWindowFull+stats.DroppedBufferFull+stats.DroppedStale+stats.DroppedMalformed)
	return res.String()
}
