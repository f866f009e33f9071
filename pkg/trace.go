package protocol

import (
	"io"
	"net"
	"net/netip"
	"time"

	"udp-tcp-pa/pcap"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (dir Direction) String() string {
	if dir == Inbound {
		return "in"
	}
	return "out"
}

// Tracer records every datagram as an IPv4/UDP packet in a pcap stream so a
// session can be inspected with standard capture tools.
type Tracer struct {
	pw  *pcap.Writer
	ttl int
}

func NewTracer(w io.Writer) (*Tracer, error) {
	pw := pcap.NewWriter(w)
	snapLen := uint32(ipv4header.HeaderLen + header.UDPMinimumSize + MaxSegmentSize)
	if err := pw.WriteFileHeader(snapLen, pcap.LinkTypeRaw); err != nil {
		return nil, err
	}
	return &Tracer{pw: pw, ttl: 64}, nil
}

// Record writes datagram as travelling between local and remote in dir.
func (tracer *Tracer) Record(ts time.Time, dir Direction, local, remote net.Addr, datagram []byte) error {
	src, dst := ConvertToAddrPort(local), ConvertToAddrPort(remote)
	if dir == Inbound {
		src, dst = dst, src
	}
	packet, err := encapsulate(src, dst, tracer.ttl, datagram)
	if err != nil {
		return err
	}
	return tracer.pw.WritePacket(ts, packet)
}

func encapsulate(src, dst netip.AddrPort, ttl int, datagram []byte) ([]byte, error) {
	udpLen := header.UDPMinimumSize + len(datagram)

	// UDP checksum 0 means "not computed" over IPv4
	udpHdr := make(header.UDP, header.UDPMinimumSize)
	udpHdr.Encode(&header.UDPFields{
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Length:  uint16(udpLen),
	})

	ipHdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen,
		TotalLen: ipv4header.HeaderLen + udpLen,
		TTL:      ttl,
		Protocol: int(header.UDPProtocolNumber),
		Src:      src.Addr(),
		Dst:      dst.Addr(),
		Options:  []byte{},
	}
	headerBytes, err := ipHdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal IPv4 header")
	}
	ipHdr.Checksum = int(ComputeChecksum(headerBytes))
	headerBytes, err = ipHdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal IPv4 header")
	}

	packet := make([]byte, 0, len(headerBytes)+udpLen)
	packet = append(packet, headerBytes...)
	packet = append(packet, udpHdr...)
	packet = append(packet, datagram...)
	return packet, nil
}

// ComputeChecksum is the internet checksum of an IPv4 header whose checksum
// field is zero.
func ComputeChecksum(headerBytes []byte) uint16 {
	return header.Checksum(headerBytes, 0) ^ 0xffff
}
