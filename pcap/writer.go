// Package pcap writes classic libpcap capture files.
package pcap

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

const (
	// LinkTypeRaw marks records that begin directly with an IP header.
	LinkTypeRaw uint32 = 101

	fileHeaderLen   = 24
	recordHeaderLen = 16
)

var ErrHeaderNotWritten = errors.New("pcap: file header not written")

type Writer struct {
	w             io.Writer
	snapLen       uint32
	headerWritten bool
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{w: out}
}

// WriteFileHeader emits the global header. It must precede WritePacket.
func (w *Writer) WriteFileHeader(snapLen uint32, linkType uint32) error {
	var hdr [fileHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], 0xa1b2c3d4)
	binary.LittleEndian.PutUint16(hdr[4:6], 2) // Major version
	binary.LittleEndian.PutUint16(hdr[6:8], 4) // Minor version
	binary.LittleEndian.PutUint32(hdr[16:20], snapLen)
	binary.LittleEndian.PutUint32(hdr[20:24], linkType)
	if _, err := w.w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "pcap: write header")
	}
	w.snapLen = snapLen
	w.headerWritten = true
	return nil
}

// WritePacket appends one record, truncating data to the snap length.
func (w *Writer) WritePacket(ts time.Time, data []byte) error {
	if !w.headerWritten {
		return ErrHeaderNotWritten
	}
	captured := data
	if w.snapLen != 0 && uint32(len(captured)) > w.snapLen {
		captured = captured[:w.snapLen]
	}

	var rec [recordHeaderLen]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(ts.Unix()))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(ts.Nanosecond()/1_000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(captured)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(data)))
	if _, err := w.w.Write(rec[:]); err != nil {
		return errors.Wrap(err, "pcap: write record header")
	}
	if _, err := w.w.Write(captured); err != nil {
		return errors.Wrap(err, "pcap: write packet data")
	}
	return nil
}
