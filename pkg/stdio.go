package protocol

import (
	"io"
)

// Source is the local input stream. TryRead returns ErrWouldBlock when no
// bytes are ready and io.EOF once the stream is exhausted.
type Source interface {
	TryRead(p []byte) (int, error)
}

type readResult struct {
	data []byte
	err  error
}

// readerSource adapts a blocking io.Reader with a pump goroutine. Only the
// pump touches the reader; the loop only polls the channel.
type readerSource struct {
	chunks  chan readResult
	pending []byte
	err     error
}

// NewReaderSource polls r without blocking the caller. Reads are made in
// chunks of at most MaxPayloadSize bytes.
func NewReaderSource(r io.Reader) Source {
	src := &readerSource{chunks: make(chan readResult, 1)}
	go src.pump(r)
	return src
}

func (src *readerSource) pump(r io.Reader) {
	for {
		buf := make([]byte, MaxPayloadSize)
		n, err := r.Read(buf)
		if n > 0 {
			src.chunks <- readResult{data: buf[:n]}
		}
		if err != nil {
			src.chunks <- readResult{err: err}
			close(src.chunks)
			return
		}
	}
}

func (src *readerSource) TryRead(p []byte) (int, error) {
	if len(src.pending) == 0 {
		if src.err != nil {
			return 0, src.err
		}
		select {
		case res, ok := <-src.chunks:
			if !ok {
				return 0, io.EOF
			}
			if res.err != nil {
				src.err = res.err
				return 0, res.err
			}
			src.pending = res.data
		default:
			return 0, ErrWouldBlock
		}
	}
	n := copy(p, src.pending)
	src.pending = src.pending[n:]
	return n, nil
}
