//go:build unix

package protocol

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type fileSource struct {
	fd int
}

// NewFileSource switches f's descriptor to non-blocking mode and reads it
// directly, bypassing the runtime poller.
func NewFileSource(f *os.File) (Source, error) {
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrapf(err, "set %s non-blocking", f.Name())
	}
	return &fileSource{fd: fd}, nil
}

func (src *fileSource) TryRead(p []byte) (int, error) {
	n, err := unix.Read(src.fd, p)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, ErrWouldBlock
	case err != nil:
		return 0, errors.Wrap(err, "read input")
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// statusSignals are the signals that make the loop log its status table.
func statusSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
