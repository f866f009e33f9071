//go:build !unix

package protocol

import "os"

// NewFileSource falls back to a pump goroutine where descriptors cannot be
// made non-blocking.
func NewFileSource(f *os.File) (Source, error) {
	return NewReaderSource(f), nil
}

func statusSignals() []os.Signal { return nil }
