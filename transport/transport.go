// Package transport isolates the I/O worker from the concrete byte stream
// it drives: a readiness-polled, non-blocking-friendly Conn, independent of
// any particular socket API. The portable implementation wraps a net.Conn;
// the Linux implementation additionally polls readiness via epoll.
package transport

import (
	"errors"
	"time"
)

// ErrClosed is returned by Conn methods once Close has been called.
var ErrClosed = errors.New("transport: connection closed")

// Conn is the byte-stream abstraction the I/O worker drives. PollRead and
// PollWrite block up to timeout waiting for the stream to become
// readable/writable without consuming any bytes; a timeout of zero means
// "return immediately with the current state" and a negative timeout means
// "block indefinitely".
type Conn interface {
	PollRead(timeout time.Duration) (ready bool, err error)
	PollWrite(timeout time.Duration) (ready bool, err error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// CloseWrite half-closes the write side, used by the close protocol
	// to send a TCP FIN after the close frame without tearing down the
	// read side immediately.
	CloseWrite() error
	Close() error
}
