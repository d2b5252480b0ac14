package ws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/momentics/ws-endpoint/timer"
	"github.com/momentics/ws-endpoint/transport"
	"github.com/momentics/ws-endpoint/wsproto"
)

// maxHandshakeAccumulate mirrors wsproto.MaxHandshakeBytes: past this
// many bytes without a terminating CRLFCRLF, the request is rejected
// outright rather than accumulated forever.
const maxHandshakeAccumulate = wsproto.MaxHandshakeBytes

// Accept performs the C3 handshake: it reads from the underlying
// connection, accumulating bytes (never discarding a partial read) until
// a CRLFCRLF terminator appears, the accumulator exceeds
// maxHandshakeAccumulate, or handshakeTimeout elapses. On success it
// writes the 101 response and starts the background I/O worker. On
// failure it writes the matching error response, closes the connection,
// and marks the endpoint terminally closed: Accept must not be called
// again.
func (e *Endpoint) Accept() error {
	e.mu.Lock()
	if e.handshakeDone || e.closed {
		e.mu.Unlock()
		return ErrAlreadyClosed
	}
	e.mu.Unlock()

	limit := e.handshakeTimeout
	t := timer.New(&limit)

	var buf bytes.Buffer
	readBuf := make([]byte, 4096)

	for {
		if buf.Len() >= 4 && bytes.HasSuffix(buf.Bytes(), []byte("\r\n\r\n")) {
			break
		}
		if buf.Len() > maxHandshakeAccumulate {
			return e.failHandshake(wsproto.ErrorResponse(wsproto.ErrBadRequest), fmt.Errorf("%w: handshake exceeded %d bytes", ErrHandshakeTooBig, maxHandshakeAccumulate))
		}
		left, ok := t.Left()
		if ok && left <= 0 {
			return e.failHandshake(wsproto.ErrorResponse(wsproto.ErrRequestTimeout), fmt.Errorf("%w: %w", ErrHandshakeFailed, wsproto.ErrRequestTimeout))
		}

		pollTimeout := e.pollInterval
		if ok && left < pollTimeout {
			pollTimeout = left
		}
		ready, err := e.conn.PollRead(pollTimeout)
		if err != nil {
			return e.failHandshake(nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
		}
		if !ready {
			continue
		}

		n, err := e.conn.Read(readBuf)
		if n > 0 {
			buf.Write(readBuf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() > 0 {
				return e.failHandshake(nil, fmt.Errorf("%w: connection closed mid-handshake", ErrHandshakeFailed))
			}
			if err != io.EOF {
				return e.failHandshake(nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
			}
		}
	}

	method, uri, version, headers, err := wsproto.ParseRequest(buf.Bytes())
	if err != nil {
		return e.failHandshake(wsproto.ErrorResponse(err), fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
	}

	accept, err := wsproto.Negotiate(method, uri, version, headers, e.validate)
	if err != nil {
		return e.failHandshake(wsproto.ErrorResponse(err), fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
	}

	if _, err := writeAll(e.conn, wsproto.BuildAcceptResponse(accept)); err != nil {
		return e.failHandshake(nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
	}

	e.mu.Lock()
	e.handshakeDone = true
	e.mu.Unlock()

	go e.runWorker()
	e.sink.Logf("%s: handshake complete for %s", e, uri)
	return nil
}

// failHandshake writes resp (if non-nil) best-effort, tears the
// connection down, and marks the endpoint as terminally closed so a
// caller cannot retry Accept.
func (e *Endpoint) failHandshake(resp []byte, cause error) error {
	if resp != nil {
		writeAll(e.conn, resp)
	}
	if err := e.conn.CloseWrite(); err != nil {
		e.sink.Logf("%s: write half-close failed: %v", e, err)
	}
	e.conn.Close()
	e.mu.Lock()
	e.closed = true
	e.closeCode = wsproto.CloseProtocolError
	e.closeReason = cause.Error()
	e.mu.Unlock()
	close(e.workerDone)
	e.sink.Logf("%s: handshake failed: %v", e, cause)
	return cause
}

// Serve is the Go idiom for the Python source's context-manager pairing
// of accept() with __enter__/__exit__ calling close(): it accepts the
// handshake, runs handler with the ready endpoint, and always closes the
// endpoint afterward using closeTimeout as the close grace period,
// regardless of how handler returns. A handshake failure is returned
// without invoking handler.
func Serve(conn transport.Conn, handler func(*Endpoint) error, closeTimeout time.Duration, opts ...Option) error {
	e := New(conn, opts...)
	if err := e.Accept(); err != nil {
		return err
	}
	defer e.Close(wsproto.CloseNormal, "", &closeTimeout)
	return handler(e)
}

func writeAll(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
