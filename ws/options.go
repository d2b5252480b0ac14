// File: ws/options.go
// Package ws implements the server-role endpoint: handshake, framing,
// and the single I/O worker that owns a connection end to end.

package ws

import (
	"time"

	"github.com/momentics/ws-endpoint/wslog"
)

// Option customizes an Endpoint before Accept runs.
type Option func(*Endpoint)

// WithLogger attaches a Sink the worker and API calls write diagnostic
// lines through. The default is wslog.Discard.
func WithLogger(sink wslog.Sink) Option {
	return func(e *Endpoint) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithHandshakeTimeout bounds how long Accept waits for a complete
// request (through the blank line ending the headers) before failing
// with an error that wraps wsproto.ErrRequestTimeout. The default is 10s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(e *Endpoint) {
		e.handshakeTimeout = d
	}
}

// WithPollInterval sets how long the worker blocks in a single readiness
// poll before re-checking for a pending Close. Smaller values make Close
// more responsive at the cost of busier polling. The default is 50ms.
func WithPollInterval(d time.Duration) Option {
	return func(e *Endpoint) {
		e.pollInterval = d
	}
}

// WithValidate installs a predicate invoked with the handshake URI and
// headers; returning false fails the handshake with a 400 response, the
// same as a malformed request.
func WithValidate(fn func(uri string, headers map[string]string) bool) Option {
	return func(e *Endpoint) {
		e.validate = fn
	}
}
