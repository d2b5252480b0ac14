package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/ws-endpoint/promise"
	"github.com/momentics/ws-endpoint/timer"
	"github.com/momentics/ws-endpoint/transport"
	"github.com/momentics/ws-endpoint/wslog"
)

// defaultHandshakeTimeout bounds how long Accept waits for a full
// request (through the blank line ending the headers) to arrive before
// giving up.
const defaultHandshakeTimeout = 10 * time.Second

// defaultPollInterval is how long a single PollRead/PollWrite call in the
// worker loop blocks before the worker re-checks for a pending Close.
// 50ms is a knob, not a law: smaller burns CPU on an idle connection,
// larger delays send latency and close detection.
const defaultPollInterval = 50 * time.Millisecond

// outboundItem is one entry in the output queue: a payload destined for
// the wire plus the promise Send is blocked on. Ping frames (whose
// promise lives in pings) and frames the worker generates itself carry
// no promise.
type outboundItem struct {
	result  *promise.Promise[struct{}]
	opcode  byte
	payload []byte
}

// Endpoint is one accepted WebSocket connection: the state C5 describes,
// guarded by a single mutex shared with a condition variable the worker
// signals on every new input message, and with every pending promise
// created against this same mutex so the worker can fulfill them while
// already holding it.
type Endpoint struct {
	mu       sync.Mutex
	recvCond *sync.Cond

	conn transport.Conn
	sink wslog.Sink

	handshakeTimeout time.Duration
	pollInterval     time.Duration
	validate         func(uri string, headers map[string]string) bool

	handshakeDone bool
	closed        bool
	closeCode     uint16
	closeReason   string

	closeRequested     bool
	closeSent          bool
	closeRequestCode   uint16
	closeRequestReason string
	closeTimer         *timer.Timer

	input  *queue.Queue
	output *queue.Queue

	pings   map[[4]byte]*promise.Promise[struct{}]
	pingSeq uint32

	workerDone chan struct{}
}

// New wraps conn in an Endpoint. The endpoint does nothing until Accept
// is called; Accept drives the handshake and, on success, starts the
// background I/O worker.
func New(conn transport.Conn, opts ...Option) *Endpoint {
	e := &Endpoint{
		conn:             conn,
		sink:             wslog.Discard,
		handshakeTimeout: defaultHandshakeTimeout,
		pollInterval:     defaultPollInterval,
		input:            queue.New(),
		output:           queue.New(),
		pings:            make(map[[4]byte]*promise.Promise[struct{}]),
		workerDone:       make(chan struct{}),
	}
	e.recvCond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Closed reports whether the endpoint has finished its close sequence.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Code returns the close code recorded when the endpoint closed, and
// false if it has not closed yet.
func (e *Endpoint) Code() (uint16, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		return 0, false
	}
	return e.closeCode, true
}

// Reason returns the close reason text recorded when the endpoint
// closed, and false if it has not closed yet.
func (e *Endpoint) Reason() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		return "", false
	}
	return e.closeReason, true
}

// String identifies the endpoint by pointer identity, the way every
// wslog.Sink call site in this package logs it.
func (e *Endpoint) String() string {
	return fmt.Sprintf("ws.Endpoint(%p)", e)
}
