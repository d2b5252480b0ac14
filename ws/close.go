package ws

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/momentics/ws-endpoint/wsproto"
)

// CloseAbnormal is used locally to record a close caused by a transport
// error or unexpected disconnect rather than an RFC 6455 close frame; it
// is never written to the wire, matching RFC 6455 §7.1.5's definition of
// 1006.
const CloseAbnormal uint16 = 1006

// closeGracePeriod bounds how long a locally initiated Close waits for
// the peer's close frame to arrive before finalizing unilaterally.
const closeGracePeriod = 3 * time.Second

func encodeClosePayload(code uint16, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	copy(payload[2:], reason)
	return payload
}

func closeCodeForReadError(err error) uint16 {
	switch {
	case errors.Is(err, wsproto.ErrProtocolError), errors.Is(err, wsproto.ErrFrameTooLarge):
		return wsproto.CloseProtocolError
	case errors.Is(err, wsproto.ErrUnsupportedOpcode):
		return wsproto.CloseUnsupportedOpcode
	default:
		return CloseAbnormal
	}
}

// handlePeerClose runs the remote-initiated half of the C8 close
// protocol: echo a close frame back if one hasn't already been sent,
// flush it, then finalize with the peer's code and reason.
func (e *Endpoint) handlePeerClose(payload []byte) {
	code := uint16(wsproto.CloseNormal)
	reason := ""
	if len(payload) >= 2 {
		code = binary.BigEndian.Uint16(payload[:2])
		reason = string(payload[2:])
	}

	e.mu.Lock()
	alreadySent := e.closeSent
	e.mu.Unlock()

	if !alreadySent {
		e.enqueueRaw(wsproto.OpClose, encodeClosePayload(code, ""))
		e.mu.Lock()
		e.closeSent = true
		e.mu.Unlock()
		e.drainOutput()
	}

	e.finalize(code, reason)
}

// closeGraceExpired reports whether a locally initiated close has waited
// longer than its grace period (Close's timeout, closeGracePeriod when
// nil) for the peer's acknowledging close frame.
func (e *Endpoint) closeGraceExpired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closeTimer == nil {
		return true
	}
	return e.closeTimer.TimedOut()
}

// finalize is the single place that transitions an endpoint into its
// terminal closed state: it records the close code/reason, fails every
// pending Send/Ping promise still waiting, wakes any blocked Recv, and
// closes the underlying transport. Idempotent.
func (e *Endpoint) finalize(code uint16, reason string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.closeCode = code
	e.closeReason = reason

	for e.output.Length() > 0 {
		item := e.output.Remove().(*outboundItem)
		if item.result != nil && !item.result.Done() {
			item.result.SetError(ErrPeerClosed)
		}
	}
	for key, p := range e.pings {
		if !p.Done() {
			p.SetError(ErrPeerClosed)
		}
		delete(e.pings, key)
	}
	e.recvCond.Broadcast()
	e.mu.Unlock()

	if err := e.conn.CloseWrite(); err != nil {
		e.sink.Logf("%s: write half-close failed: %v", e, err)
	}
	e.conn.Close()
	e.sink.Logf("%s: closed code=%d reason=%q", e, code, reason)
}
