package ws

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"github.com/momentics/ws-endpoint/promise"
	"github.com/momentics/ws-endpoint/timer"
	"github.com/momentics/ws-endpoint/wsproto"
)

// Send enqueues payload as a single unfragmented data frame and blocks
// until the worker has written it, or until timeout elapses (nil blocks
// indefinitely). The promise shares Endpoint's own mutex, so the worker
// can fulfill it from inside drainOutput without a second lock
// acquisition.
func (e *Endpoint) Send(mt MessageType, payload []byte, timeout *time.Duration) error {
	opcode := byte(wsproto.OpBinary)
	if mt == Text {
		opcode = wsproto.OpText
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrAlreadyClosed
	}

	p := promise.New[struct{}](&e.mu)
	e.output.Add(&outboundItem{result: p, opcode: opcode, payload: payload})

	_, err := p.Get(timeout)
	if errors.Is(err, promise.ErrTimeout) {
		p.Cancel()
		return ErrSendTimeout
	}
	return err
}

// Recv blocks until a data message is available, the endpoint closes, or
// timeout elapses (nil blocks indefinitely).
func (e *Endpoint) Recv(timeout *time.Duration) (Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var deadline *time.Time
	if timeout != nil {
		d := time.Now().Add(*timeout)
		deadline = &d
	}
	e.waitForInputOrClose(deadline)

	if e.input.Length() > 0 {
		return e.input.Remove().(Message), nil
	}
	if e.closed {
		return Message{}, ErrAlreadyClosed
	}
	return Message{}, ErrRecvTimeout
}

// waitForInputOrClose blocks on recvCond until the input queue is
// non-empty, the endpoint closes, or deadline passes. Caller must hold
// e.mu.
func (e *Endpoint) waitForInputOrClose(deadline *time.Time) {
	if deadline == nil {
		for e.input.Length() == 0 && !e.closed {
			e.recvCond.Wait()
		}
		return
	}
	wake := time.AfterFunc(time.Until(*deadline), func() {
		e.mu.Lock()
		e.recvCond.Broadcast()
		e.mu.Unlock()
	})
	defer wake.Stop()
	for e.input.Length() == 0 && !e.closed && time.Now().Before(*deadline) {
		e.recvCond.Wait()
	}
}

// Ping sends a control ping and blocks until the matching Pong arrives,
// the endpoint closes, or timeout elapses. The 4-byte correlation key is
// generated internally from a monotonic counter.
func (e *Endpoint) Ping(timeout *time.Duration) error {
	seq := atomic.AddUint32(&e.pingSeq, 1)
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], seq)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrAlreadyClosed
	}

	p := promise.New[struct{}](&e.mu)
	e.pings[key] = p
	e.output.Add(&outboundItem{opcode: wsproto.OpPing, payload: key[:]})

	_, err := p.Get(timeout)
	if errors.Is(err, promise.ErrTimeout) {
		delete(e.pings, key)
		return ErrPingTimeout
	}
	return err
}

// Close requests an orderly shutdown: the worker sends a close frame
// carrying code/reason, waits up to timeout (closeGracePeriod if nil)
// for the peer's own close frame, then tears the connection down
// regardless. Close blocks until the worker has fully stopped. Calling
// Close more than once is a no-op.
func (e *Endpoint) Close(code uint16, reason string, timeout *time.Duration) error {
	e.mu.Lock()
	if e.closed || e.closeRequested {
		e.mu.Unlock()
		<-e.workerDone
		return nil
	}
	limit := closeGracePeriod
	if timeout != nil {
		limit = *timeout
	}
	e.closeRequested = true
	e.closeRequestCode = code
	e.closeRequestReason = reason
	e.closeTimer = timer.New(&limit)
	e.mu.Unlock()

	<-e.workerDone
	return nil
}
