package ws

import (
	"github.com/momentics/ws-endpoint/wsproto"
)

// runWorker is the single background goroutine C6 describes: it owns the
// socket for the lifetime of the connection, alternating between
// draining the output queue and polling for an inbound frame, and it is
// the only goroutine that ever calls conn.Read or conn.Write once the
// handshake has completed.
func (e *Endpoint) runWorker() {
	defer close(e.workerDone)

	for {
		e.mu.Lock()
		requested := e.closeRequested
		sent := e.closeSent
		reqCode, reqReason := e.closeRequestCode, e.closeRequestReason
		e.mu.Unlock()

		if requested && !sent {
			e.enqueueRaw(wsproto.OpClose, encodeClosePayload(reqCode, reqReason))
			e.mu.Lock()
			e.closeSent = true
			sent = true
			e.mu.Unlock()
		}

		e.drainOutput()
		if e.isClosed() {
			return
		}

		if requested && sent && e.closeGraceExpired() {
			e.finalize(reqCode, reqReason)
			return
		}

		ready, err := e.conn.PollRead(e.pollInterval)
		if err != nil {
			e.finalize(CloseAbnormal, err.Error())
			return
		}
		if !ready {
			continue
		}

		opcode, payload, err := wsproto.ReadMessage(e.conn)
		if err != nil {
			e.finalize(closeCodeForReadError(err), err.Error())
			return
		}

		switch opcode {
		case wsproto.OpText, wsproto.OpBinary:
			e.deliver(opcode, payload)
		case wsproto.OpPing:
			e.enqueueRaw(wsproto.OpPong, payload)
		case wsproto.OpPong:
			e.resolvePong(payload)
		case wsproto.OpClose:
			e.handlePeerClose(payload)
			return
		}
	}
}

// deliver pushes a fully reassembled data message onto the input queue
// and wakes a blocked Recv.
func (e *Endpoint) deliver(opcode byte, payload []byte) {
	mt := Binary
	if opcode == wsproto.OpText {
		mt = Text
	}
	e.mu.Lock()
	e.input.Add(Message{Type: mt, Payload: payload})
	e.recvCond.Signal()
	e.mu.Unlock()
}

// enqueueRaw queues a frame the worker itself generated (an automatic
// Pong, an echoed or locally initiated Close) with no promise attached.
func (e *Endpoint) enqueueRaw(opcode byte, payload []byte) {
	e.mu.Lock()
	e.output.Add(&outboundItem{opcode: opcode, payload: payload})
	e.mu.Unlock()
}

// resolvePong fulfills the Ping promise correlated with payload's
// leading 4 bytes, if one is still pending.
func (e *Endpoint) resolvePong(payload []byte) {
	if len(payload) < 4 {
		return
	}
	var key [4]byte
	copy(key[:], payload[:4])

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pings[key]; ok {
		delete(e.pings, key)
		p.SetResult(struct{}{})
	}
}

// drainOutput writes queued frames in FIFO order until the queue is
// empty or the connection stops accepting writes. A write failure aborts
// the connection: frames are not retried. An item whose promise was
// cancelled by a timed-out Send is dropped without being written.
func (e *Endpoint) drainOutput() {
	for {
		e.mu.Lock()
		if e.output.Length() == 0 {
			e.mu.Unlock()
			return
		}
		item := e.output.Peek().(*outboundItem)
		if item.result != nil && item.result.Cancelled() {
			e.output.Remove()
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()

		ready, err := e.conn.PollWrite(e.pollInterval)
		if err != nil {
			e.finalize(CloseAbnormal, err.Error())
			return
		}
		if !ready {
			return
		}

		writeErr := wsproto.WriteFrame(e.conn, true, item.opcode, item.payload)

		e.mu.Lock()
		e.output.Remove()
		if item.result != nil && !item.result.Done() {
			if writeErr != nil {
				item.result.SetError(writeErr)
			} else {
				item.result.SetResult(struct{}{})
			}
		}
		e.mu.Unlock()

		if writeErr != nil {
			e.finalize(CloseAbnormal, writeErr.Error())
			return
		}
	}
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
