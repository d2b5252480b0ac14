package transport

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// Fake is an in-memory Conn double for exercising the handshake and I/O
// worker without a real socket. Bytes written to it accumulate in Sent;
// bytes queued via Feed become available to Read. Grounded on the
// teacher's fake.Transport, adapted from a batched [][]byte transport to
// this package's streaming byte-Conn interface.
type Fake struct {
	mu               sync.Mutex
	inbound          bytes.Buffer
	Sent             bytes.Buffer
	closed           bool
	writeErr         error
	readErr          error
	CloseWriteCalled int
}

// NewFake returns a ready-to-use Fake with no queued input.
func NewFake() *Fake {
	return &Fake{}
}

// Feed appends bytes that a subsequent Read will return.
func (f *Fake) Feed(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound.Write(p)
}

// FailNextWrite makes the next Write return err.
func (f *Fake) FailNextWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// PollRead reports readiness immediately if data is already queued;
// otherwise it sleeps for timeout (capped, so a caller that passes a
// long or indefinite timeout doesn't hang a test) to mimic a real
// blocking poll and give a concurrent Feed a chance to land.
func (f *Fake) PollRead(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false, ErrClosed
	}
	if f.inbound.Len() > 0 {
		f.mu.Unlock()
		return true, nil
	}
	f.mu.Unlock()

	sleep := timeout
	if sleep < 0 || sleep > 20*time.Millisecond {
		sleep = 20 * time.Millisecond
	}
	time.Sleep(sleep)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrClosed
	}
	return f.inbound.Len() > 0, nil
}

func (f *Fake) PollWrite(_ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrClosed
	}
	return true, nil
}

func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return 0, err
	}
	if f.closed && f.inbound.Len() == 0 {
		return 0, io.EOF
	}
	return f.inbound.Read(p)
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return 0, err
	}
	if f.closed {
		return 0, ErrClosed
	}
	return f.Sent.Write(p)
}

func (f *Fake) CloseWrite() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseWriteCalled++
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
