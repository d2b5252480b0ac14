// Package promise implements a single-shot, cross-goroutine rendezvous
// primitive on top of a mutex and condition variable.
//
// This is the cross-thread rendezvous the I/O worker uses to hand a
// send/ping result back to whichever goroutine is blocked waiting for it.
// A Promise optionally shares an external lock with its surrounding
// structure (see New) so that a holder of that lock can fulfill the
// promise without a nested, deadlocking re-acquisition of the same mutex.
package promise

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Get when the wait deadline elapses before the
// promise is resolved. The promise's state is left untouched.
var ErrTimeout = errors.New("promise: timed out")

// ErrCancelled is the error a cancelled promise resolves to.
var ErrCancelled = errors.New("promise: cancelled")

type state int32

const (
	pending state = iota
	fulfilled
	errored
)

// Promise is a one-shot, generic rendezvous between a producer (the
// goroutine that calls SetResult/SetError/Cancel) and a consumer (the
// goroutine that calls Get).
type Promise[T any] struct {
	owned bool // true when Promise created and manages its own lock
	cond  *sync.Cond

	state state
	value T
	err   error
}

// New constructs a pending Promise. If lock is nil, the Promise creates
// and manages a private mutex, and every method locks/unlocks around its
// critical section — safe to use standalone from any goroutine.
//
// If lock is non-nil, the caller is assumed to already hold lock when
// calling SetResult, SetError, or Cancel (this is the external-lock
// sharing mode: it lets a single worker goroutine hold one mutex across
// state mutation on many promises without re-entering it). Get still
// works from a different goroutine as long as that goroutine also holds
// lock for the duration of the call — sync.Cond.Wait releases it while
// parked and reacquires it before returning.
func New[T any](lock sync.Locker) *Promise[T] {
	owned := lock == nil
	if owned {
		lock = &sync.Mutex{}
	}
	return &Promise[T]{owned: owned, cond: sync.NewCond(lock)}
}

func (p *Promise[T]) lock() {
	if p.owned {
		p.cond.L.Lock()
	}
}

func (p *Promise[T]) unlock() {
	if p.owned {
		p.cond.L.Unlock()
	}
}

// SetResult resolves the promise successfully. It is a programming error
// to call this on a promise that has already left the pending state.
func (p *Promise[T]) SetResult(value T) {
	p.lock()
	defer p.unlock()
	if p.state != pending {
		panic("promise: SetResult called on a non-pending promise")
	}
	p.value = value
	p.state = fulfilled
	p.cond.Broadcast()
}

// SetError resolves the promise with an error. It is a programming error
// to call this on a promise that has already left the pending state.
func (p *Promise[T]) SetError(err error) {
	p.lock()
	defer p.unlock()
	if p.state != pending {
		panic("promise: SetError called on a non-pending promise")
	}
	p.err = err
	p.state = errored
	p.cond.Broadcast()
}

// Cancel resolves the promise with ErrCancelled. It is a no-op if the
// promise is already resolved.
func (p *Promise[T]) Cancel() {
	p.lock()
	defer p.unlock()
	if p.state != pending {
		return
	}
	p.err = ErrCancelled
	p.state = errored
	p.cond.Broadcast()
}

// Get blocks until the promise is resolved or timeout elapses (a nil
// timeout waits indefinitely). A timed-out Get returns ErrTimeout without
// mutating the promise's state — the producer may still resolve it later.
func (p *Promise[T]) Get(timeout *time.Duration) (T, error) {
	p.lock()
	defer p.unlock()

	if p.state == pending {
		if timeout == nil {
			for p.state == pending {
				p.cond.Wait()
			}
		} else {
			deadline := time.Now().Add(*timeout)
			timer := time.AfterFunc(*timeout, func() {
				p.cond.L.Lock()
				p.cond.Broadcast()
				p.cond.L.Unlock()
			})
			defer timer.Stop()
			for p.state == pending && time.Now().Before(deadline) {
				p.cond.Wait()
			}
			if p.state == pending {
				var zero T
				return zero, ErrTimeout
			}
		}
	}

	if p.state == errored {
		var zero T
		return zero, p.err
	}
	return p.value, nil
}

// Done reports whether the promise has left the pending state.
func (p *Promise[T]) Done() bool {
	p.lock()
	defer p.unlock()
	return p.state != pending
}

// Cancelled reports whether the promise resolved via Cancel (or was
// otherwise set to ErrCancelled).
func (p *Promise[T]) Cancelled() bool {
	p.lock()
	defer p.unlock()
	return p.state == errored && errors.Is(p.err, ErrCancelled)
}
