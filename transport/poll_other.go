//go:build !linux
// +build !linux

package transport

import (
	"errors"
	"net"
	"time"
)

// platformState carries no extra state on the portable fallback; epoll
// bookkeeping is Linux-only.
type platformState struct{}

// PollRead probes readability without consuming bytes via Peek(1) under a
// temporary read deadline. This is the portable fallback used wherever
// epoll isn't available; write-readiness has no portable non-blocking
// probe short of epoll, so PollWrite always reports ready and lets the
// subsequent Write block as a plain blocking call would.
func (c *netConn) PollRead(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	c.mu.Unlock()

	if timeout < 0 {
		if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
			return false, err
		}
	} else {
		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return false, err
		}
	}
	defer c.nc.SetReadDeadline(time.Time{})

	if _, err := c.br.Peek(1); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *netConn) PollWrite(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return true, nil
}
