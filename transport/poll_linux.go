//go:build linux
// +build linux

package transport

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// platformState lazily owns a one-shot, level-triggered epoll instance
// registered against the connection's raw file descriptor. Level-
// triggered (no EPOLLET) means a readable byte left undrained keeps
// reporting ready on the next poll, unlike an edge-triggered reactor.
type platformState struct {
	once sync.Once
	epfd int
	fd   int
	err  error
}

func (c *netConn) epoll() *platformState {
	c.ps.once.Do(func() {
		rc, ok := c.nc.(syscall.Conn)
		if !ok {
			c.ps.err = fmt.Errorf("transport: connection does not expose a raw fd")
			return
		}
		raw, err := rc.SyscallConn()
		if err != nil {
			c.ps.err = err
			return
		}
		var fd int
		if err := raw.Control(func(sysfd uintptr) { fd = int(sysfd) }); err != nil {
			c.ps.err = err
			return
		}
		epfd, err := unix.EpollCreate1(0)
		if err != nil {
			c.ps.err = err
			return
		}
		ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			unix.Close(epfd)
			c.ps.err = err
			return
		}
		c.ps.epfd = epfd
		c.ps.fd = fd
	})
	return &c.ps
}

func (c *netConn) wait(mask uint32, timeout time.Duration) (bool, error) {
	st := c.epoll()
	if st.err != nil {
		return false, st.err
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	// Narrow the registration to the event being waited for, so a socket
	// that is merely writable does not end a PollRead wait early.
	ev := &unix.EpollEvent{Events: mask, Fd: int32(st.fd)}
	if err := unix.EpollCtl(st.epfd, unix.EPOLL_CTL_MOD, st.fd, ev); err != nil {
		return false, err
	}
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(st.epfd, events[:], ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		return events[0].Events&mask != 0, nil
	}
}

func (c *netConn) PollRead(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	closed := c.closed
	buffered := c.br.Buffered() > 0
	c.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	if buffered {
		return true, nil
	}
	return c.wait(unix.EPOLLIN, timeout)
}

func (c *netConn) PollWrite(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	return c.wait(unix.EPOLLOUT, timeout)
}
