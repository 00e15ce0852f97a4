//go:build linux

package transport

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfdWaker wakes the poll goroutine through a real eventfd, which
// the Linux poller registers directly in its epoll set. It coalesces:
// repeated Wake calls before the counter is drained add up, but the
// epoll readiness event fires exactly once per drain.
type eventfdWaker struct {
	fd int
}

// newWaker creates an eventfd in non-blocking, semaphore-less mode: a
// single read drains the accumulated counter to zero.
func newWaker() (*eventfdWaker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventfdWaker{fd: fd}, nil
}

func (w *eventfdWaker) FD() int { return w.fd }

func (w *eventfdWaker) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Counter is at max; a pending wakeup is already latched.
			return nil
		}
		return err
	}
}

// Drain clears the eventfd counter after epoll reports it readable.
func (w *eventfdWaker) Drain() error {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

func (w *eventfdWaker) Close() error {
	return unix.Close(w.fd)
}

// NewWaker returns the platform's Waker implementation.
func NewWaker() (Waker, error) {
	return newWaker()
}
