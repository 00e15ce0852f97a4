//go:build !linux

package transport

// chanWaker is the portable fallback used by the non-Linux poller, which
// has no epoll set to register an eventfd into and instead selects
// directly on a channel alongside each connection's goroutine.
type chanWaker struct {
	ch chan struct{}
}

func newWaker() (*chanWaker, error) {
	return &chanWaker{ch: make(chan struct{}, 1)}, nil
}

func (w *chanWaker) Wake() error {
	select {
	case w.ch <- struct{}{}:
	default:
		// A wakeup is already pending; coalesce.
	}
	return nil
}

func (w *chanWaker) Close() error {
	close(w.ch)
	return nil
}

// NewWaker returns the platform's Waker implementation.
func NewWaker() (Waker, error) {
	return newWaker()
}
