//go:build linux

package transport

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/wire"
)

// epollPoller is the production Poller: one goroutine owns an epoll set
// holding the listening socket, every peer connection, the eventfd
// waker for cross-thread defer queues, and a timerfd driving the
// jittered maintenance tick. Every fd is non-blocking; the poll loop
// never calls a syscall that can block on peer I/O.
type epollPoller struct {
	cfg    Config
	period time.Duration

	epfd     int
	listenFd int
	timerFd  int
	waker    *eventfdWaker

	controlQ *DeferQueue[any]
	payloadQ *DeferQueue[sendOp]

	conns map[int]*ConnState // by raw fd, the epoll key

	tickCh    chan time.Time
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newPoller(cfg Config, period time.Duration) (Poller, error) {
	waker, err := newWaker()
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		waker.Close()
		return nil, err
	}
	p := &epollPoller{
		cfg:      cfg,
		period:   period,
		epfd:     epfd,
		listenFd: -1,
		waker:    waker,
		controlQ: NewControlQueue[any](cfg.ControlQueueCap, waker),
		payloadQ: NewPayloadQueue[sendOp](cfg.PayloadQueueCap, waker),
		conns:    make(map[int]*ConnState),
		tickCh:   make(chan time.Time, 1),
		closeCh:  make(chan struct{}),
	}
	return p, nil
}

func (p *epollPoller) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *epollPoller) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (p *epollPoller) epollDel(fd int) {
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Run(h *Handlers) error {
	if err := p.setupListener(); err != nil {
		return err
	}
	if err := p.setupTimer(); err != nil {
		return err
	}
	defer p.teardown()

	const maxEvents = 128
	events := make([]unix.EpollEvent, maxEvents)

	for {
		select {
		case <-p.closeCh:
			return nil
		default:
		}

		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case p.listenFd:
				p.acceptAll(h)
			case p.waker.FD():
				p.waker.Drain()
				for _, op := range p.controlQ.Drain() {
					p.handleControl(h, op)
				}
				for _, op := range p.payloadQ.Drain() {
					p.handleSend(h, op)
				}
			case p.timerFd:
				p.drainTimer()
				if h.OnTick != nil {
					h.OnTick()
				}
				select {
				case p.tickCh <- time.Now():
				default:
				}
			default:
				p.handleConnEvent(h, fd, events[i].Events)
			}
		}
	}
}

func (p *epollPoller) setupListener() error {
	addr, err := net.ResolveTCPAddr("tcp", p.cfg.ListenAddr)
	if err != nil {
		return err
	}
	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if domain == unix.AF_INET {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To4())
		}
		err = unix.Bind(fd, &sa)
	} else {
		var sa unix.SockaddrInet6
		sa.Port = addr.Port
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		err = unix.Bind(fd, &sa)
	}
	if err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return err
	}
	p.listenFd = fd
	if err := p.epollAdd(fd, unix.EPOLLIN); err != nil {
		return err
	}
	return p.epollAdd(p.waker.FD(), unix.EPOLLIN)
}

func (p *epollPoller) setupTimer() error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return err
	}
	p.timerFd = fd
	return p.rearmTimer()
}

func (p *epollPoller) rearmTimer() error {
	d := JitteredPeriod(p.period)
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(d.Nanoseconds()),
		Interval: unix.NsecToTimespec(p.period.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(p.timerFd, 0, &spec, nil); err != nil {
		return err
	}
	return p.epollAdd(p.timerFd, unix.EPOLLIN)
}

func (p *epollPoller) drainTimer() {
	var buf [8]byte
	unix.Read(p.timerFd, buf[:])
}

func (p *epollPoller) acceptAll(h *Handlers) {
	for {
		fd, _, err := unix.Accept4(p.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		c := p.addConn(fd, DirInbound, ModeGossip)
		p.sendHandshake(c, nil)
	}
}

func (p *epollPoller) addConn(fd int, dir Direction, mode Mode) *ConnState {
	c := &ConnState{
		ID:       slick.NewConnId(),
		Mode:     mode,
		Dir:      dir,
		fd:       fd,
		openedAt: time.Now(),
	}
	p.conns[fd] = c
	p.epollAdd(fd, unix.EPOLLIN)
	return c
}

func (p *epollPoller) sendHandshake(c *ConnState, fetchBody []byte) {
	body := wire.Handshake{InitTag: wire.InitTag, Version: wire.Version, NodeID: p.cfg.LocalID}.Encode()
	if len(fetchBody) > 0 {
		body = append(body, fetchBody...)
	}
	if err := c.queueFrame(body, p.cfg.MaxSendQueue); err == nil {
		p.flush(c)
	}
}

func (p *epollPoller) handleConnEvent(h *Handlers, fd int, ev uint32) {
	c, ok := p.conns[fd]
	if !ok {
		return
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		p.closeConn(h, c, slick.ErrShutdown)
		return
	}
	if ev&unix.EPOLLIN != 0 {
		buf := make([]byte, 4096)
		for {
			n, err := unix.Read(fd, buf)
			if n > 0 {
				c.recvBuf = append(c.recvBuf, buf[:n]...)
			}
			if err == unix.EAGAIN || n == 0 {
				break
			}
			if err != nil {
				p.closeConn(h, c, err)
				return
			}
			if n < len(buf) {
				break
			}
		}
		for _, frame := range c.takeFrames() {
			dispatchFrame(h, c, frame)
			if _, stillOpen := p.conns[fd]; !stillOpen {
				return
			}
		}
	}
	if ev&unix.EPOLLOUT != 0 {
		p.flush(c)
	}
}

func (p *epollPoller) flush(c *ConnState) {
	for len(c.sendQ) > 0 {
		n, err := unix.Write(c.fd, c.sendQ[0])
		if err == unix.EAGAIN {
			p.epollMod(c.fd, unix.EPOLLIN|unix.EPOLLOUT)
			return
		}
		if err != nil {
			return
		}
		if n < len(c.sendQ[0]) {
			c.sendQ[0] = c.sendQ[0][n:]
			p.epollMod(c.fd, unix.EPOLLIN|unix.EPOLLOUT)
			return
		}
		c.sendQ = c.sendQ[1:]
	}
	p.epollMod(c.fd, unix.EPOLLIN)
}

func (p *epollPoller) closeConn(h *Handlers, c *ConnState, reason error) {
	p.epollDel(c.fd)
	unix.Close(c.fd)
	delete(p.conns, c.fd)
	if h.OnClosed != nil {
		h.OnClosed(c, reason)
	}
}

func (p *epollPoller) handleControl(h *Handlers, op any) {
	switch v := op.(type) {
	case connectOp:
		p.dial(h, v)
	case disconnectOp:
		for _, c := range p.conns {
			if c.ID == v.id {
				p.closeConn(h, c, nil)
				return
			}
		}
	default:
		if h.OnDefer != nil {
			h.OnDefer(op)
		}
	}
}

func (p *epollPoller) dial(h *Handlers, v connectOp) {
	ip := net.ParseIP(v.addr.Host)
	domain := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return
	}
	var sockErr error
	if domain == unix.AF_INET {
		var sa unix.SockaddrInet4
		sa.Port = int(v.addr.Port)
		if ip != nil {
			copy(sa.Addr[:], ip.To4())
		} else if resolved := resolveHost(v.addr.Host); resolved != nil {
			copy(sa.Addr[:], resolved.To4())
		}
		sockErr = unix.Connect(fd, &sa)
	} else {
		var sa unix.SockaddrInet6
		sa.Port = int(v.addr.Port)
		if ip != nil {
			copy(sa.Addr[:], ip.To16())
		}
		sockErr = unix.Connect(fd, &sa)
	}
	if sockErr != nil && sockErr != unix.EINPROGRESS {
		unix.Close(fd)
		return
	}
	c := p.addConn(fd, DirOutbound, v.mode)
	c.Remote = slick.NodeLocation{v.addr}
	p.sendHandshake(c, v.fetch)
}

func resolveHost(host string) net.IP {
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	return addrs[0]
}

func (p *epollPoller) handleSend(h *Handlers, op sendOp) {
	if op.id == 0 {
		for _, c := range p.conns {
			if c.Mode != ModeGossip || !c.Connected {
				continue
			}
			if err := c.queueFrame(op.payload, p.cfg.MaxSendQueue); err != nil {
				if h.OnDroppedPayload != nil {
					h.OnDroppedPayload(err)
				}
				continue
			}
			p.flush(c)
		}
		return
	}
	for _, c := range p.conns {
		if c.ID != op.id {
			continue
		}
		if err := c.queueFrame(op.payload, p.cfg.MaxSendQueue); err != nil {
			if h.OnDroppedPayload != nil {
				h.OnDroppedPayload(err)
			}
			return
		}
		p.flush(c)
		return
	}
}

func (p *epollPoller) teardown() {
	for fd, c := range p.conns {
		unix.Close(fd)
		_ = c
	}
	if p.listenFd >= 0 {
		unix.Close(p.listenFd)
	}
	if p.timerFd != 0 {
		unix.Close(p.timerFd)
	}
	p.waker.Close()
	unix.Close(p.epfd)
}

func (p *epollPoller) Connect(addr slick.Address, mode Mode) error {
	return p.controlQ.Push(connectOp{addr: addr, mode: mode})
}

func (p *epollPoller) ConnectFetch(addr slick.Address, fetchBody []byte) error {
	return p.controlQ.Push(connectOp{addr: addr, mode: ModeFetch, fetch: fetchBody})
}

func (p *epollPoller) Disconnect(id slick.ConnId) error {
	return p.controlQ.Push(disconnectOp{id: id})
}

func (p *epollPoller) Defer(op any) error {
	return p.controlQ.Push(op)
}

func (p *epollPoller) Send(id slick.ConnId, payload []byte) error {
	return p.payloadQ.Push(sendOp{id: id, payload: payload})
}

func (p *epollPoller) Tick() <-chan time.Time {
	return p.tickCh
}

func (p *epollPoller) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.waker.Wake()
	})
	return nil
}
