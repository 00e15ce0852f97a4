//go:build !linux

package transport

import (
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/wire"
)

// fallbackPoller is the portable Poller used on platforms without
// epoll/eventfd/timerfd. It keeps the same single-owner-of-state
// contract as the Linux poller -- exactly one goroutine (the one
// running Run) ever touches a ConnState -- by having per-connection
// reader goroutines do nothing but push raw reads onto a channel that
// Run's select loop drains.
type fallbackPoller struct {
	cfg    Config
	period time.Duration

	controlQ *DeferQueue[any]
	payloadQ *DeferQueue[sendOp]
	waker    Waker

	readCh   chan readEvent
	acceptCh chan net.Conn
	tickCh   chan time.Time
	closeCh  chan struct{}
	closeOnce sync.Once

	listener net.Listener

	conns  map[slick.ConnId]*ConnState
	nextID func() slick.ConnId
}

type readEvent struct {
	id  slick.ConnId
	buf []byte
	err error
}

func newPoller(cfg Config, period time.Duration) (Poller, error) {
	waker, err := NewWaker()
	if err != nil {
		return nil, err
	}
	p := &fallbackPoller{
		cfg:      cfg,
		period:   period,
		controlQ: NewControlQueue[any](cfg.ControlQueueCap, waker),
		payloadQ: NewPayloadQueue[sendOp](cfg.PayloadQueueCap, waker),
		waker:    waker,
		readCh:   make(chan readEvent, 64),
		acceptCh: make(chan net.Conn, 16),
		tickCh:   make(chan time.Time, 1),
		closeCh:  make(chan struct{}),
		conns:    make(map[slick.ConnId]*ConnState),
		nextID:   slick.NewConnId,
	}
	return p, nil
}

func (p *fallbackPoller) Run(h *Handlers) error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return err
	}
	p.listener = ln
	go p.acceptLoop()

	ticker := time.NewTicker(JitteredPeriod(p.period))
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCh:
			for _, c := range p.conns {
				c.conn.Close()
			}
			return nil

		case conn := <-p.acceptCh:
			c := p.addConn(conn, DirInbound, ModeGossip)
			p.sendHandshake(c, nil)

		case ev := <-p.readCh:
			c, ok := p.conns[ev.id]
			if !ok {
				continue
			}
			if ev.err != nil {
				p.closeConn(h, c, ev.err)
				continue
			}
			c.recvBuf = append(c.recvBuf, ev.buf...)
			for _, frame := range c.takeFrames() {
				p.dispatch(h, c, frame)
			}

		case t := <-ticker.C:
			if h.OnTick != nil {
				h.OnTick()
			}
			select {
			case p.tickCh <- t:
			default:
			}

		case <-chanOf(p.waker):
			for _, op := range p.controlQ.Drain() {
				p.handleControl(h, op)
			}
			for _, op := range p.payloadQ.Drain() {
				p.handleSend(h, op)
			}
		}
	}
}

// chanOf exposes the fallback chanWaker's internal channel so Run can
// select on it directly; this is the one place the fallback poller
// reaches past the Waker interface, since it needs the readiness signal
// itself rather than just a drain-after-epoll-event notification.
func chanOf(w Waker) <-chan struct{} {
	if cw, ok := w.(*chanWaker); ok {
		return cw.ch
	}
	ch := make(chan struct{})
	return ch
}

func (p *fallbackPoller) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		select {
		case p.acceptCh <- conn:
		case <-p.closeCh:
			conn.Close()
			return
		}
	}
}

func (p *fallbackPoller) addConn(conn net.Conn, dir Direction, mode Mode) *ConnState {
	c := &ConnState{
		ID:       p.nextID(),
		Mode:     mode,
		Dir:      dir,
		conn:     conn,
		openedAt: time.Now(),
	}
	p.conns[c.ID] = c
	go p.readLoop(c)
	return c
}

func (p *fallbackPoller) readLoop(c *ConnState) {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case p.readCh <- readEvent{id: c.ID, buf: cp}:
			case <-p.closeCh:
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				err = ErrNotConnected
			}
			select {
			case p.readCh <- readEvent{id: c.ID, err: err}:
			case <-p.closeCh:
			}
			return
		}
	}
}

func (p *fallbackPoller) dispatch(h *Handlers, c *ConnState, frame []byte) {
	dispatchFrame(h, c, frame)
}

// sendHandshake queues this node's handshake, optionally with a Fetch
// message piggy-backed in the same frame for fetch-mode connections.
func (p *fallbackPoller) sendHandshake(c *ConnState, fetchBody []byte) {
	body := wire.Handshake{InitTag: wire.InitTag, Version: wire.Version, NodeID: p.cfg.LocalID}.Encode()
	if len(fetchBody) > 0 {
		body = append(body, fetchBody...)
	}
	if err := c.queueFrame(body, p.cfg.MaxSendQueue); err == nil {
		p.flush(c)
	}
}

func (p *fallbackPoller) flush(c *ConnState) {
	for len(c.sendQ) > 0 {
		_, err := c.conn.Write(c.sendQ[0])
		if err != nil {
			return
		}
		c.sendQ = c.sendQ[1:]
	}
}

func (p *fallbackPoller) closeConn(h *Handlers, c *ConnState, reason error) {
	c.conn.Close()
	delete(p.conns, c.ID)
	if h.OnClosed != nil {
		h.OnClosed(c, reason)
	}
}

func (p *fallbackPoller) handleControl(h *Handlers, op any) {
	switch v := op.(type) {
	case connectOp:
		conn, err := net.DialTimeout("tcp", net.JoinHostPort(v.addr.Host, strconv.Itoa(int(v.addr.Port))), 5*time.Second)
		if err != nil {
			return
		}
		c := p.addConn(conn, DirOutbound, v.mode)
		c.Remote = slick.NodeLocation{v.addr}
		p.sendHandshake(c, v.fetch)
	case disconnectOp:
		if c, ok := p.conns[v.id]; ok {
			p.closeConn(h, c, nil)
		}
	default:
		if h.OnDefer != nil {
			h.OnDefer(op)
		}
	}
}

func (p *fallbackPoller) handleSend(h *Handlers, op sendOp) {
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
	c, ok := p.conns[op.id]
	if !ok {
		return
	}
	if err := c.queueFrame(op.payload, p.cfg.MaxSendQueue); err != nil {
		if h.OnDroppedPayload != nil {
			h.OnDroppedPayload(err)
		}
		return
	}
	p.flush(c)
}

func (p *fallbackPoller) Connect(addr slick.Address, mode Mode) error {
	return p.controlQ.Push(connectOp{addr: addr, mode: mode})
}

func (p *fallbackPoller) ConnectFetch(addr slick.Address, fetchBody []byte) error {
	return p.controlQ.Push(connectOp{addr: addr, mode: ModeFetch, fetch: fetchBody})
}

func (p *fallbackPoller) Disconnect(id slick.ConnId) error {
	return p.controlQ.Push(disconnectOp{id: id})
}

func (p *fallbackPoller) Defer(op any) error {
	return p.controlQ.Push(op)
}

func (p *fallbackPoller) Send(id slick.ConnId, payload []byte) error {
	return p.payloadQ.Push(sendOp{id: id, payload: payload})
}

func (p *fallbackPoller) Tick() <-chan time.Time {
	return p.tickCh
}

func (p *fallbackPoller) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		if p.listener != nil {
			p.listener.Close()
		}
		p.waker.Close()
	})
	return nil
}
