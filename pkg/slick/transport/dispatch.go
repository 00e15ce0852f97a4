package transport

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/codec"
	"github.com/rattab/slick/pkg/slick/wire"
)

// dispatchFrame is the OS-independent half of per-connection frame
// handling, shared by the Linux epoll poller and the portable fallback.
// The first frame on every connection is always a Handshake; everything
// after is handed to Handlers.OnMessage untouched, since only the
// gossip layer knows how to decode Keys/Query/Nodes/Fetch/Data bodies.
func dispatchFrame(h *Handlers, c *ConnState, frame []byte) {
	if !c.Connected {
		d := codec.NewDecoder(frame)
		hs := wire.DecodeHandshake(d)
		if d.Err() != nil || hs.InitTag != wire.InitTag || hs.Version != wire.Version {
			if h.OnClosed != nil {
				h.OnClosed(c, slick.ErrProtocolMismatch)
			}
			return
		}
		c.PeerID = hs.NodeID
		c.Connected = true

		// A fetch-mode connection piggy-backs its Fetch message on the
		// same frame right after the handshake fields. An accepted
		// socket has no other way to learn this before OnHandshake
		// runs, so peek the piggy-backed tag here rather than trusting
		// whatever Mode addConn guessed at accept time.
		var piggyback []byte
		if d.Remaining() > 0 {
			piggyback = frame[len(frame)-d.Remaining():]
			if wire.Type(codec.NewDecoder(piggyback).Uint16()) == wire.TypeFetch {
				c.Mode = ModeFetch
			}
		}

		if h.OnHandshake != nil && !h.OnHandshake(c, hs.InitTag, hs.Version, hs.NodeID) {
			return
		}
		if len(piggyback) > 0 && h.OnMessage != nil {
			h.OnMessage(c, piggyback)
		}
		return
	}
	if h.OnMessage != nil {
		h.OnMessage(c, frame)
	}
}
