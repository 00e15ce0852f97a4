// Package wire implements the gossip protocol's message set and
// handshake on top of package codec's primitive packing.
package wire

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/codec"
)

// InitTag is the literal that opens every handshake. A mismatched tag
// means the peer is speaking a different protocol; the connection is
// dropped immediately.
const InitTag = "_slick_peer_disc_"

// Version is the only protocol version this module speaks. A mismatched
// version has no negotiation defined and is treated as a fatal
// assertion.
const Version uint32 = 1

// Type tags each message on the wire, preceding its body as a u16.
type Type uint16

const (
	TypeKeys Type = iota + 1
	TypeQuery
	TypeNodes
	TypeFetch
	TypeData
)

func (t Type) String() string {
	switch t {
	case TypeKeys:
		return "Keys"
	case TypeQuery:
		return "Query"
	case TypeNodes:
		return "Nodes"
	case TypeFetch:
		return "Fetch"
	case TypeData:
		return "Data"
	default:
		return "Unknown"
	}
}

func putAddress(e *codec.Encoder, a slick.Address) {
	e.PutString(a.Host)
	e.PutUint16(a.Port)
}

func getAddress(d *codec.Decoder) slick.Address {
	host := d.String()
	port := d.Uint16()
	return slick.Address{Host: host, Port: port}
}

func putLocation(e *codec.Encoder, loc slick.NodeLocation) {
	e.PutSeqHeader(len(loc))
	for _, a := range loc {
		putAddress(e, a)
	}
}

func getLocation(d *codec.Decoder) slick.NodeLocation {
	n := d.SeqHeader()
	if d.Err() != nil || n < 0 {
		return nil
	}
	loc := make(slick.NodeLocation, 0, n)
	for i := 0; i < n; i++ {
		loc = append(loc, getAddress(d))
	}
	return loc
}

// Handshake is the first frame sent in each direction after connect or
// accept. It may be immediately followed, in the same frame, by a Fetch
// message marking the connection as fetch-mode.
type Handshake struct {
	InitTag string
	Version uint32
	NodeID  slick.NodeId
}

// Encode serializes the handshake. Callers that need fetch-mode append
// an encoded Fetch message's bytes after this one in the same frame.
func (h Handshake) Encode() []byte {
	e := codec.NewEncoder(len(InitTag) + 1 + 4 + 16)
	e.PutString(h.InitTag)
	e.PutUint32(h.Version)
	e.PutRaw(h.NodeID[:])
	return e.Bytes()
}

// DecodeHandshake reads a Handshake off the front of a decoder, leaving
// the decoder positioned at whatever follows (possibly nothing, possibly
// a piggy-backed Fetch message).
func DecodeHandshake(d *codec.Decoder) Handshake {
	tag := d.String()
	version := d.Uint32()
	id := d.Raw(16)
	var h Handshake
	h.InitTag = tag
	h.Version = version
	copy(h.NodeID[:], id)
	return h
}

// KeyItem asserts that key/keyId exists at loc until ttl elapses.
type KeyItem struct {
	Key   string
	KeyID slick.KeyId
	Loc   slick.NodeLocation
	TTL   uint64
}

// KeysMessage carries a batch of KeyItem assertions.
type KeysMessage struct {
	Items []KeyItem
}

func (m KeysMessage) Type() Type { return TypeKeys }

func (m KeysMessage) Encode() []byte {
	e := codec.NewEncoder(32 * (len(m.Items) + 1))
	e.PutSeqHeader(len(m.Items))
	for _, it := range m.Items {
		e.PutString(it.Key)
		e.PutRaw(it.KeyID[:])
		putLocation(e, it.Loc)
		e.PutUint64(it.TTL)
	}
	return e.Bytes()
}

func DecodeKeysMessage(d *codec.Decoder) KeysMessage {
	n := d.SeqHeader()
	items := make([]KeyItem, 0, max0(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		var it KeyItem
		it.Key = d.String()
		copy(it.KeyID[:], d.Raw(16))
		it.Loc = getLocation(d)
		it.TTL = d.Uint64()
		items = append(items, it)
	}
	return KeysMessage{Items: items}
}

// QueryMessage requests the current holders of a set of keys from every
// recipient's perspective.
type QueryMessage struct {
	SenderLoc slick.NodeLocation
	Keys      []string
}

func (m QueryMessage) Type() Type { return TypeQuery }

func (m QueryMessage) Encode() []byte {
	e := codec.NewEncoder(64)
	putLocation(e, m.SenderLoc)
	e.PutSeqHeader(len(m.Keys))
	for _, k := range m.Keys {
		e.PutString(k)
	}
	return e.Bytes()
}

func DecodeQueryMessage(d *codec.Decoder) QueryMessage {
	loc := getLocation(d)
	n := d.SeqHeader()
	keys := make([]string, 0, max0(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		keys = append(keys, d.String())
	}
	return QueryMessage{SenderLoc: loc, Keys: keys}
}

// NodeItem asserts that nodeId exists at loc until ttl elapses.
type NodeItem struct {
	NodeID slick.NodeId
	Loc    slick.NodeLocation
	TTL    uint64
}

// NodesMessage carries a random digest of known membership.
type NodesMessage struct {
	Items []NodeItem
}

func (m NodesMessage) Type() Type { return TypeNodes }

func (m NodesMessage) Encode() []byte {
	e := codec.NewEncoder(32 * (len(m.Items) + 1))
	e.PutSeqHeader(len(m.Items))
	for _, it := range m.Items {
		e.PutRaw(it.NodeID[:])
		putLocation(e, it.Loc)
		e.PutUint64(it.TTL)
	}
	return e.Bytes()
}

func DecodeNodesMessage(d *codec.Decoder) NodesMessage {
	n := d.SeqHeader()
	items := make([]NodeItem, 0, max0(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		var it NodeItem
		copy(it.NodeID[:], d.Raw(16))
		it.Loc = getLocation(d)
		it.TTL = d.Uint64()
		items = append(items, it)
	}
	return NodesMessage{Items: items}
}

// FetchKey is one (key, keyId) pair requested in a Fetch message.
type FetchKey struct {
	Key   string
	KeyID slick.KeyId
}

// FetchMessage requests payloads by (key, keyId); only valid on a
// fetch-mode connection, where it is piggy-backed on the handshake frame.
type FetchMessage struct {
	Items []FetchKey
}

func (m FetchMessage) Type() Type { return TypeFetch }

func (m FetchMessage) Encode() []byte {
	e := codec.NewEncoder(32 * (len(m.Items) + 1))
	e.PutSeqHeader(len(m.Items))
	for _, it := range m.Items {
		e.PutString(it.Key)
		e.PutRaw(it.KeyID[:])
	}
	return e.Bytes()
}

func DecodeFetchMessage(d *codec.Decoder) FetchMessage {
	n := d.SeqHeader()
	items := make([]FetchKey, 0, max0(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		var it FetchKey
		it.Key = d.String()
		copy(it.KeyID[:], d.Raw(16))
		items = append(items, it)
	}
	return FetchMessage{Items: items}
}

// DataItem answers one FetchKey. An empty Payload signals "unknown or
// stale" rather than an error.
type DataItem struct {
	Key     string
	KeyID   slick.KeyId
	Payload []byte
}

// DataMessage replies to a Fetch, one DataItem per requested pair.
type DataMessage struct {
	Items []DataItem
}

func (m DataMessage) Type() Type { return TypeData }

func (m DataMessage) Encode() []byte {
	e := codec.NewEncoder(64 * (len(m.Items) + 1))
	e.PutSeqHeader(len(m.Items))
	for _, it := range m.Items {
		e.PutString(it.Key)
		e.PutRaw(it.KeyID[:])
		e.PutBytes(it.Payload)
	}
	return e.Bytes()
}

func DecodeDataMessage(d *codec.Decoder) DataMessage {
	n := d.SeqHeader()
	items := make([]DataItem, 0, max0(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		var it DataItem
		it.Key = d.String()
		copy(it.KeyID[:], d.Raw(16))
		it.Payload = d.Bytes()
		items = append(items, it)
	}
	return DataMessage{Items: items}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// EncodeTyped prefixes payload with its u16 type tag, ready to append to
// a frame.
func EncodeTyped(t Type, payload []byte) []byte {
	e := codec.NewEncoder(2 + len(payload))
	e.PutUint16(uint16(t))
	e.PutRaw(payload)
	return e.Bytes()
}
