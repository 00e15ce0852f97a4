// Package codec implements the wire serialization helper described in the
// design: fixed-endian packing of primitives, strings, and variable-length
// sequences into byte buffers and back. It has no knowledge of the gossip
// protocol's message types; those live in package wire and are built out of
// the primitives here.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncated is returned by Decoder methods when the underlying buffer
// does not contain enough bytes to satisfy the read. Once set, the
// decoder is sticky: further reads are no-ops returning the zero value.
var ErrTruncated = errors.New("codec: truncated buffer")

// ErrStringNotTerminated is returned when a string field runs off the end
// of the buffer without a NUL terminator.
var ErrStringNotTerminated = errors.New("codec: unterminated string")

// ErrPayloadTooLarge is returned when a payload exceeds MaxFrameSize and
// cannot be framed for transmission.
var ErrPayloadTooLarge = errors.New("codec: payload exceeds frame size limit")

// Multi-byte integers inside messages use network byte order, per the
// wire format. The 2-byte frame length prefix is a separate concern
// (little-endian) handled by AppendFrame and FrameHeader in frame.go.
var order = binary.BigEndian

// Encoder accumulates packed fields into a growing byte buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with an empty buffer pre-sized to size
// bytes of capacity. Passing the exact expected size avoids reallocation.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutUint16(v uint16) {
	var tmp [2]byte
	order.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutUint32(v uint32) {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutUint64(v uint64) {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// PutFloat64 bit-punches through the equivalent-width unsigned integer,
// per the design's IEEE-754 packing rule.
func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

// PutRaw appends exactly v, with no length prefix. Used for fixed-width
// fields such as 128-bit identifiers.
func (e *Encoder) PutRaw(v []byte) { e.buf = append(e.buf, v...) }

// PutString writes a NUL-terminated string; size is inferred from the
// terminator on decode, matching the design's string representation.
func (e *Encoder) PutString(s string) {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// PutBytes writes a u32-length-prefixed byte sequence. Used for payloads
// nested inside other messages (e.g. the Data message's per-item payload).
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// PutSeqHeader writes the u32 count prefix for a variable-length sequence.
// Callers pack each element themselves with the other Put* methods; this
// just writes the count that precedes them.
func (e *Encoder) PutSeqHeader(n int) { e.PutUint32(uint32(n)) }

// Decoder reads packed fields off a byte buffer in order. Once a read
// fails the decoder is sticky: Err() reports the first failure and all
// further reads return the zero value without re-scanning.
type Decoder struct {
	buf []byte
	pos int
	err error
}

// NewDecoder wraps buf for sequential decoding. buf is not copied; the
// caller must not mutate it while decoding is in progress.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first decode error encountered, or nil.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of bytes not yet consumed.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.buf)-d.pos < n {
		d.fail(ErrTruncated)
		return false
	}
	return true
}

func (d *Decoder) Uint8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *Decoder) Uint16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

func (d *Decoder) Uint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *Decoder) Uint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v
}

func (d *Decoder) Float64() float64 { return math.Float64frombits(d.Uint64()) }

// Raw reads exactly n bytes and returns a copy. Used for fixed-width
// fields such as 128-bit identifiers.
func (d *Decoder) Raw(n int) []byte {
	if !d.need(n) {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out
}

// String reads a NUL-terminated string.
func (d *Decoder) String() string {
	if d.err != nil {
		return ""
	}
	end := -1
	for i := d.pos; i < len(d.buf); i++ {
		if d.buf[i] == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		d.fail(ErrStringNotTerminated)
		return ""
	}
	s := string(d.buf[d.pos:end])
	d.pos = end + 1
	return s
}

// Bytes reads a u32-length-prefixed byte sequence.
func (d *Decoder) Bytes() []byte {
	n := d.Uint32()
	if d.err != nil {
		return nil
	}
	return d.Raw(int(n))
}

// SeqHeader reads the u32 count prefix for a variable-length sequence.
func (d *Decoder) SeqHeader() int { return int(d.Uint32()) }
