package codec

import "encoding/binary"

// MaxFrameSize is the largest payload the 2-byte length prefix can
// address. Oversize payloads must be rejected before send.
const MaxFrameSize = 1<<16 - 1

// FrameHeaderSize is the size in bytes of the length prefix.
const FrameHeaderSize = 2

// frameOrder is little-endian, distinct from the network byte order used
// for fields inside messages: the length prefix is a framing detail of
// the transport, not part of the serialized message format.
var frameOrder = binary.LittleEndian

// PutFrameHeader writes the length prefix for a payload of size n into
// buf, which must be at least FrameHeaderSize long. n must not exceed
// MaxFrameSize.
func PutFrameHeader(buf []byte, n int) {
	frameOrder.PutUint16(buf, uint16(n))
}

// FrameHeader reads a length prefix out of buf, which must be at least
// FrameHeaderSize long.
func FrameHeader(buf []byte) int {
	return int(frameOrder.Uint16(buf))
}

// AppendFrame appends the length-prefixed encoding of payload to dst.
func AppendFrame(dst []byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, ErrPayloadTooLarge
	}
	var hdr [FrameHeaderSize]byte
	PutFrameHeader(hdr[:], len(payload))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst, nil
}
