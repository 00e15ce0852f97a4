package codec

import (
	"testing"

	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		u8 := rapid.Uint8().Draw(rt, "u8")
		u16 := rapid.Uint16().Draw(rt, "u16")
		u32 := rapid.Uint32().Draw(rt, "u32")
		u64 := rapid.Uint64().Draw(rt, "u64")
		f64 := rapid.Float64().Draw(rt, "f64")
		str := rapid.String().Draw(rt, "str")
		raw := rapid.SliceOf(rapid.Byte()).Draw(rt, "raw")
		seq := rapid.SliceOf(rapid.Uint32()).Draw(rt, "seq")

		e := NewEncoder(64)
		e.PutUint8(u8)
		e.PutUint16(u16)
		e.PutUint32(u32)
		e.PutUint64(u64)
		e.PutFloat64(f64)
		e.PutString(str)
		e.PutBytes(raw)
		e.PutSeqHeader(len(seq))
		for _, v := range seq {
			e.PutUint32(v)
		}

		d := NewDecoder(e.Bytes())
		if got := d.Uint8(); got != u8 {
			rt.Fatalf("u8: got %d want %d", got, u8)
		}
		if got := d.Uint16(); got != u16 {
			rt.Fatalf("u16: got %d want %d", got, u16)
		}
		if got := d.Uint32(); got != u32 {
			rt.Fatalf("u32: got %d want %d", got, u32)
		}
		if got := d.Uint64(); got != u64 {
			rt.Fatalf("u64: got %d want %d", got, u64)
		}
		gotF := d.Float64()
		if gotF != f64 && !(gotF != gotF && f64 != f64) { // NaN != NaN
			rt.Fatalf("f64: got %v want %v", gotF, f64)
		}
		if got := d.String(); got != str {
			rt.Fatalf("str: got %q want %q", got, str)
		}
		gotRaw := d.Bytes()
		if len(gotRaw) != len(raw) {
			rt.Fatalf("raw len: got %d want %d", len(gotRaw), len(raw))
		}
		for i := range raw {
			if gotRaw[i] != raw[i] {
				rt.Fatalf("raw[%d]: got %d want %d", i, gotRaw[i], raw[i])
			}
		}
		n := d.SeqHeader()
		if n != len(seq) {
			rt.Fatalf("seq len: got %d want %d", n, len(seq))
		}
		for i := 0; i < n; i++ {
			if got := d.Uint32(); got != seq[i] {
				rt.Fatalf("seq[%d]: got %d want %d", i, got, seq[i])
			}
		}
		if d.Err() != nil {
			rt.Fatalf("unexpected decode error: %v", d.Err())
		}
		if d.Remaining() != 0 {
			rt.Fatalf("expected buffer fully consumed, %d bytes left", d.Remaining())
		}
	})
}

func TestDecodeTruncatedIsSticky(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	d.Uint32()
	if d.Err() != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", d.Err())
	}
	// Further reads must not panic and must keep reporting the same error.
	if v := d.Uint64(); v != 0 {
		t.Fatalf("expected zero value after sticky error, got %d", v)
	}
	if d.Err() != ErrTruncated {
		t.Fatalf("error should remain sticky, got %v", d.Err())
	}
}

func TestStringUnterminated(t *testing.T) {
	d := NewDecoder([]byte{'a', 'b', 'c'})
	d.String()
	if d.Err() != ErrStringNotTerminated {
		t.Fatalf("expected ErrStringNotTerminated, got %v", d.Err())
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	var buf [FrameHeaderSize]byte
	PutFrameHeader(buf[:], 1234)
	if got := FrameHeader(buf[:]); got != 1234 {
		t.Fatalf("got %d want 1234", got)
	}
}

func TestAppendFrameRejectsOversize(t *testing.T) {
	_, err := AppendFrame(nil, make([]byte, MaxFrameSize+1))
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
