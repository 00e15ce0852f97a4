package wire

import (
	"testing"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/codec"
	"pgregory.net/rapid"
)

func genLocation(t *rapid.T) slick.NodeLocation {
	n := rapid.IntRange(0, 4).Draw(t, "n")
	loc := make(slick.NodeLocation, n)
	for i := range loc {
		loc[i] = slick.Address{
			Host: rapid.String().Draw(t, "host"),
			Port: rapid.Uint16().Draw(t, "port"),
		}
	}
	return loc
}

func gen16(t *rapid.T, label string) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = rapid.Byte().Draw(t, label)
	}
	return out
}

func TestHandshakeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := Handshake{
			InitTag: InitTag,
			Version: Version,
			NodeID:  slick.NodeId(gen16(t, "id")),
		}
		d := codec.NewDecoder(h.Encode())
		got := DecodeHandshake(d)
		if got.InitTag != h.InitTag || got.Version != h.Version || got.NodeID != h.NodeID {
			t.Fatalf("round trip mismatch: %+v != %+v", got, h)
		}
		if d.Err() != nil {
			t.Fatalf("decoder error: %v", d.Err())
		}
	})
}

func TestKeysMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(t, "n")
		items := make([]KeyItem, n)
		for i := range items {
			items[i] = KeyItem{
				Key:   rapid.String().Draw(t, "key"),
				KeyID: slick.KeyId(gen16(t, "keyid")),
				Loc:   genLocation(t),
				TTL:   rapid.Uint64().Draw(t, "ttl"),
			}
		}
		msg := KeysMessage{Items: items}
		d := codec.NewDecoder(msg.Encode())
		got := DecodeKeysMessage(d)
		if d.Err() != nil {
			t.Fatalf("decoder error: %v", d.Err())
		}
		if len(got.Items) != len(items) {
			t.Fatalf("length mismatch: %d != %d", len(got.Items), len(items))
		}
		for i := range items {
			if got.Items[i].Key != items[i].Key || got.Items[i].KeyID != items[i].KeyID || got.Items[i].TTL != items[i].TTL {
				t.Fatalf("item %d mismatch: %+v != %+v", i, got.Items[i], items[i])
			}
		}
	})
}

func TestQueryMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(t, "n")
		keys := make([]string, n)
		for i := range keys {
			keys[i] = rapid.String().Draw(t, "key")
		}
		msg := QueryMessage{SenderLoc: genLocation(t), Keys: keys}
		d := codec.NewDecoder(msg.Encode())
		got := DecodeQueryMessage(d)
		if d.Err() != nil {
			t.Fatalf("decoder error: %v", d.Err())
		}
		if len(got.Keys) != len(keys) {
			t.Fatalf("length mismatch")
		}
		for i := range keys {
			if got.Keys[i] != keys[i] {
				t.Fatalf("key %d mismatch", i)
			}
		}
	})
}

func TestFetchAndDataRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(t, "n")
		fkeys := make([]FetchKey, n)
		for i := range fkeys {
			fkeys[i] = FetchKey{Key: rapid.String().Draw(t, "key"), KeyID: slick.KeyId(gen16(t, "keyid"))}
		}
		fm := FetchMessage{Items: fkeys}
		d := codec.NewDecoder(fm.Encode())
		got := DecodeFetchMessage(d)
		if d.Err() != nil || len(got.Items) != len(fkeys) {
			t.Fatalf("fetch round trip failed")
		}

		ditems := make([]DataItem, n)
		for i := range ditems {
			ditems[i] = DataItem{
				Key:     fkeys[i].Key,
				KeyID:   fkeys[i].KeyID,
				Payload: rapid.SliceOf(rapid.Byte()).Draw(t, "payload"),
			}
		}
		dm := DataMessage{Items: ditems}
		d2 := codec.NewDecoder(dm.Encode())
		got2 := DecodeDataMessage(d2)
		if d2.Err() != nil || len(got2.Items) != len(ditems) {
			t.Fatalf("data round trip failed")
		}
	})
}

func TestEncodeTypedPrefixesType(t *testing.T) {
	msg := QueryMessage{Keys: []string{"a"}}
	framed := EncodeTyped(msg.Type(), msg.Encode())
	d := codec.NewDecoder(framed)
	if got := Type(d.Uint16()); got != TypeQuery {
		t.Fatalf("type mismatch: %v", got)
	}
	_ = DecodeQueryMessage(d)
	if d.Err() != nil {
		t.Fatalf("decoder error: %v", d.Err())
	}
}
