package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type card struct {
	ID        string    `json:"id" msgpack:"id" cbor:"id"`
	Followers int64     `json:"followers" msgpack:"followers" cbor:"followers"`
	Seen      time.Time `json:"seen" msgpack:"seen" cbor:"seen"`
}

func TestStructCodecs(t *testing.T) {
	in := card{ID: "1", Followers: 42, Seen: time.Unix(1_700_000_000, 0).UTC()}
	codecs := map[string]Codec[card]{
		"json":     JSONCodec[card]{},
		"msgpack":  Msgpack[card]{},
		"cbor":     MustCBOR[card](false),
		"cbor-det": MustCBOR[card](true),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.ID != in.ID || out.Followers != in.Followers || !out.Seen.Equal(in.Seen) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestDeterministicCBORIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, _ := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if string(a) != string(b) {
		t.Fatalf("deterministic encoding differs")
	}
}

func TestProtobuf(t *testing.T) {
	c, err := NewProtobuf(func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} })
	if err != nil {
		t.Fatalf("NewProtobuf: %v", err)
	}
	b, err := c.Encode(wrapperspb.Int64(7))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !proto.Equal(out, wrapperspb.Int64(7)) {
		t.Fatalf("got %v", out)
	}
	if _, err := c.Decode([]byte{0xff}); err == nil {
		t.Fatalf("truncated payload must fail")
	}
	if _, err := NewProtobuf[*wrapperspb.Int64Value](nil); err == nil {
		t.Fatalf("nil constructor must fail")
	}
}

func TestLimitCodec(t *testing.T) {
	// JSON quotes add two bytes: "1234" encodes to 6.
	c := LimitCodec[string]{Inner: JSONCodec[string]{}, MaxDecode: 6}
	if _, err := c.Decode([]byte(`"12345"`)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if s, err := c.Decode([]byte(`"1234"`)); err != nil || s != "1234" {
		t.Fatalf("Decode within limit: %q %v", s, err)
	}
	unlimited := LimitCodec[string]{Inner: JSONCodec[string]{}}
	big := `"` + strings.Repeat("a", 1<<16) + `"`
	if _, err := unlimited.Decode([]byte(big)); err != nil {
		t.Fatalf("MaxDecode 0 must not limit: %v", err)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "MsgPack", "cbor", "cbor-det"} {
		c, err := ByName[card](name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		b, err := c.Encode(card{ID: "7", Followers: 3})
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		got, err := c.Decode(b)
		if err != nil || got.ID != "7" || got.Followers != 3 {
			t.Fatalf("%q decode: %+v %v", name, got, err)
		}
	}
	if _, err := ByName[card]("xml"); err == nil {
		t.Fatalf("unknown codec must fail")
	}
}
