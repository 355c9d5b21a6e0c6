package codec

import "fmt"

// LimitCodec refuses to decode payloads larger than MaxDecode bytes; Encode is
// passed through. MaxDecode <= 0 disables the check. readmodel wraps its codec
// with it when Options.MaxDecode is set, so an oversized entry in a shared
// cache reads as a decode failure (and is discarded) instead of being parsed.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
