package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes read-models with vmihailenco/msgpack. Field names follow
// `msgpack:"..."` tags, falling back to the Go field name (not the json tag).
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
