package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var (
	pbMarshal   = proto.MarshalOptions{Deterministic: true}
	pbUnmarshal = proto.UnmarshalOptions{DiscardUnknown: true}
)

// Protobuf encodes generated messages with deterministic map ordering, so equal
// snapshots produce equal bytes. Fields unknown to the reader are dropped on
// decode, which lets an older binary read entries written by a newer schema.
type Protobuf[T proto.Message] struct {
	fresh func() T
}

// NewProtobuf takes a constructor for the message to decode into, e.g.
// func() *pb.Profile { return &pb.Profile{} }.
func NewProtobuf[T proto.Message](fresh func() T) (Protobuf[T], error) {
	if fresh == nil {
		return Protobuf[T]{}, errors.New("codec: protobuf constructor is nil")
	}
	return Protobuf[T]{fresh: fresh}, nil
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return pbMarshal.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.fresh()
	if err := pbUnmarshal.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
