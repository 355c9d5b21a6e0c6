package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version        byte = 1
	kindTimed      byte = 1
	kindGeneration byte = 2

	hdrLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("tally: corrupt entry")
	magic4     = [...]byte{'T', 'L', 'L', 'Y'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Timed: magic(4) | ver(1) | kind(1=timed) | created unix ms (i64 be) | vlen(u32 be) | payload(vlen)
func EncodeTimed(createdMs int64, payload []byte) []byte {
	return encode(kindTimed, uint64(createdMs), payload)
}

func DecodeTimed(b []byte) (createdMs int64, payload []byte, err error) {
	v, payload, err := decode(kindTimed, b)
	return int64(v), payload, err
}

// Generation: magic(4) | ver(1) | kind(2=generation) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeGeneration(gen uint64, payload []byte) []byte {
	return encode(kindGeneration, gen, payload)
}

func DecodeGeneration(b []byte) (gen uint64, payload []byte, err error) {
	return decode(kindGeneration, b)
}

func encode(kind byte, head uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], head)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// decode rejects anything that is not exactly one frame of the wanted kind:
// short input, foreign magic, other versions, and trailing bytes.
func decode(kind byte, b []byte) (uint64, []byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kind {
		return 0, nil, ErrCorrupt
	}

	off := 6

	head := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return head, b[off : off+vlen], nil
}
