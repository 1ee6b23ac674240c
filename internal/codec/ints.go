package codec

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// AppendUint64 appends the compressed encoding of v: one length byte
// followed by the big endian magnitude without leading zero bytes.
func AppendUint64(dst []byte, v uint64) []byte {
	n := (bits.Len64(v) + 7) / 8
	dst = append(dst, byte(n))
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// ReadUint64 decodes a compressed unsigned integer and returns it with the
// number of bytes consumed.
func ReadUint64(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty integer", ErrMalformed)
	}
	n := int(b[0])
	if n > 8 || len(b) < 1+n {
		return 0, 0, fmt.Errorf("%w: integer length %d", ErrMalformed, n)
	}
	var v uint64
	for _, c := range b[1 : 1+n] {
		v = v<<8 | uint64(c)
	}
	return v, 1 + n, nil
}

// AppendLocalID appends a non-negative entity local id.
func AppendLocalID(dst []byte, id int64) []byte {
	return AppendUint64(dst, uint64(id))
}

// ReadLocalID decodes a local id written by AppendLocalID.
func ReadLocalID(b []byte) (int64, int, error) {
	v, n, err := ReadUint64(b)
	if err != nil {
		return 0, 0, err
	}
	if v > 1<<63-1 {
		return 0, 0, fmt.Errorf("%w: local id overflow", ErrMalformed)
	}
	return int64(v), n, nil
}

// LocalIDBytes returns the encoding of a single local id.
func LocalIDBytes(id int64) []byte { return AppendLocalID(nil, id) }

// LocalID decodes a value that holds exactly one local id.
func LocalID(b []byte) (int64, error) {
	id, n, err := ReadLocalID(b)
	if err != nil {
		return 0, err
	}
	if n != len(b) {
		return 0, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-n)
	}
	return id, nil
}

// AppendID appends a non-negative 32 bit id (type, property or link id).
func AppendID(dst []byte, id int32) []byte {
	return AppendUint64(dst, uint64(uint32(id)))
}

// ReadID decodes an id written by AppendID.
func ReadID(b []byte) (int32, int, error) {
	v, n, err := ReadUint64(b)
	if err != nil {
		return 0, 0, err
	}
	if v > 1<<31-1 {
		return 0, 0, fmt.Errorf("%w: id overflow", ErrMalformed)
	}
	return int32(v), n, nil
}

// IDBytes returns the encoding of a single id.
func IDBytes(id int32) []byte { return AppendID(nil, id) }

// ID decodes a value that holds exactly one id.
func ID(b []byte) (int32, error) {
	id, n, err := ReadID(b)
	if err != nil {
		return 0, err
	}
	if n != len(b) {
		return 0, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-n)
	}
	return id, nil
}

// AppendSigned64 appends v as fixed width big endian with the sign bit
// flipped so that negative values sort first.
func AppendSigned64(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^(1<<63))
}

func readSigned64(b []byte) (int64, int, error) {
	if len(b) < 8 {
		return 0, 0, fmt.Errorf("%w: short int64", ErrMalformed)
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), 8, nil
}
