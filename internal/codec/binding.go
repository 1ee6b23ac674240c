package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Type is the discriminant of a stored property value.
type Type uint8

const (
	TypeNone Type = iota
	TypeString
	TypeBool
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeDateTime
	TypeSet
)

var typeNames = [...]string{"none", "string", "bool", "byte", "short", "int", "long", "float", "double", "datetime", "set"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Scalar reports whether t is a scalar type with an ordered binding.
func (t Type) Scalar() bool { return t >= TypeString && t <= TypeDateTime }

// IsFloating reports whether t is one of the floating point types.
func (t Type) IsFloating() bool { return t == TypeFloat || t == TypeDouble }

// binding is the ordered binary codec of one scalar type.
type binding interface {
	append(dst []byte, v any) []byte
	read(b []byte) (any, int, error)
}

type floatEncoding bool

const (
	fixedFloats  floatEncoding = false
	legacyFloats floatEncoding = true
)

func bindingFor(t Type, enc floatEncoding) (binding, bool) {
	switch t {
	case TypeString:
		return stringBinding{}, true
	case TypeBool:
		return boolBinding{}, true
	case TypeByte:
		return byteBinding{}, true
	case TypeShort:
		return shortBinding{}, true
	case TypeInt:
		return intBinding{}, true
	case TypeLong:
		return longBinding{}, true
	case TypeFloat:
		return floatBinding{legacy: enc == legacyFloats}, true
	case TypeDouble:
		return doubleBinding{legacy: enc == legacyFloats}, true
	case TypeDateTime:
		return dateTimeBinding{}, true
	}
	return nil, false
}

// Strings are written with 0x00 escaped as 0x00 0xFF and terminated by
// 0x00 0x00, which keeps lexicographic order and makes them self-delimiting.
type stringBinding struct{}

func (stringBinding) append(dst []byte, v any) []byte {
	s := v.(string)
	for i := 0; i < len(s); i++ {
		dst = append(dst, s[i])
		if s[i] == 0 {
			dst = append(dst, 0xFF)
		}
	}
	return append(dst, 0, 0)
}

func (stringBinding) read(b []byte) (any, int, error) {
	var buf bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] != 0 {
			buf.WriteByte(b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case 0:
			return buf.String(), i + 2, nil
		case 0xFF:
			buf.WriteByte(0)
			i++
		default:
			return nil, 0, fmt.Errorf("%w: bad string escape", ErrMalformed)
		}
	}
	return nil, 0, fmt.Errorf("%w: unterminated string", ErrMalformed)
}

type boolBinding struct{}

func (boolBinding) append(dst []byte, v any) []byte {
	if v.(bool) {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func (boolBinding) read(b []byte) (any, int, error) {
	if len(b) < 1 || b[0] > 1 {
		return nil, 0, fmt.Errorf("%w: bool", ErrMalformed)
	}
	return b[0] == 1, 1, nil
}

type byteBinding struct{}

func (byteBinding) append(dst []byte, v any) []byte {
	return append(dst, uint8(v.(int8))^0x80)
}

func (byteBinding) read(b []byte) (any, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("%w: short byte", ErrMalformed)
	}
	return int8(b[0] ^ 0x80), 1, nil
}

type shortBinding struct{}

func (shortBinding) append(dst []byte, v any) []byte {
	return binary.BigEndian.AppendUint16(dst, uint16(v.(int16))^0x8000)
}

func (shortBinding) read(b []byte) (any, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("%w: short int16", ErrMalformed)
	}
	return int16(binary.BigEndian.Uint16(b) ^ 0x8000), 2, nil
}

type intBinding struct{}

func (intBinding) append(dst []byte, v any) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(v.(int32))^0x80000000)
}

func (intBinding) read(b []byte) (any, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("%w: short int32", ErrMalformed)
	}
	return int32(binary.BigEndian.Uint32(b) ^ 0x80000000), 4, nil
}

type longBinding struct{}

func (longBinding) append(dst []byte, v any) []byte { return AppendSigned64(dst, v.(int64)) }

func (longBinding) read(b []byte) (any, int, error) {
	v, n, err := readSigned64(b)
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

// The fixed float codec flips only the sign bit of non-negative values and
// every bit of negative ones. The legacy codec flipped the sign bit only,
// which inverts the order of negative values.
type floatBinding struct{ legacy bool }

func (f floatBinding) append(dst []byte, v any) []byte {
	bits := math.Float32bits(v.(float32))
	if f.legacy || bits&0x80000000 == 0 {
		bits ^= 0x80000000
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint32(dst, bits)
}

func (f floatBinding) read(b []byte) (any, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("%w: short float", ErrMalformed)
	}
	bits := binary.BigEndian.Uint32(b)
	if f.legacy || bits&0x80000000 != 0 {
		bits ^= 0x80000000
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits), 4, nil
}

type doubleBinding struct{ legacy bool }

func (d doubleBinding) append(dst []byte, v any) []byte {
	bits := math.Float64bits(v.(float64))
	if d.legacy || bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func (d doubleBinding) read(b []byte) (any, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("%w: short double", ErrMalformed)
	}
	bits := binary.BigEndian.Uint64(b)
	if d.legacy || bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), 8, nil
}

// Date-times are stored as milliseconds since the Unix epoch in UTC.
type dateTimeBinding struct{}

func (dateTimeBinding) append(dst []byte, v any) []byte {
	return AppendSigned64(dst, v.(time.Time).UnixMilli())
}

func (dateTimeBinding) read(b []byte) (any, int, error) {
	ms, n, err := readSigned64(b)
	if err != nil {
		return nil, 0, err
	}
	return time.UnixMilli(ms).UTC(), n, nil
}
