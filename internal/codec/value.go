package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"time"
)

// Value is a typed property value. Sets hold distinct elements of one
// scalar type, kept in encoding order.
type Value struct {
	typ  Type
	elem Type
	v    any
	set  []any
}

// Of converts a Go value into a property Value. Supported are string, bool,
// int8, int16, int32, int, int64, float32, float64, time.Time and slices of
// those, which become sets.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return Value{typ: TypeString, v: x}, nil
	case bool:
		return Value{typ: TypeBool, v: x}, nil
	case int8:
		return Value{typ: TypeByte, v: x}, nil
	case int16:
		return Value{typ: TypeShort, v: x}, nil
	case int32:
		return Value{typ: TypeInt, v: x}, nil
	case int:
		return Value{typ: TypeLong, v: int64(x)}, nil
	case int64:
		return Value{typ: TypeLong, v: x}, nil
	case float32:
		return Value{typ: TypeFloat, v: x}, nil
	case float64:
		return Value{typ: TypeDouble, v: x}, nil
	case time.Time:
		return Value{typ: TypeDateTime, v: time.UnixMilli(x.UnixMilli()).UTC()}, nil
	case []string:
		return setOf(TypeString, x)
	case []int32:
		return setOf(TypeInt, x)
	case []int64:
		return setOf(TypeLong, x)
	case []int:
		items := make([]int64, len(x))
		for i, n := range x {
			items[i] = int64(n)
		}
		return setOf(TypeLong, items)
	case []float32:
		return setOf(TypeFloat, x)
	case []float64:
		return setOf(TypeDouble, x)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func setOf[T any](elem Type, items []T) (Value, error) {
	anys := make([]any, len(items))
	for i, it := range items {
		anys[i] = it
	}
	return Set(elem, anys...)
}

// Set returns a comparable set of elements of type elem. Elements must have
// the Go type that Of maps to elem.
func Set(elem Type, items ...any) (Value, error) {
	b, ok := bindingFor(elem, fixedFloats)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownElementType, elem)
	}
	type keyed struct {
		key  []byte
		item any
	}
	ks := make([]keyed, 0, len(items))
	for _, it := range items {
		sv, err := Of(it)
		if err != nil {
			return Value{}, err
		}
		if sv.typ != elem {
			return Value{}, fmt.Errorf("%w: %s element in %s set", ErrUnsupportedType, sv.typ, elem)
		}
		ks = append(ks, keyed{key: b.append(nil, sv.v), item: sv.v})
	}
	slices.SortFunc(ks, func(a, b keyed) int { return bytes.Compare(a.key, b.key) })
	ks = slices.CompactFunc(ks, func(a, b keyed) bool { return bytes.Equal(a.key, b.key) })

	set := make([]any, len(ks))
	for i, k := range ks {
		set[i] = k.item
	}
	return Value{typ: TypeSet, elem: elem, set: set}, nil
}

// Type returns the value type.
func (v Value) Type() Type { return v.typ }

// ElemType returns the element type of a set.
func (v Value) ElemType() Type { return v.elem }

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool { return v.typ == TypeNone }

// Interface returns the Go representation: the scalar, or a copy of the set
// elements.
func (v Value) Interface() any {
	if v.typ == TypeSet {
		return slices.Clone(v.set)
	}
	return v.v
}

// Len returns the number of set elements, or 1 for scalars.
func (v Value) Len() int {
	if v.typ == TypeSet {
		return len(v.set)
	}
	return 1
}

// Equal reports whether both values have the same encoding.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(AppendValue(nil, v), AppendValue(nil, o))
}

func (v Value) String() string {
	if v.typ == TypeSet {
		return fmt.Sprintf("%s%v", v.elem, v.set)
	}
	return fmt.Sprintf("%v", v.v)
}

// AppendValue appends the stored encoding of v: a type tag followed by the
// ordered binding, or for sets the element tag, the element count and the
// elements.
func AppendValue(dst []byte, v Value) []byte {
	return appendValue(dst, v, fixedFloats)
}

// AppendLegacyValue appends v as it was written by the legacy float codec.
func AppendLegacyValue(dst []byte, v Value) []byte {
	return appendValue(dst, v, legacyFloats)
}

func appendValue(dst []byte, v Value, enc floatEncoding) []byte {
	dst = append(dst, byte(v.typ))
	if v.typ == TypeSet {
		dst = append(dst, byte(v.elem))
		dst = binary.AppendUvarint(dst, uint64(len(v.set)))
		b, ok := bindingFor(v.elem, enc)
		if !ok {
			return dst
		}
		for _, it := range v.set {
			dst = b.append(dst, it)
		}
		return dst
	}
	if b, ok := bindingFor(v.typ, enc); ok {
		dst = b.append(dst, v.v)
	}
	return dst
}

// DecodeValue decodes a value written by AppendValue.
func DecodeValue(b []byte) (Value, error) {
	return decodeValue(b, fixedFloats)
}

// DecodeLegacyValue decodes a value written by the legacy float codec.
func DecodeLegacyValue(b []byte) (Value, error) {
	return decodeValue(b, legacyFloats)
}

func decodeValue(b []byte, enc floatEncoding) (Value, error) {
	if len(b) == 0 {
		return Value{}, fmt.Errorf("%w: empty value", ErrMalformed)
	}
	t := Type(b[0])
	if t == TypeSet {
		return decodeSet(b[1:], enc)
	}
	bind, ok := bindingFor(t, enc)
	if !ok {
		return Value{}, fmt.Errorf("%w: unknown type tag %d", ErrMalformed, b[0])
	}
	x, n, err := bind.read(b[1:])
	if err != nil {
		return Value{}, err
	}
	if 1+n != len(b) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-1-n)
	}
	return Value{typ: t, v: x}, nil
}

func decodeSet(b []byte, enc floatEncoding) (Value, error) {
	if len(b) == 0 {
		return Value{}, fmt.Errorf("%w: set without element type", ErrMalformed)
	}
	elem := Type(b[0])
	count, n := binary.Uvarint(b[1:])
	if n <= 0 {
		return Value{}, fmt.Errorf("%w: set length", ErrMalformed)
	}
	rest := b[1+n:]
	if count == 0 {
		if len(rest) != 0 {
			return Value{}, fmt.Errorf("%w: trailing bytes after empty set", ErrMalformed)
		}
		return Value{typ: TypeSet, elem: elem}, nil
	}
	bind, ok := bindingFor(elem, enc)
	if !ok {
		return Value{}, fmt.Errorf("%w: tag %d", ErrUnknownElementType, b[0])
	}
	if count > uint64(len(rest)) {
		return Value{}, fmt.Errorf("%w: set length %d exceeds input", ErrMalformed, count)
	}
	set := make([]any, 0, count)
	for i := uint64(0); i < count; i++ {
		x, m, err := bind.read(rest)
		if err != nil {
			return Value{}, err
		}
		set = append(set, x)
		rest = rest[m:]
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after set", ErrMalformed, len(rest))
	}
	return Value{typ: TypeSet, elem: elem, set: set}, nil
}

// SecondaryKeys returns the value-index keys of v: one for a scalar and one
// per element for a set. Each key is the scalar type tag followed by the
// ordered binding.
func SecondaryKeys(v Value) ([][]byte, error) {
	return secondaryKeys(v, fixedFloats)
}

// LegacySecondaryKeys returns the value-index keys v had under the legacy
// float codec.
func LegacySecondaryKeys(v Value) ([][]byte, error) {
	return secondaryKeys(v, legacyFloats)
}

func secondaryKeys(v Value, enc floatEncoding) ([][]byte, error) {
	if v.typ != TypeSet {
		b, ok := bindingFor(v.typ, enc)
		if !ok {
			return nil, fmt.Errorf("%w: type %s", ErrMalformed, v.typ)
		}
		return [][]byte{b.append([]byte{byte(v.typ)}, v.v)}, nil
	}
	if len(v.set) == 0 {
		return nil, nil
	}
	b, ok := bindingFor(v.elem, enc)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElementType, v.elem)
	}
	keys := make([][]byte, len(v.set))
	for i, it := range v.set {
		keys[i] = b.append([]byte{byte(v.elem)}, it)
	}
	return keys, nil
}

// DecodeSecondaryKey decodes a value-index key into its scalar value.
func DecodeSecondaryKey(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, fmt.Errorf("%w: empty secondary key", ErrMalformed)
	}
	t := Type(b[0])
	bind, ok := bindingFor(t, fixedFloats)
	if !ok {
		return Value{}, fmt.Errorf("%w: secondary key tag %d", ErrMalformed, b[0])
	}
	x, n, err := bind.read(b[1:])
	if err != nil {
		return Value{}, err
	}
	if 1+n != len(b) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-1-n)
	}
	return Value{typ: t, v: x}, nil
}

// HasNegativeFloating reports whether v holds a negative float or double,
// the only values whose encoding differs between the legacy and the fixed
// float codec.
func HasNegativeFloating(v Value) bool {
	isNeg := func(x any) bool {
		switch f := x.(type) {
		case float32:
			return math.Signbit(float64(f))
		case float64:
			return math.Signbit(f)
		}
		return false
	}
	if v.typ == TypeSet {
		return slices.ContainsFunc(v.set, isNeg)
	}
	return isNeg(v.v)
}
