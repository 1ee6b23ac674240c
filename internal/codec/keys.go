package codec

import "fmt"

// EntityID identifies an entity by type and per-type local id.
type EntityID struct {
	TypeID  int32
	LocalID int64
}

func (id EntityID) String() string { return fmt.Sprintf("%d-%d", id.TypeID, id.LocalID) }

// AppendEntityID appends id ordered by type, then local id.
func AppendEntityID(dst []byte, id EntityID) []byte {
	dst = AppendID(dst, id.TypeID)
	return AppendLocalID(dst, id.LocalID)
}

// ReadEntityID decodes an entity id and returns the bytes consumed.
func ReadEntityID(b []byte) (EntityID, int, error) {
	t, n, err := ReadID(b)
	if err != nil {
		return EntityID{}, 0, err
	}
	l, m, err := ReadLocalID(b[n:])
	if err != nil {
		return EntityID{}, 0, err
	}
	return EntityID{TypeID: t, LocalID: l}, n + m, nil
}

// PropertyKey addresses one property (or link, or blob) of one entity.
type PropertyKey struct {
	LocalID    int64
	PropertyID int32
}

// Bytes returns the key encoding: local id, then property id.
func (k PropertyKey) Bytes() []byte {
	b := AppendLocalID(make([]byte, 0, 14), k.LocalID)
	return AppendID(b, k.PropertyID)
}

// DecodePropertyKey decodes a key produced by PropertyKey.Bytes.
func DecodePropertyKey(b []byte) (PropertyKey, error) {
	l, n, err := ReadLocalID(b)
	if err != nil {
		return PropertyKey{}, err
	}
	p, m, err := ReadID(b[n:])
	if err != nil {
		return PropertyKey{}, err
	}
	if n+m != len(b) {
		return PropertyKey{}, fmt.Errorf("%w: property key has %d trailing bytes", ErrMalformed, len(b)-n-m)
	}
	return PropertyKey{LocalID: l, PropertyID: p}, nil
}

// LinkValue is the target of a link together with the link id.
type LinkValue struct {
	LinkID int32
	Target EntityID
}

// Bytes returns the encoding: link id, then target id, so that values
// sharing a link id are adjacent.
func (v LinkValue) Bytes() []byte {
	b := AppendID(make([]byte, 0, 19), v.LinkID)
	return AppendEntityID(b, v.Target)
}

// DecodeLinkValue decodes a value produced by LinkValue.Bytes.
func DecodeLinkValue(b []byte) (LinkValue, error) {
	l, n, err := ReadID(b)
	if err != nil {
		return LinkValue{}, err
	}
	t, m, err := ReadEntityID(b[n:])
	if err != nil {
		return LinkValue{}, err
	}
	if n+m != len(b) {
		return LinkValue{}, fmt.Errorf("%w: link value has %d trailing bytes", ErrMalformed, len(b)-n-m)
	}
	return LinkValue{LinkID: l, Target: t}, nil
}
