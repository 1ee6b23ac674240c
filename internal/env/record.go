package env

import (
	"encoding/binary"
	"fmt"
)

type opType uint8

const (
	opPut opType = iota + 1
	opDelete
	opDeleteKey
	opCreateStore
	opRemoveStore
	opTruncateStore
)

// op is a single logged mutation.
type op struct {
	typ   opType
	store string
	key   []byte
	value []byte
	dups  bool
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func encodeOps(ops []op) []byte {
	size := 0
	for i := range ops {
		size += 3 + len(ops[i].store) + len(ops[i].key) + len(ops[i].value) + 3*binary.MaxVarintLen32
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(ops)))
	for i := range ops {
		o := &ops[i]
		buf = append(buf, byte(o.typ))
		buf = appendBytes(buf, []byte(o.store))
		switch o.typ {
		case opPut, opDelete:
			buf = appendBytes(buf, o.key)
			buf = appendBytes(buf, o.value)
		case opDeleteKey:
			buf = appendBytes(buf, o.key)
		case opCreateStore:
			if o.dups {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf
}

type opReader struct {
	buf []byte
	off int
}

func (r *opReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, r.off)
	}
	r.off += n
	return v, nil
}

func (r *opReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.off) < n {
		return nil, fmt.Errorf("%w: short field at %d", ErrCorrupt, r.off)
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return b, nil
}

func (r *opReader) readByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%w: short record", ErrCorrupt)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func decodeOps(payload []byte) ([]op, error) {
	r := &opReader{buf: payload}
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(payload)) {
		return nil, fmt.Errorf("%w: op count %d", ErrCorrupt, count)
	}
	ops := make([]op, 0, count)
	for i := uint64(0); i < count; i++ {
		t, err := r.readByte()
		if err != nil {
			return nil, err
		}
		name, err := r.bytes()
		if err != nil {
			return nil, err
		}
		o := op{typ: opType(t), store: string(name)}
		switch o.typ {
		case opPut, opDelete:
			if o.key, err = r.bytes(); err != nil {
				return nil, err
			}
			if o.value, err = r.bytes(); err != nil {
				return nil, err
			}
		case opDeleteKey:
			if o.key, err = r.bytes(); err != nil {
				return nil, err
			}
		case opCreateStore:
			d, err := r.readByte()
			if err != nil {
				return nil, err
			}
			o.dups = d == 1
		case opRemoveStore, opTruncateStore:
		default:
			return nil, fmt.Errorf("%w: unknown op %d", ErrCorrupt, t)
		}
		ops = append(ops, o)
	}
	return ops, nil
}
