package tables

import (
	"fmt"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

// BlobValue is the primary row of a blob: a vault handle, and for in-place
// blobs the content itself.
type BlobValue struct {
	Handle int64
	Inline []byte
}

// Bytes returns the row encoding.
func (v BlobValue) Bytes() []byte {
	b := codec.AppendUint64(make([]byte, 0, 9+len(v.Inline)), uint64(v.Handle))
	return append(b, v.Inline...)
}

// DecodeBlobValue decodes a row produced by BlobValue.Bytes.
func DecodeBlobValue(b []byte) (BlobValue, error) {
	h, n, err := codec.ReadUint64(b)
	if err != nil {
		return BlobValue{}, err
	}
	if h > 1<<63-1 {
		return BlobValue{}, fmt.Errorf("%w: blob handle overflow", codec.ErrMalformed)
	}
	v := BlobValue{Handle: int64(h)}
	if n < len(b) {
		v.Inline = b[n:]
	}
	return v, nil
}

// BlobsTable holds the blobs of one entity type.
//
//	primary: PropertyKey(localID, blobID) -> BlobValue
//	all:     blobID -> localID
type BlobsTable struct {
	Primary *Index
	All     *Index
}

// NewBlobsTable returns the blobs table of typeID.
func NewBlobsTable(e *env.Environment, typeID int32) *BlobsTable {
	return &BlobsTable{
		Primary: NewIndex(e, BlobsName(typeID), false),
		All:     NewIndex(e, AllBlobsName(typeID), true),
	}
}

// Get returns the blob row of key.
func (t *BlobsTable) Get(txn *env.Txn, key codec.PropertyKey) (BlobValue, bool, error) {
	if !t.Primary.Exists(txn) {
		return BlobValue{}, false, nil
	}
	s, err := t.Primary.Open(txn)
	if err != nil {
		return BlobValue{}, false, err
	}
	raw, ok := s.Get(txn, key.Bytes())
	if !ok {
		return BlobValue{}, false, nil
	}
	v, err := DecodeBlobValue(raw)
	if err != nil {
		return BlobValue{}, false, err
	}
	return v, true, nil
}

// Put stores the blob row and its all-index row.
func (t *BlobsTable) Put(txn *env.Txn, key codec.PropertyKey, v BlobValue) error {
	s, err := t.Primary.Open(txn)
	if err != nil {
		return err
	}
	if _, err := s.Put(txn, key.Bytes(), v.Bytes()); err != nil {
		return err
	}
	all, err := t.All.Open(txn)
	if err != nil {
		return err
	}
	_, err = all.Put(txn, codec.IDBytes(key.PropertyID), codec.LocalIDBytes(key.LocalID))
	return err
}

// Delete removes the blob row and its all-index row.
func (t *BlobsTable) Delete(txn *env.Txn, key codec.PropertyKey) (bool, error) {
	if !t.Primary.Exists(txn) {
		return false, nil
	}
	s, err := t.Primary.Open(txn)
	if err != nil {
		return false, err
	}
	deleted, err := s.Delete(txn, key.Bytes())
	if err != nil || !deleted {
		return deleted, err
	}
	if t.All.Exists(txn) {
		all, err := t.All.Open(txn)
		if err != nil {
			return false, err
		}
		if _, err := all.DeleteExact(txn, codec.IDBytes(key.PropertyID), codec.LocalIDBytes(key.LocalID)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Truncate drops every index of the table.
func (t *BlobsTable) Truncate(txn *env.Txn) error {
	if err := t.All.Truncate(txn); err != nil {
		return err
	}
	return t.Primary.Truncate(txn)
}
