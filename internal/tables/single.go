package tables

import (
	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

// SingleColumnTable records the existence of the entities of one type:
// local id -> empty value.
type SingleColumnTable struct {
	*Index
}

// NewSingleColumnTable returns the existence table of typeID.
func NewSingleColumnTable(e *env.Environment, typeID int32) *SingleColumnTable {
	return &SingleColumnTable{Index: NewIndex(e, EntitiesName(typeID), false)}
}

// Add records localID.
func (t *SingleColumnTable) Add(txn *env.Txn, localID int64) (bool, error) {
	s, err := t.Open(txn)
	if err != nil {
		return false, err
	}
	return s.Put(txn, codec.LocalIDBytes(localID), nil)
}

// Remove deletes localID.
func (t *SingleColumnTable) Remove(txn *env.Txn, localID int64) (bool, error) {
	if !t.Exists(txn) {
		return false, nil
	}
	s, err := t.Open(txn)
	if err != nil {
		return false, err
	}
	return s.Delete(txn, codec.LocalIDBytes(localID))
}

// Contains reports whether localID exists.
func (t *SingleColumnTable) Contains(txn *env.Txn, localID int64) bool {
	if !t.Exists(txn) {
		return false
	}
	s, err := t.Open(txn)
	if err != nil {
		return false
	}
	return s.Contains(txn, codec.LocalIDBytes(localID))
}
