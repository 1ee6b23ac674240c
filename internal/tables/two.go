package tables

import (
	"github.com/hupe1980/entitydb/internal/env"
)

// TwoColumnTable keeps a key -> value index and its value -> key mirror.
// Both indices allow duplicates.
type TwoColumnTable struct {
	First  *Index
	Second *Index
}

// NewTwoColumnTable returns a table over the two named stores.
func NewTwoColumnTable(e *env.Environment, first, second string) *TwoColumnTable {
	return &TwoColumnTable{
		First:  NewIndex(e, first, true),
		Second: NewIndex(e, second, true),
	}
}

// Put writes the pair into both indices and reports whether the first
// index changed.
func (t *TwoColumnTable) Put(txn *env.Txn, key, value []byte) (bool, error) {
	first, err := t.First.Open(txn)
	if err != nil {
		return false, err
	}
	second, err := t.Second.Open(txn)
	if err != nil {
		return false, err
	}
	added, err := first.Put(txn, key, value)
	if err != nil {
		return false, err
	}
	if _, err := second.Put(txn, value, key); err != nil {
		return false, err
	}
	return added, nil
}

// Delete removes the pair from both indices and reports whether either
// index held it.
func (t *TwoColumnTable) Delete(txn *env.Txn, key, value []byte) (bool, error) {
	var deleted bool
	if t.First.Exists(txn) {
		first, err := t.First.Open(txn)
		if err != nil {
			return false, err
		}
		ok, err := first.DeleteExact(txn, key, value)
		if err != nil {
			return false, err
		}
		deleted = ok
	}
	if t.Second.Exists(txn) {
		second, err := t.Second.Open(txn)
		if err != nil {
			return false, err
		}
		ok, err := second.DeleteExact(txn, value, key)
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}
	return deleted, nil
}
