package tables

import (
	"bytes"

	"github.com/hupe1980/entitydb/internal/env"
)

// Index is a named store that is created by the first write transaction
// using it.
type Index struct {
	env  *env.Environment
	name string
	cfg  env.StoreConfig
}

// NewIndex returns an index over the named store.
func NewIndex(e *env.Environment, name string, duplicates bool) *Index {
	return &Index{env: e, name: name, cfg: env.StoreConfig{Duplicates: duplicates}}
}

// Name returns the store name.
func (i *Index) Name() string { return i.name }

// Exists reports whether the store exists in txn.
func (i *Index) Exists(txn *env.Txn) bool { return i.env.StoreExists(txn, i.name) }

// Open returns the store, creating it when missing. Opening a missing store
// in a read-only transaction fails with env.ErrReadonlyTransaction.
func (i *Index) Open(txn *env.Txn) (*env.Store, error) {
	return i.env.OpenStore(txn, i.name, i.cfg)
}

// Count returns the number of entries, zero for a missing store.
func (i *Index) Count(txn *env.Txn) int64 {
	if !i.Exists(txn) {
		return 0
	}
	s, err := i.Open(txn)
	if err != nil {
		return 0
	}
	return s.Count(txn)
}

// Scan calls fn for every entry in order until fn returns false or an
// error. A missing store has no entries.
func (i *Index) Scan(txn *env.Txn, fn func(key, value []byte) (bool, error)) error {
	if !i.Exists(txn) {
		return nil
	}
	s, err := i.Open(txn)
	if err != nil {
		return err
	}
	c := s.OpenCursor(txn)
	defer c.Close()
	for c.Next() {
		more, err := fn(c.Key(), c.Value())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// ScanKey calls fn for every value stored under key.
func (i *Index) ScanKey(txn *env.Txn, key []byte, fn func(value []byte) (bool, error)) error {
	if !i.Exists(txn) {
		return nil
	}
	s, err := i.Open(txn)
	if err != nil {
		return err
	}
	c := s.OpenCursor(txn)
	defer c.Close()
	for ok := c.SearchKey(key); ok; ok = c.NextDup() {
		more, err := fn(c.Value())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// ScanPrefix calls fn for every entry whose key starts with prefix.
func (i *Index) ScanPrefix(txn *env.Txn, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	if !i.Exists(txn) {
		return nil
	}
	s, err := i.Open(txn)
	if err != nil {
		return err
	}
	c := s.OpenCursor(txn)
	defer c.Close()
	for ok := c.SearchKeyRange(prefix); ok && bytes.HasPrefix(c.Key(), prefix); ok = c.Next() {
		more, err := fn(c.Key(), c.Value())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Exact reports whether the (key, value) pair exists.
func (i *Index) Exact(txn *env.Txn, key, value []byte) bool {
	if !i.Exists(txn) {
		return false
	}
	s, err := i.Open(txn)
	if err != nil {
		return false
	}
	return s.Exists(txn, key, value)
}

// Truncate drops all entries, keeping the store.
func (i *Index) Truncate(txn *env.Txn) error {
	if !i.Exists(txn) {
		return nil
	}
	return i.env.TruncateStore(txn, i.name)
}
