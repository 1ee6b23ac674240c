package env

import (
	"bytes"
	"fmt"
)

// StoreConfig configures how a store is opened.
type StoreConfig struct {
	// Duplicates allows several values per key, ordered by value.
	Duplicates bool
	// UseExisting fails with ErrStoreNotFound instead of creating the store.
	UseExisting bool
}

// Store is a handle to a named ordered key/value container. Byte slices
// returned by a store are owned by the environment and must not be modified.
type Store struct {
	env  *Environment
	name string
	dups bool
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Duplicates reports whether the store allows duplicate keys.
func (s *Store) Duplicates() bool { return s.dups }

// Get returns the first value stored for key.
func (s *Store) Get(txn *Txn, key []byte) ([]byte, bool) {
	st := txn.read(s.name)
	if st == nil {
		return nil, false
	}
	e, ok := st.first(entry{key: key})
	if !ok || !bytes.Equal(e.key, key) {
		return nil, false
	}
	return e.value, true
}

// Contains reports whether at least one entry with key exists.
func (s *Store) Contains(txn *Txn, key []byte) bool {
	_, ok := s.Get(txn, key)
	return ok
}

// Exists reports whether the exact (key, value) pair exists.
func (s *Store) Exists(txn *Txn, key, value []byte) bool {
	st := txn.read(s.name)
	if st == nil {
		return false
	}
	e, ok := st.tree.Get(entry{key: key, value: value})
	if !ok {
		return false
	}
	return bytes.Equal(e.value, value)
}

// Count returns the number of entries.
func (s *Store) Count(txn *Txn) int64 {
	st := txn.read(s.name)
	if st == nil {
		return 0
	}
	return int64(st.tree.Len())
}

// Last returns the greatest entry of the store.
func (s *Store) Last(txn *Txn) (key, value []byte, ok bool) {
	st := txn.read(s.name)
	if st == nil {
		return nil, nil, false
	}
	e, ok := st.tree.Max()
	return e.key, e.value, ok
}

// Put stores (key, value). Without duplicates an existing value is replaced.
// It reports whether the store changed.
func (s *Store) Put(txn *Txn, key, value []byte) (bool, error) {
	st, err := txn.mutable(s.name)
	if err != nil {
		return false, err
	}
	e := entry{key: bytes.Clone(key), value: bytes.Clone(value)}
	prev, replaced := st.tree.ReplaceOrInsert(e)
	if replaced && bytes.Equal(prev.value, e.value) {
		return false, nil
	}
	txn.ops = append(txn.ops, op{typ: opPut, store: s.name, key: e.key, value: e.value})
	return true, nil
}

// Add stores (key, value) unless the key (or, with duplicates, the exact
// pair) already exists.
func (s *Store) Add(txn *Txn, key, value []byte) (bool, error) {
	if s.dups {
		if s.Exists(txn, key, value) {
			return false, txn.checkWrite()
		}
	} else if s.Contains(txn, key) {
		return false, txn.checkWrite()
	}
	return s.Put(txn, key, value)
}

// PutRight appends (key, value), which must sort strictly after the last
// entry of the store. It is intended for bulk rebuilds from ordered input.
func (s *Store) PutRight(txn *Txn, key, value []byte) error {
	st, err := txn.mutable(s.name)
	if err != nil {
		return err
	}
	if last, ok := st.tree.Max(); ok && !st.less(last, entry{key: key, value: value}) {
		return fmt.Errorf("%w: store %s", ErrUnsorted, s.name)
	}
	_, err = s.Put(txn, key, value)
	return err
}

// Delete removes every entry with key and reports whether any existed.
func (s *Store) Delete(txn *Txn, key []byte) (bool, error) {
	st, err := txn.mutable(s.name)
	if err != nil {
		return false, err
	}
	if st.deleteKey(key) == 0 {
		return false, nil
	}
	txn.ops = append(txn.ops, op{typ: opDeleteKey, store: s.name, key: bytes.Clone(key)})
	return true, nil
}

// DeleteExact removes the exact (key, value) pair and reports whether it existed.
func (s *Store) DeleteExact(txn *Txn, key, value []byte) (bool, error) {
	if !s.Exists(txn, key, value) {
		return false, txn.checkWrite()
	}
	st, err := txn.mutable(s.name)
	if err != nil {
		return false, err
	}
	st.tree.Delete(entry{key: key, value: value})
	if s.dups {
		txn.ops = append(txn.ops, op{typ: opDelete, store: s.name, key: bytes.Clone(key), value: bytes.Clone(value)})
	} else {
		txn.ops = append(txn.ops, op{typ: opDeleteKey, store: s.name, key: bytes.Clone(key)})
	}
	return true, nil
}

// OpenCursor opens a cursor over the store as seen by txn. The cursor must be closed.
func (s *Store) OpenCursor(txn *Txn) *Cursor {
	return &Cursor{txn: txn, store: s}
}
