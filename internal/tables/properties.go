package tables

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

// PropertiesTable holds the properties of one entity type.
//
//	primary:     PropertyKey(localID, propID) -> encoded value
//	value index: secondary key -> localID (one store per property)
//	all index:   propID -> localID
type PropertiesTable struct {
	env    *env.Environment
	typeID int32

	Primary *Index
	All     *Index

	mu     sync.Mutex
	values map[int32]*Index
}

// NewPropertiesTable returns the properties table of typeID.
func NewPropertiesTable(e *env.Environment, typeID int32) *PropertiesTable {
	return &PropertiesTable{
		env:     e,
		typeID:  typeID,
		Primary: NewIndex(e, PropertiesName(typeID), false),
		All:     NewIndex(e, AllPropertiesName(typeID), true),
		values:  make(map[int32]*Index),
	}
}

// ValueIndex returns the value index of propertyID.
func (t *PropertiesTable) ValueIndex(propertyID int32) *Index {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.values[propertyID]
	if !ok {
		idx = NewIndex(t.env, ValueIndexName(t.typeID, propertyID), true)
		t.values[propertyID] = idx
	}
	return idx
}

// ValueIndexIDs returns the ids of the properties whose value index store
// exists in txn.
func (t *PropertiesTable) ValueIndexIDs(txn *env.Txn) []int32 {
	var ids []int32
	for _, name := range t.env.AllStoreNames(txn) {
		typeID, propID, ok := ParseValueIndexName(name)
		if ok && typeID == t.typeID {
			ids = append(ids, propID)
		}
	}
	return ids
}

// Get returns the raw stored value of a property.
func (t *PropertiesTable) Get(txn *env.Txn, key codec.PropertyKey) ([]byte, bool) {
	if !t.Primary.Exists(txn) {
		return nil, false
	}
	s, err := t.Primary.Open(txn)
	if err != nil {
		return nil, false
	}
	return s.Get(txn, key.Bytes())
}

// Put stores value and updates the value and all indices. It reports
// whether the stored value changed.
func (t *PropertiesTable) Put(txn *env.Txn, key codec.PropertyKey, value codec.Value) (bool, error) {
	raw := codec.AppendValue(nil, value)
	primary, err := t.Primary.Open(txn)
	if err != nil {
		return false, err
	}
	old, had := primary.Get(txn, key.Bytes())
	if had && string(old) == string(raw) {
		return false, nil
	}
	newKeys, err := codec.SecondaryKeys(value)
	if err != nil {
		return false, err
	}
	if had {
		if err := t.deleteSecondary(txn, key, old); err != nil {
			return false, err
		}
	}
	if _, err := primary.Put(txn, key.Bytes(), raw); err != nil {
		return false, err
	}
	if err := t.putSecondary(txn, key, newKeys); err != nil {
		return false, err
	}
	all, err := t.All.Open(txn)
	if err != nil {
		return false, err
	}
	if _, err := all.Put(txn, codec.IDBytes(key.PropertyID), codec.LocalIDBytes(key.LocalID)); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a property from all indices.
func (t *PropertiesTable) Delete(txn *env.Txn, key codec.PropertyKey) (bool, error) {
	if !t.Primary.Exists(txn) {
		return false, nil
	}
	primary, err := t.Primary.Open(txn)
	if err != nil {
		return false, err
	}
	old, had := primary.Get(txn, key.Bytes())
	if !had {
		return false, nil
	}
	if err := t.deleteSecondary(txn, key, old); err != nil {
		return false, err
	}
	if _, err := primary.Delete(txn, key.Bytes()); err != nil {
		return false, err
	}
	if err := t.DeleteAll(txn, key); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAll removes the all-index row of key.
func (t *PropertiesTable) DeleteAll(txn *env.Txn, key codec.PropertyKey) error {
	if !t.All.Exists(txn) {
		return nil
	}
	all, err := t.All.Open(txn)
	if err != nil {
		return err
	}
	_, err = all.DeleteExact(txn, codec.IDBytes(key.PropertyID), codec.LocalIDBytes(key.LocalID))
	return err
}

// PutSecondary adds value index rows for key.
func (t *PropertiesTable) PutSecondary(txn *env.Txn, key codec.PropertyKey, secondaryKeys ...[]byte) error {
	return t.putSecondary(txn, key, secondaryKeys)
}

func (t *PropertiesTable) putSecondary(txn *env.Txn, key codec.PropertyKey, secondaryKeys [][]byte) error {
	if len(secondaryKeys) == 0 {
		return nil
	}
	idx, err := t.ValueIndex(key.PropertyID).Open(txn)
	if err != nil {
		return err
	}
	localID := codec.LocalIDBytes(key.LocalID)
	for _, sk := range secondaryKeys {
		if _, err := idx.Put(txn, sk, localID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSecondary removes a single value index row.
func (t *PropertiesTable) DeleteSecondary(txn *env.Txn, key codec.PropertyKey, secondaryKey []byte) (bool, error) {
	vi := t.ValueIndex(key.PropertyID)
	if !vi.Exists(txn) {
		return false, nil
	}
	idx, err := vi.Open(txn)
	if err != nil {
		return false, err
	}
	return idx.DeleteExact(txn, secondaryKey, codec.LocalIDBytes(key.LocalID))
}

// deleteSecondary removes the value index rows derived from the stored
// value old. A value that no longer decodes has no derivable rows; the
// consistency pass removes whatever it left behind.
func (t *PropertiesTable) deleteSecondary(txn *env.Txn, key codec.PropertyKey, old []byte) error {
	v, err := codec.DecodeValue(old)
	if err != nil {
		if errors.Is(err, codec.ErrMalformed) || errors.Is(err, codec.ErrUnknownElementType) {
			return nil
		}
		return err
	}
	keys, err := codec.SecondaryKeys(v)
	if err != nil {
		return nil
	}
	for _, sk := range keys {
		if _, err := t.DeleteSecondary(txn, key, sk); err != nil {
			return fmt.Errorf("delete value index row: %w", err)
		}
	}
	return nil
}

// Rewrite replaces the stored encoding of key with the current encoding of
// value. The value index rows listed in oldKeys are removed first; the
// rows derived from value are added.
func (t *PropertiesTable) Rewrite(txn *env.Txn, key codec.PropertyKey, oldKeys [][]byte, value codec.Value) error {
	newKeys, err := codec.SecondaryKeys(value)
	if err != nil {
		return err
	}
	for _, sk := range oldKeys {
		if _, err := t.DeleteSecondary(txn, key, sk); err != nil {
			return fmt.Errorf("delete value index row: %w", err)
		}
	}
	primary, err := t.Primary.Open(txn)
	if err != nil {
		return err
	}
	if _, err := primary.Put(txn, key.Bytes(), codec.AppendValue(nil, value)); err != nil {
		return err
	}
	return t.putSecondary(txn, key, newKeys)
}

// Truncate drops every index of the table.
func (t *PropertiesTable) Truncate(txn *env.Txn) error {
	for _, id := range t.ValueIndexIDs(txn) {
		if err := t.ValueIndex(id).Truncate(txn); err != nil {
			return err
		}
	}
	if err := t.All.Truncate(txn); err != nil {
		return err
	}
	return t.Primary.Truncate(txn)
}
