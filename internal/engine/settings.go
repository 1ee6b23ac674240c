package engine

import (
	"fmt"

	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

const settingsStore = "settings"

// Setting keys. Refactoring keys embed the entity type id.
const (
	settingStoreID = "store.id"

	settingNullProps  = "refactorCreateNullPropertyIndices(%d)"
	settingNullLinks  = "refactorCreateNullLinkIndices(%d)"
	settingNullBlobs  = "refactorCreateNullBlobIndices(%d)"
	settingFixFloats  = "refactorFixNegativeFloatAndDoubleProps(%d)"
	settingValueTrue  = "y"
	settingsMaxKeyLen = 1024
)

// Settings is a string key -> string value table of the store.
type Settings struct {
	index *tables.Index
}

func newSettings(e *env.Environment) *Settings {
	return &Settings{index: tables.NewIndex(e, settingsStore, false)}
}

// Get returns the value of key.
func (s *Settings) Get(txn *env.Txn, key string) (string, bool) {
	if !s.index.Exists(txn) {
		return "", false
	}
	st, err := s.index.Open(txn)
	if err != nil {
		return "", false
	}
	v, ok := st.Get(txn, []byte(key))
	return string(v), ok
}

// Set stores value under key.
func (s *Settings) Set(txn *env.Txn, key, value string) error {
	if key == "" || len(key) > settingsMaxKeyLen {
		return fmt.Errorf("%w: setting key %q", ErrInvalidArgument, key)
	}
	st, err := s.index.Open(txn)
	if err != nil {
		return err
	}
	_, err = st.Put(txn, []byte(key), []byte(value))
	return err
}

// Delete removes key.
func (s *Settings) Delete(txn *env.Txn, key string) error {
	if !s.index.Exists(txn) {
		return nil
	}
	st, err := s.index.Open(txn)
	if err != nil {
		return err
	}
	_, err = st.Delete(txn, []byte(key))
	return err
}

// All calls fn for every setting in key order.
func (s *Settings) All(txn *env.Txn, fn func(key, value string) bool) error {
	return s.index.Scan(txn, func(k, v []byte) (bool, error) {
		return fn(string(k), string(v)), nil
	})
}

func settingKey(format string, typeID int32) string { return fmt.Sprintf(format, typeID) }

func (s *Settings) isSet(txn *env.Txn, format string, typeID int32) bool {
	_, ok := s.Get(txn, settingKey(format, typeID))
	return ok
}

func (s *Settings) mark(txn *env.Txn, format string, typeID int32) error {
	return s.Set(txn, settingKey(format, typeID), settingValueTrue)
}

func (s *Settings) unmark(txn *env.Txn, format string, typeID int32) error {
	return s.Delete(txn, settingKey(format, typeID))
}
