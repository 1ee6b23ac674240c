package engine

import (
	"fmt"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

const sequencesStore = "sequences"

// Sequence is a persistent counter. Its value lives in the sequences store
// and changes with the transaction that increments it, so an aborted
// transaction does not consume values.
type Sequence struct {
	index *tables.Index
	key   []byte
}

func newSequence(e *env.Environment, name string) *Sequence {
	return &Sequence{index: tables.NewIndex(e, sequencesStore, false), key: []byte(name)}
}

// Name returns the sequence name.
func (s *Sequence) Name() string { return string(s.key) }

// Load returns the last issued value, or -1 before the first one.
func (s *Sequence) Load(txn *env.Txn) int64 {
	if !s.index.Exists(txn) {
		return -1
	}
	st, err := s.index.Open(txn)
	if err != nil {
		return -1
	}
	raw, ok := st.Get(txn, s.key)
	if !ok {
		return -1
	}
	next, _, err := codec.ReadUint64(raw)
	if err != nil {
		return -1
	}
	return int64(next) - 1
}

// Increment issues the next value.
func (s *Sequence) Increment(txn *env.Txn) (int64, error) {
	v := s.Load(txn) + 1
	if err := s.set(txn, v); err != nil {
		return 0, err
	}
	return v, nil
}

// Advance moves the sequence to at least v.
func (s *Sequence) Advance(txn *env.Txn, v int64) error {
	if s.Load(txn) >= v {
		return nil
	}
	return s.set(txn, v)
}

func (s *Sequence) set(txn *env.Txn, v int64) error {
	st, err := s.index.Open(txn)
	if err != nil {
		return err
	}
	if _, err := st.Put(txn, s.key, codec.AppendUint64(nil, uint64(v+1))); err != nil {
		return fmt.Errorf("sequence %s: %w", s.key, err)
	}
	return nil
}
