package engine

import (
	"fmt"
	"math"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// Registry names.
const (
	registryEntityTypes = "entity.types"
	registryProperties  = "property.names"
	registryLinks       = "link.names"
	registryBlobs       = "blob.names"

	registryIDsSuffix = "#ids"
)

// registry maps names to dense int32 ids: name -> id and id -> name.
type registry struct {
	byName *tables.Index
	byID   *tables.Index
	seq    *Sequence
}

func newRegistry(e *env.Environment, name string) *registry {
	return &registry{
		byName: tables.NewIndex(e, name, false),
		byID:   tables.NewIndex(e, name+registryIDsSuffix, false),
		seq:    newSequence(e, name),
	}
}

// lookup returns the id of name.
func (r *registry) lookup(txn *env.Txn, name string) (int32, bool) {
	if !r.byName.Exists(txn) {
		return 0, false
	}
	st, err := r.byName.Open(txn)
	if err != nil {
		return 0, false
	}
	raw, ok := st.Get(txn, []byte(name))
	if !ok {
		return 0, false
	}
	id, err := codec.ID(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// name returns the name registered for id.
func (r *registry) name(txn *env.Txn, id int32) (string, bool) {
	if !r.byID.Exists(txn) {
		return "", false
	}
	st, err := r.byID.Open(txn)
	if err != nil {
		return "", false
	}
	raw, ok := st.Get(txn, codec.IDBytes(id))
	return string(raw), ok
}

// getOrCreate returns the id of name, registering it when missing. The
// second result reports whether the name was new.
func (r *registry) getOrCreate(txn *env.Txn, name string) (int32, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	if id, ok := r.lookup(txn, name); ok {
		return id, false, nil
	}
	next, err := r.seq.Increment(txn)
	if err != nil {
		return 0, false, err
	}
	if next > math.MaxInt32 {
		return 0, false, fmt.Errorf("%w: registry %s exhausted", ErrInvalidArgument, r.byName.Name())
	}
	id := int32(next)
	byName, err := r.byName.Open(txn)
	if err != nil {
		return 0, false, err
	}
	byID, err := r.byID.Open(txn)
	if err != nil {
		return 0, false, err
	}
	if _, err := byName.Put(txn, []byte(name), codec.IDBytes(id)); err != nil {
		return 0, false, err
	}
	if _, err := byID.Put(txn, codec.IDBytes(id), []byte(name)); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// all calls fn for every registered id in id order.
func (r *registry) all(txn *env.Txn, fn func(id int32, name string) error) error {
	return r.byID.Scan(txn, func(k, v []byte) (bool, error) {
		id, err := codec.ID(k)
		if err != nil {
			return false, fmt.Errorf("registry %s: %w", r.byID.Name(), err)
		}
		return true, fn(id, string(v))
	})
}
