package env

import (
	"bytes"

	"github.com/google/btree"
)

const btreeDegree = 32

// entry is one key/value pair of a store.
type entry struct {
	key   []byte
	value []byte
}

func lessKey(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

func lessKeyValue(a, b entry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.value, b.value) < 0
}

// storeState is the committed or in-flight content of one named store.
type storeState struct {
	dups bool
	tree *btree.BTreeG[entry]
}

func newStoreState(dups bool) *storeState {
	less := lessKey
	if dups {
		less = lessKeyValue
	}
	return &storeState{dups: dups, tree: btree.NewG[entry](btreeDegree, less)}
}

func (s *storeState) clone() *storeState {
	return &storeState{dups: s.dups, tree: s.tree.Clone()}
}

func (s *storeState) less(a, b entry) bool {
	if s.dups {
		return lessKeyValue(a, b)
	}
	return lessKey(a, b)
}

// first returns the first entry >= pivot.
func (s *storeState) first(pivot entry) (entry, bool) {
	var out entry
	found := false
	s.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		out, found = e, true
		return false
	})
	return out, found
}

// after returns the first entry strictly greater than pivot.
func (s *storeState) after(pivot entry) (entry, bool) {
	var out entry
	found := false
	s.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if !s.less(pivot, e) {
			return true
		}
		out, found = e, true
		return false
	})
	return out, found
}

// afterKey returns the first entry whose key is strictly greater than key.
func (s *storeState) afterKey(key []byte) (entry, bool) {
	var out entry
	found := false
	s.tree.AscendGreaterOrEqual(entry{key: key}, func(e entry) bool {
		if bytes.Equal(e.key, key) {
			return true
		}
		out, found = e, true
		return false
	})
	return out, found
}

func (s *storeState) apply(o *op) {
	switch o.typ {
	case opPut:
		s.tree.ReplaceOrInsert(entry{key: o.key, value: o.value})
	case opDelete:
		s.tree.Delete(entry{key: o.key, value: o.value})
	case opDeleteKey:
		s.deleteKey(o.key)
	}
}

func (s *storeState) deleteKey(key []byte) int {
	if !s.dups {
		if _, ok := s.tree.Delete(entry{key: key}); ok {
			return 1
		}
		return 0
	}
	var victims []entry
	s.tree.AscendGreaterOrEqual(entry{key: key}, func(e entry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		victims = append(victims, e)
		return true
	})
	for _, v := range victims {
		s.tree.Delete(v)
	}
	return len(victims)
}

// version is an immutable committed state of the environment.
type version struct {
	stores      map[string]*storeState
	highAddress int64
}

// applyOps mutates v in place. Only used during replay.
func (v *version) applyOps(ops []op) {
	for i := range ops {
		o := &ops[i]
		switch o.typ {
		case opCreateStore:
			if _, ok := v.stores[o.store]; !ok {
				v.stores[o.store] = newStoreState(o.dups)
			}
		case opRemoveStore:
			delete(v.stores, o.store)
		case opTruncateStore:
			if s, ok := v.stores[o.store]; ok {
				v.stores[o.store] = newStoreState(s.dups)
			}
		default:
			if s, ok := v.stores[o.store]; ok {
				s.apply(o)
			}
		}
	}
}
