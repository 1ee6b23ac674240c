package tables

import (
	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

// LinksTable holds the links of one entity type.
//
//	first:  PropertyKey(source, linkID) -> LinkValue(linkID, target)
//	second: LinkValue(linkID, target) -> PropertyKey(source, linkID)
//	all:    linkID -> source
type LinksTable struct {
	*TwoColumnTable
	All *Index
}

// NewLinksTable returns the links table of typeID.
func NewLinksTable(e *env.Environment, typeID int32) *LinksTable {
	return &LinksTable{
		TwoColumnTable: NewTwoColumnTable(e, LinksName(typeID), ReverseLinksName(typeID)),
		All:            NewIndex(e, AllLinksName(typeID), true),
	}
}

// Add stores a link from source and reports whether it was new.
func (t *LinksTable) Add(txn *env.Txn, source int64, link codec.LinkValue) (bool, error) {
	key := codec.PropertyKey{LocalID: source, PropertyID: link.LinkID}
	added, err := t.Put(txn, key.Bytes(), link.Bytes())
	if err != nil {
		return false, err
	}
	all, err := t.All.Open(txn)
	if err != nil {
		return false, err
	}
	if _, err := all.Put(txn, codec.IDBytes(link.LinkID), codec.LocalIDBytes(source)); err != nil {
		return false, err
	}
	return added, nil
}

// Remove deletes a link from source. The all-index row goes away with the
// last target of that link id.
func (t *LinksTable) Remove(txn *env.Txn, source int64, link codec.LinkValue) (bool, error) {
	key := codec.PropertyKey{LocalID: source, PropertyID: link.LinkID}
	deleted, err := t.Delete(txn, key.Bytes(), link.Bytes())
	if err != nil || !deleted {
		return deleted, err
	}
	if t.HasLinks(txn, key) {
		return true, nil
	}
	return true, t.removeAll(txn, key)
}

func (t *LinksTable) removeAll(txn *env.Txn, key codec.PropertyKey) error {
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

// HasLinks reports whether the first index holds any target for key.
func (t *LinksTable) HasLinks(txn *env.Txn, key codec.PropertyKey) bool {
	if !t.First.Exists(txn) {
		return false
	}
	s, err := t.First.Open(txn)
	if err != nil {
		return false
	}
	return s.Contains(txn, key.Bytes())
}

// Targets returns the raw values stored under key in the first index.
func (t *LinksTable) Targets(txn *env.Txn, key codec.PropertyKey) ([][]byte, error) {
	var out [][]byte
	err := t.First.ScanKey(txn, key.Bytes(), func(v []byte) (bool, error) {
		out = append(out, v)
		return true, nil
	})
	return out, err
}

// Truncate drops every index of the table.
func (t *LinksTable) Truncate(txn *env.Txn) error {
	if err := t.All.Truncate(txn); err != nil {
		return err
	}
	if err := t.Second.Truncate(txn); err != nil {
		return err
	}
	return t.First.Truncate(txn)
}
