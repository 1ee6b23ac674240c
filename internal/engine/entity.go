package engine

import (
	"fmt"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

// EntityID identifies an entity.
type EntityID = codec.EntityID

// NewEntity creates an entity of the named type, registering the type when
// needed.
func (s *Store) NewEntity(txn *env.Txn, typeName string) (EntityID, error) {
	if err := s.checkOpen(); err != nil {
		return EntityID{}, err
	}
	typeID, err := s.CreateEntityType(txn, typeName)
	if err != nil {
		return EntityID{}, err
	}
	localID, err := s.localIDs(typeID).Increment(txn)
	if err != nil {
		return EntityID{}, err
	}
	if _, err := s.tables.Get(typeID).Entities.Add(txn, localID); err != nil {
		return EntityID{}, err
	}
	return EntityID{TypeID: typeID, LocalID: localID}, nil
}

// Exists reports whether the entity exists.
func (s *Store) Exists(txn *env.Txn, id EntityID) bool {
	return s.tables.Get(id.TypeID).Entities.Contains(txn, id.LocalID)
}

func (s *Store) mustExist(txn *env.Txn, id EntityID) error {
	if !s.Exists(txn, id) {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return nil
}

// Entities returns the ids of every entity of a type in local id order.
func (s *Store) Entities(txn *env.Txn, typeID int32) ([]EntityID, error) {
	var out []EntityID
	err := s.tables.Get(typeID).Entities.Scan(txn, func(k, _ []byte) (bool, error) {
		localID, err := codec.LocalID(k)
		if err != nil {
			return false, err
		}
		out = append(out, EntityID{TypeID: typeID, LocalID: localID})
		return true, nil
	})
	return out, err
}

// DeleteEntity deletes an entity with its properties, blobs and outgoing
// links. Blob content is removed from the vault once txn commits. Rows of
// an entity whose existence row is already missing are deleted as well.
// It reports whether anything was deleted.
func (s *Store) DeleteEntity(txn *env.Txn, id EntityID) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	set := s.tables.Get(id.TypeID)
	prefix := codec.LocalIDBytes(id.LocalID)
	deleted := false

	var propKeys []codec.PropertyKey
	if err := set.Properties.Primary.ScanPrefix(txn, prefix, collectKeys(&propKeys)); err != nil {
		return false, err
	}
	for _, key := range propKeys {
		ok, err := set.Properties.Delete(txn, key)
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}

	var blobKeys []codec.PropertyKey
	if err := set.Blobs.Primary.ScanPrefix(txn, prefix, collectKeys(&blobKeys)); err != nil {
		return false, err
	}
	for _, key := range blobKeys {
		ok, err := s.deleteBlob(txn, id.TypeID, key)
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}

	type link struct {
		key   codec.PropertyKey
		value codec.LinkValue
	}
	var links []link
	var corrupt [][2][]byte
	err := set.Links.First.ScanPrefix(txn, prefix, func(k, v []byte) (bool, error) {
		key, kerr := codec.DecodePropertyKey(k)
		value, verr := codec.DecodeLinkValue(v)
		if kerr != nil || verr != nil {
			corrupt = append(corrupt, [2][]byte{k, v})
			return true, nil
		}
		links = append(links, link{key: key, value: value})
		return true, nil
	})
	if err != nil {
		return false, err
	}
	for _, l := range links {
		ok, err := set.Links.Remove(txn, l.key.LocalID, l.value)
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}
	for _, kv := range corrupt {
		ok, err := set.Links.Delete(txn, kv[0], kv[1])
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}

	ok, err := set.Entities.Remove(txn, id.LocalID)
	if err != nil {
		return false, err
	}
	return deleted || ok, nil
}

func collectKeys(dst *[]codec.PropertyKey) func(k, _ []byte) (bool, error) {
	return func(k, _ []byte) (bool, error) {
		key, err := codec.DecodePropertyKey(k)
		if err != nil {
			return true, nil
		}
		*dst = append(*dst, key)
		return true, nil
	}
}

// SetProperty sets a property of an existing entity. A nil value deletes
// the property. It reports whether the stored value changed.
func (s *Store) SetProperty(txn *env.Txn, id EntityID, name string, value any) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if value == nil {
		return s.DeleteProperty(txn, id, name)
	}
	if err := s.mustExist(txn, id); err != nil {
		return false, err
	}
	v, err := codec.Of(value)
	if err != nil {
		return false, fmt.Errorf("%w: property %q: %v", ErrInvalidArgument, name, err)
	}
	if codec.HasNegativeFloating(v) && !s.settings.isSet(txn, settingFixFloats, id.TypeID) {
		return false, fmt.Errorf("%w: property %q of %s", ErrLegacyFloats, name, id)
	}
	propID, _, err := s.props.getOrCreate(txn, name)
	if err != nil {
		return false, err
	}
	key := codec.PropertyKey{LocalID: id.LocalID, PropertyID: propID}
	return s.tables.Get(id.TypeID).Properties.Put(txn, key, v)
}

// Property returns a property value.
func (s *Store) Property(txn *env.Txn, id EntityID, name string) (codec.Value, bool, error) {
	propID, ok := s.props.lookup(txn, name)
	if !ok {
		return codec.Value{}, false, nil
	}
	raw, ok := s.tables.Get(id.TypeID).Properties.Get(txn, codec.PropertyKey{LocalID: id.LocalID, PropertyID: propID})
	if !ok {
		return codec.Value{}, false, nil
	}
	v, err := codec.DecodeValue(raw)
	if err != nil {
		return codec.Value{}, false, fmt.Errorf("property %q of %s: %w", name, id, err)
	}
	return v, true, nil
}

// DeleteProperty deletes a property and reports whether it existed.
func (s *Store) DeleteProperty(txn *env.Txn, id EntityID, name string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	propID, ok := s.props.lookup(txn, name)
	if !ok {
		return false, nil
	}
	return s.tables.Get(id.TypeID).Properties.Delete(txn, codec.PropertyKey{LocalID: id.LocalID, PropertyID: propID})
}

// AddLink links from to to. Both entities must exist.
func (s *Store) AddLink(txn *env.Txn, from EntityID, name string, to EntityID) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if err := s.mustExist(txn, from); err != nil {
		return false, err
	}
	if err := s.mustExist(txn, to); err != nil {
		return false, err
	}
	linkID, _, err := s.links.getOrCreate(txn, name)
	if err != nil {
		return false, err
	}
	return s.tables.Get(from.TypeID).Links.Add(txn, from.LocalID, codec.LinkValue{LinkID: linkID, Target: to})
}

// DeleteLink removes a link and reports whether it existed.
func (s *Store) DeleteLink(txn *env.Txn, from EntityID, name string, to EntityID) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	linkID, ok := s.links.lookup(txn, name)
	if !ok {
		return false, nil
	}
	return s.tables.Get(from.TypeID).Links.Remove(txn, from.LocalID, codec.LinkValue{LinkID: linkID, Target: to})
}
