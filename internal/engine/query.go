package engine

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// Links returns the targets of the named link of from in index order.
func (s *Store) Links(txn *env.Txn, from EntityID, name string) ([]EntityID, error) {
	linkID, ok := s.links.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	raw, err := s.tables.Get(from.TypeID).Links.Targets(txn, codec.PropertyKey{LocalID: from.LocalID, PropertyID: linkID})
	if err != nil {
		return nil, err
	}
	out := make([]EntityID, 0, len(raw))
	for _, v := range raw {
		lv, err := codec.DecodeLinkValue(v)
		if err != nil {
			s.logger.Warn("skipping malformed link value", "entity", from.String(), "link", name, "error", err)
			continue
		}
		out = append(out, lv.Target)
	}
	return out, nil
}

// LinksTo returns the entities of typeID whose named link points to to.
func (s *Store) LinksTo(txn *env.Txn, typeID int32, name string, to EntityID) ([]EntityID, error) {
	linkID, ok := s.links.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	key := codec.LinkValue{LinkID: linkID, Target: to}.Bytes()
	sources := roaring64.New()
	err := s.tables.Get(typeID).Links.Second.ScanKey(txn, key, func(v []byte) (bool, error) {
		pk, err := codec.DecodePropertyKey(v)
		if err != nil {
			return true, nil
		}
		sources.Add(uint64(pk.LocalID))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return toEntityIDs(typeID, sources), nil
}

// FindByProperty returns the entities of typeID whose property equals
// value. For set properties an entity matches when value is one of the
// elements.
func (s *Store) FindByProperty(txn *env.Txn, typeID int32, name string, value any) ([]EntityID, error) {
	propID, ok := s.props.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	v, err := codec.Of(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	keys, err := codec.SecondaryKeys(v)
	if err != nil {
		return nil, err
	}
	idx := s.tables.Get(typeID).Properties.ValueIndex(propID)
	found := roaring64.New()
	for _, k := range keys {
		if err := idx.ScanKey(txn, k, addLocalID(found)); err != nil {
			return nil, err
		}
	}
	return toEntityIDs(typeID, found), nil
}

// EntitiesWithProperty returns the entities of typeID that have the named
// property.
func (s *Store) EntitiesWithProperty(txn *env.Txn, typeID int32, name string) ([]EntityID, error) {
	propID, ok := s.props.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	return s.allIndexLookup(txn, typeID, s.tables.Get(typeID).Properties.All, propID)
}

// EntitiesWithLink returns the entities of typeID that have at least one
// target for the named link.
func (s *Store) EntitiesWithLink(txn *env.Txn, typeID int32, name string) ([]EntityID, error) {
	linkID, ok := s.links.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	return s.allIndexLookup(txn, typeID, s.tables.Get(typeID).Links.All, linkID)
}

// EntitiesWithBlob returns the entities of typeID that have the named blob.
func (s *Store) EntitiesWithBlob(txn *env.Txn, typeID int32, name string) ([]EntityID, error) {
	blobID, ok := s.blobNames.lookup(txn, name)
	if !ok {
		return nil, nil
	}
	return s.allIndexLookup(txn, typeID, s.tables.Get(typeID).Blobs.All, blobID)
}

func (s *Store) allIndexLookup(txn *env.Txn, typeID int32, idx *tables.Index, id int32) ([]EntityID, error) {
	found := roaring64.New()
	if err := idx.ScanKey(txn, codec.IDBytes(id), addLocalID(found)); err != nil {
		return nil, err
	}
	return toEntityIDs(typeID, found), nil
}

func addLocalID(bm *roaring64.Bitmap) func(v []byte) (bool, error) {
	return func(v []byte) (bool, error) {
		localID, err := codec.LocalID(v)
		if err != nil {
			return true, nil
		}
		bm.Add(uint64(localID))
		return true, nil
	}
}

func toEntityIDs(typeID int32, bm *roaring64.Bitmap) []EntityID {
	out := make([]EntityID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, EntityID{TypeID: typeID, LocalID: int64(it.Next())})
	}
	return out
}
