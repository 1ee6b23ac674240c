package engine

import (
	"context"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// nullFacet is a primary index keyed by PropertyKey with its all index
// id -> local id.
type nullFacet struct {
	name    string
	setting string
	primary *tables.Index
	all     *tables.Index
}

func (r *Refactorings) nullFacets(typeID int32) []nullFacet {
	set := r.s.tables.Get(typeID)
	return []nullFacet{
		{name: "properties", setting: settingNullProps, primary: set.Properties.Primary, all: set.Properties.All},
		{name: "links", setting: settingNullLinks, primary: set.Links.First, all: set.Links.All},
		{name: "blobs", setting: settingNullBlobs, primary: set.Blobs.Primary, all: set.Blobs.All},
	}
}

// NullIndices fills the all indices of every type and facet from their
// primary index, once per type and facet. Rows of the all index without a
// primary row are deleted.
func (r *Refactorings) NullIndices(ctx context.Context) ([]Report, error) {
	return r.forEachEntityType(ctx, PassNullIndices, func(ctx context.Context, et EntityType, rep *Report) error {
		for _, f := range r.nullFacets(et.ID) {
			if err := r.backfillAllIndex(ctx, et, f, true, rep); err != nil {
				return err
			}
		}
		return nil
	})
}

// BlobsConsistency reconciles the all-blobs index of every type with its
// blob rows both ways, whatever the settings say.
func (r *Refactorings) BlobsConsistency(ctx context.Context) ([]Report, error) {
	return r.forEachEntityType(ctx, PassBlobs, func(ctx context.Context, et EntityType, rep *Report) error {
		set := r.s.tables.Get(et.ID)
		f := nullFacet{name: "blobs", setting: settingNullBlobs, primary: set.Blobs.Primary, all: set.Blobs.All}
		return r.backfillAllIndex(ctx, et, f, false, rep)
	})
}

type rawPair struct{ key, value []byte }

// backfillAllIndex diffs f.all against f.primary and applies the
// difference. A gated run is skipped once the facet setting is marked.
func (r *Refactorings) backfillAllIndex(ctx context.Context, et EntityType, f nullFacet, gated bool, rep *Report) error {
	done := false
	expected := make(map[int32]*roaring64.Bitmap)
	existing := make(map[int32]*roaring64.Bitmap)
	var malformed []rawPair

	charge := r.s.resourceController.NewCharge()
	defer charge.Release()

	err := r.snapshot(func(txn *env.Txn) error {
		if gated && r.s.settings.isSet(txn, f.setting, et.ID) {
			done = true
			return nil
		}
		err := f.primary.Scan(txn, func(k, _ []byte) (bool, error) {
			rep.Scanned++
			key, err := codec.DecodePropertyKey(k)
			if err != nil {
				r.log.Warn("skipping malformed primary key", "pass", rep.Pass, "type", et.Name, "facet", f.name, "error", err)
				return true, nil
			}
			bitmapFor(expected, key.PropertyID).Add(uint64(key.LocalID))
			return true, nil
		})
		if err != nil {
			return err
		}
		return f.all.Scan(txn, func(k, v []byte) (bool, error) {
			rep.Scanned++
			id, kerr := codec.ID(k)
			localID, verr := codec.LocalID(v)
			if kerr != nil || verr != nil {
				malformed = append(malformed, rawPair{key: clone(k), value: clone(v)})
				return true, nil
			}
			bitmapFor(existing, id).Add(uint64(localID))
			return true, nil
		})
	})
	if err != nil || done {
		return err
	}
	if err := charge.Add(bitmapsSize(expected) + bitmapsSize(existing)); err != nil {
		return err
	}

	err = r.apply(ctx, rep.Pass, et.Name, func(b *batch) error {
		all, err := f.all.Open(b.txn)
		if err != nil {
			return err
		}
		for _, id := range sortedIDs(expected) {
			missing := roaring64.AndNot(expected[id], bitmapOrEmpty(existing, id))
			it := missing.Iterator()
			for it.HasNext() {
				localID := int64(it.Next())
				if !containsKey(b.txn, f.primary, codec.PropertyKey{LocalID: localID, PropertyID: id}.Bytes()) {
					continue
				}
				added, err := all.Add(b.txn, codec.IDBytes(id), codec.LocalIDBytes(localID))
				if err != nil {
					return err
				}
				if added {
					rep.Missing++
					if err := b.step(); err != nil {
						return err
					}
				}
			}
		}
		for _, id := range sortedIDs(existing) {
			phantom := roaring64.AndNot(existing[id], bitmapOrEmpty(expected, id))
			it := phantom.Iterator()
			for it.HasNext() {
				localID := int64(it.Next())
				if containsKey(b.txn, f.primary, codec.PropertyKey{LocalID: localID, PropertyID: id}.Bytes()) {
					continue
				}
				if err := r.deletePhantom(b, all, codec.IDBytes(id), codec.LocalIDBytes(localID), rep); err != nil {
					return err
				}
			}
		}
		for _, p := range malformed {
			if err := r.deletePhantom(b, all, p.key, p.value, rep); err != nil {
				return err
			}
		}
		return r.s.settings.mark(b.txn, f.setting, et.ID)
	})
	return err
}

func (r *Refactorings) deletePhantom(b *batch, s *env.Store, key, value []byte, rep *Report) error {
	ok, err := s.DeleteExact(b.txn, key, value)
	if err != nil || !ok {
		return err
	}
	rep.Phantom++
	return b.step()
}

func containsKey(txn *env.Txn, idx *tables.Index, key []byte) bool {
	if !idx.Exists(txn) {
		return false
	}
	s, err := idx.Open(txn)
	if err != nil {
		return false
	}
	return s.Contains(txn, key)
}

func bitmapFor(m map[int32]*roaring64.Bitmap, id int32) *roaring64.Bitmap {
	bm, ok := m[id]
	if !ok {
		bm = roaring64.New()
		m[id] = bm
	}
	return bm
}

func bitmapOrEmpty(m map[int32]*roaring64.Bitmap, id int32) *roaring64.Bitmap {
	if bm, ok := m[id]; ok {
		return bm
	}
	return roaring64.New()
}

func bitmapsSize(m map[int32]*roaring64.Bitmap) int64 {
	var n int64
	for _, bm := range m {
		n += int64(bm.GetSizeInBytes())
	}
	return n
}

func sortedIDs[V any](m map[int32]V) []int32 {
	return slices.Sorted(maps.Keys(m))
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }
