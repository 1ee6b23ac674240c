package engine

import (
	"bytes"
	"context"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// secondaryRow is a value index row of one property.
type secondaryRow struct {
	propertyID int32
	sk         []byte
	localID    []byte
}

// missingSecondary is a value index row derived from the primary value raw
// that the value index lacks.
type missingSecondary struct {
	key codec.PropertyKey
	raw []byte
	sk  []byte
}

// PropertiesConsistency reconciles the primary property index of every type
// with its value indices and its all-properties index. Entities that own
// property rows without an existence row are deleted.
func (r *Refactorings) PropertiesConsistency(ctx context.Context) ([]Report, error) {
	return r.forEachEntityType(ctx, PassProperties, r.propertiesConsistency)
}

func (r *Refactorings) propertiesConsistency(ctx context.Context, et EntityType, rep *Report) error {
	props := r.s.tables.Get(et.ID).Properties
	charge := r.s.resourceController.NewCharge()
	defer charge.Release()

	var (
		orphans   = roaring64.New()
		expected  = make(map[int32]*roaring64.Bitmap)
		existing  = make(map[int32]*roaring64.Bitmap)
		missing   []missingSecondary
		phantoms  []secondaryRow
		malformed []rawPair
	)
	err := r.snapshot(func(txn *env.Txn) error {
		live, err := r.liveEntities(txn, et.ID)
		if err != nil {
			return err
		}
		if err := charge.Add(int64(live.GetSizeInBytes())); err != nil {
			return err
		}

		err = props.Primary.Scan(txn, func(k, raw []byte) (bool, error) {
			rep.Scanned++
			key, err := codec.DecodePropertyKey(k)
			if err != nil {
				r.log.Warn("skipping malformed property key", "type", et.Name, "error", err)
				return true, nil
			}
			if !live.Contains(uint64(key.LocalID)) {
				orphans.Add(uint64(key.LocalID))
				return true, nil
			}
			bitmapFor(expected, key.PropertyID).Add(uint64(key.LocalID))
			keys, err := expectedSecondaryKeys(raw)
			if err != nil {
				r.log.Warn("property value does not decode", "type", et.Name, "entity", key.LocalID, "property", key.PropertyID, "error", err)
				return true, nil
			}
			vi := props.ValueIndex(key.PropertyID)
			localID := codec.LocalIDBytes(key.LocalID)
			for _, sk := range keys {
				if !vi.Exact(txn, sk, localID) {
					missing = append(missing, missingSecondary{key: key, raw: clone(raw), sk: sk})
				}
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		for _, propID := range props.ValueIndexIDs(txn) {
			err := props.ValueIndex(propID).Scan(txn, func(sk, v []byte) (bool, error) {
				rep.Scanned++
				if !secondaryValid(txn, props, propID, sk, v) {
					phantoms = append(phantoms, secondaryRow{propertyID: propID, sk: clone(sk), localID: clone(v)})
				}
				return true, nil
			})
			if err != nil {
				return err
			}
		}

		err = props.All.Scan(txn, func(k, v []byte) (bool, error) {
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
		if err != nil {
			return err
		}
		return charge.Add(bitmapsSize(expected) + bitmapsSize(existing) + int64(orphans.GetSizeInBytes()) +
			int64(len(missing)+len(phantoms)+len(malformed))*64)
	})
	if err != nil {
		return err
	}

	return r.apply(ctx, PassProperties, et.Name, func(b *batch) error {
		set := r.s.tables.Get(et.ID)
		it := orphans.Iterator()
		for it.HasNext() {
			id := EntityID{TypeID: et.ID, LocalID: int64(it.Next())}
			if set.Entities.Contains(b.txn, id.LocalID) {
				continue
			}
			r.log.Debug("deleting entity without existence row", "type", et.Name, "entity", id.String())
			ok, err := r.s.DeleteEntity(b.txn, id)
			if err != nil {
				return err
			}
			if ok {
				rep.DeletedEntities++
				if err := b.step(); err != nil {
					return err
				}
			}
		}

		for _, m := range missing {
			raw, ok := props.Get(b.txn, m.key)
			if !ok || !bytes.Equal(raw, m.raw) {
				continue
			}
			if props.ValueIndex(m.key.PropertyID).Exact(b.txn, m.sk, codec.LocalIDBytes(m.key.LocalID)) {
				continue
			}
			if err := props.PutSecondary(b.txn, m.key, m.sk); err != nil {
				return err
			}
			rep.Missing++
			if err := b.step(); err != nil {
				return err
			}
		}

		for _, p := range phantoms {
			if secondaryValid(b.txn, props, p.propertyID, p.sk, p.localID) {
				continue
			}
			vi := props.ValueIndex(p.propertyID)
			if !vi.Exists(b.txn) {
				continue
			}
			s, err := vi.Open(b.txn)
			if err != nil {
				return err
			}
			if err := r.deletePhantom(b, s, p.sk, p.localID, rep); err != nil {
				return err
			}
		}

		return r.reconcileAllProperties(b, props, expected, existing, malformed, rep)
	})
}

// reconcileAllProperties inserts the expected rows the all-properties index
// lacks and deletes the rows it holds without a primary row.
func (r *Refactorings) reconcileAllProperties(b *batch, props *tables.PropertiesTable, expected, existing map[int32]*roaring64.Bitmap, malformed []rawPair, rep *Report) error {
	var all *env.Store
	openAll := func() (*env.Store, error) {
		if all != nil {
			return all, nil
		}
		var err error
		all, err = props.All.Open(b.txn)
		return all, err
	}
	for _, id := range sortedIDs(expected) {
		it := roaring64.AndNot(expected[id], bitmapOrEmpty(existing, id)).Iterator()
		for it.HasNext() {
			key := codec.PropertyKey{LocalID: int64(it.Next()), PropertyID: id}
			if _, ok := props.Get(b.txn, key); !ok {
				continue
			}
			s, err := openAll()
			if err != nil {
				return err
			}
			added, err := s.Add(b.txn, codec.IDBytes(id), codec.LocalIDBytes(key.LocalID))
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
	if !props.All.Exists(b.txn) {
		return nil
	}
	s, err := openAll()
	if err != nil {
		return err
	}
	for _, id := range sortedIDs(existing) {
		it := roaring64.AndNot(existing[id], bitmapOrEmpty(expected, id)).Iterator()
		for it.HasNext() {
			key := codec.PropertyKey{LocalID: int64(it.Next()), PropertyID: id}
			if _, ok := props.Get(b.txn, key); ok {
				continue
			}
			if err := r.deletePhantom(b, s, codec.IDBytes(id), codec.LocalIDBytes(key.LocalID), rep); err != nil {
				return err
			}
		}
	}
	for _, p := range malformed {
		if err := r.deletePhantom(b, s, p.key, p.value, rep); err != nil {
			return err
		}
	}
	return nil
}

func expectedSecondaryKeys(raw []byte) ([][]byte, error) {
	v, err := codec.DecodeValue(raw)
	if err != nil {
		return nil, err
	}
	return codec.SecondaryKeys(v)
}

// secondaryValid reports whether the value index row (sk, localID) of
// propertyID is derived from the current primary value.
func secondaryValid(txn *env.Txn, props *tables.PropertiesTable, propertyID int32, sk, localID []byte) bool {
	id, err := codec.LocalID(localID)
	if err != nil {
		return false
	}
	if _, err := codec.DecodeSecondaryKey(sk); err != nil {
		return false
	}
	raw, ok := props.Get(txn, codec.PropertyKey{LocalID: id, PropertyID: propertyID})
	if !ok {
		return false
	}
	keys, err := expectedSecondaryKeys(raw)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(keys, func(k []byte) bool { return bytes.Equal(k, sk) })
}
