package engine

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// linkFix is a queued correction of the link indices.
type linkFix struct {
	key   []byte
	value []byte
	// decoded is false for rows that do not decode.
	decoded bool
	source  int64
	link    codec.LinkValue
}

// fingerprint hashes a forward row for the reverse scan.
func fingerprint(key, value []byte) uint64 {
	return xxhash.Sum64(key)<<31 + xxhash.Sum64(value)
}

// LinksConsistency reconciles the forward and reverse link indices of every
// type. Forward rows whose source or target is gone and rows that do not
// decode are deleted from both indices. Forward rows without their reverse
// row are put again. Reverse rows without a forward row are deleted. The
// all-links index is then reconciled both ways with the sources the reverse
// index holds per link id.
func (r *Refactorings) LinksConsistency(ctx context.Context) ([]Report, error) {
	return r.forEachEntityType(ctx, PassLinks, r.linksConsistency)
}

func (r *Refactorings) linksConsistency(ctx context.Context, et EntityType, rep *Report) error {
	links := r.s.tables.Get(et.ID).Links
	charge := r.s.resourceController.NewCharge()
	defer charge.Release()

	var phantoms, redundant, orphans []linkFix
	expected := make(map[int32]*roaring64.Bitmap)
	existing := make(map[int32]*roaring64.Bitmap)
	var malformed []rawPair
	err := r.snapshot(func(txn *env.Txn) error {
		live := r.newLiveCache(txn, charge)
		sources, err := live.get(et.ID)
		if err != nil {
			return err
		}
		seen := roaring64.New()

		err = links.First.Scan(txn, func(k, v []byte) (bool, error) {
			rep.Scanned++
			fix := decodeLinkRow(k, v)
			if !fix.decoded {
				r.log.Warn("deleting malformed link row", "type", et.Name, "key", k)
				phantoms = append(phantoms, fix)
				return true, nil
			}
			if !sources.Contains(uint64(fix.source)) {
				phantoms = append(phantoms, fix)
				return true, nil
			}
			ok, err := live.exists(fix.link.Target)
			if err != nil {
				return false, err
			}
			if !ok {
				r.log.Debug("phantom link", "type", et.Name, "source", fix.source, "link", fix.link.LinkID, "target", fix.link.Target.String())
				phantoms = append(phantoms, fix)
				return true, nil
			}
			seen.Add(fingerprint(k, v))
			if !links.Second.Exact(txn, v, k) {
				redundant = append(redundant, fix)
				bitmapFor(expected, fix.link.LinkID).Add(uint64(fix.source))
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		current := int32(-1)
		err = links.Second.Scan(txn, func(v, k []byte) (bool, error) {
			rep.Scanned++
			if !seen.Contains(fingerprint(k, v)) {
				if !links.First.Exact(txn, k, v) {
					orphans = append(orphans, linkFix{key: clone(k), value: clone(v)})
				}
				return true, nil
			}
			fix := decodeLinkRow(k, v)
			if !fix.decoded {
				return true, nil
			}
			if fix.link.LinkID < current {
				return false, fatal(string(PassLinks), fmt.Errorf("%w: link id %d after %d in %s", env.ErrUnsorted, fix.link.LinkID, current, links.Second.Name()))
			}
			current = fix.link.LinkID
			bitmapFor(expected, current).Add(uint64(fix.source))
			return true, nil
		})
		if err != nil {
			return err
		}

		err = links.All.Scan(txn, func(k, v []byte) (bool, error) {
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
		return charge.Add(int64(seen.GetSizeInBytes()) + fixesSize(phantoms, redundant, orphans) +
			bitmapsSize(expected) + bitmapsSize(existing) + int64(len(malformed))*64)
	})
	if err != nil {
		return err
	}

	return r.apply(ctx, PassLinks, et.Name, func(b *batch) error {
		before := rep.Changes()
		for _, fix := range phantoms {
			ok, err := r.deletePhantomLink(b.txn, et.ID, fix)
			if err != nil {
				return err
			}
			if ok {
				rep.Phantom++
				if err := b.step(); err != nil {
					return err
				}
			}
		}
		for _, fix := range redundant {
			if !links.First.Exact(b.txn, fix.key, fix.value) || links.Second.Exact(b.txn, fix.value, fix.key) {
				continue
			}
			if _, err := links.Add(b.txn, fix.source, fix.link); err != nil {
				return err
			}
			rep.Redundant++
			if err := b.step(); err != nil {
				return err
			}
		}
		for _, fix := range orphans {
			if links.First.Exact(b.txn, fix.key, fix.value) {
				continue
			}
			ok, err := links.Delete(b.txn, fix.key, fix.value)
			if err != nil {
				return err
			}
			if ok {
				rep.Phantom++
				if err := b.step(); err != nil {
					return err
				}
			}
		}
		if err := r.reconcileAllLinks(b, links, expected, existing, malformed, rep); err != nil {
			return err
		}
		if rep.Changes() > before {
			return r.s.settings.unmark(b.txn, settingNullLinks, et.ID)
		}
		return nil
	})
}

func decodeLinkRow(k, v []byte) linkFix {
	fix := linkFix{key: clone(k), value: clone(v)}
	key, kerr := codec.DecodePropertyKey(k)
	link, verr := codec.DecodeLinkValue(v)
	if kerr != nil || verr != nil || key.PropertyID != link.LinkID {
		return fix
	}
	fix.decoded = true
	fix.source = key.LocalID
	fix.link = link
	return fix
}

// deletePhantomLink deletes a queued phantom after checking that it is still
// one in txn.
func (r *Refactorings) deletePhantomLink(txn *env.Txn, typeID int32, fix linkFix) (bool, error) {
	set := r.s.tables.Get(typeID)
	links := set.Links
	if !links.First.Exact(txn, fix.key, fix.value) {
		return false, nil
	}
	if !fix.decoded {
		return links.Delete(txn, fix.key, fix.value)
	}
	if set.Entities.Contains(txn, fix.source) && r.s.Exists(txn, fix.link.Target) {
		return false, nil
	}
	return links.Remove(txn, fix.source, fix.link)
}

// reconcileAllLinks adds the (link id, source) rows the all-links index
// lacks, grouped by link id, and deletes the rows without any forward row.
// Each change is checked against the forward index in the write
// transaction first.
func (r *Refactorings) reconcileAllLinks(b *batch, links *tables.LinksTable, expected, existing map[int32]*roaring64.Bitmap, malformed []rawPair, rep *Report) error {
	for _, id := range sortedIDs(expected) {
		it := roaring64.AndNot(expected[id], bitmapOrEmpty(existing, id)).Iterator()
		for it.HasNext() {
			key := codec.PropertyKey{LocalID: int64(it.Next()), PropertyID: id}
			if !links.HasLinks(b.txn, key) {
				continue
			}
			all, err := links.All.Open(b.txn)
			if err != nil {
				return err
			}
			added, err := all.Add(b.txn, codec.IDBytes(id), codec.LocalIDBytes(key.LocalID))
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
	if !links.All.Exists(b.txn) {
		return nil
	}
	all, err := links.All.Open(b.txn)
	if err != nil {
		return err
	}
	for _, id := range sortedIDs(existing) {
		it := roaring64.AndNot(existing[id], bitmapOrEmpty(expected, id)).Iterator()
		for it.HasNext() {
			key := codec.PropertyKey{LocalID: int64(it.Next()), PropertyID: id}
			if links.HasLinks(b.txn, key) {
				continue
			}
			if err := r.deletePhantom(b, all, codec.IDBytes(id), codec.LocalIDBytes(key.LocalID), rep); err != nil {
				return err
			}
		}
	}
	for _, p := range malformed {
		if err := r.deletePhantom(b, all, p.key, p.value, rep); err != nil {
			return err
		}
	}
	return nil
}

func fixesSize(groups ...[]linkFix) int64 {
	var n int64
	for _, g := range groups {
		for _, f := range g {
			n += int64(len(f.key)+len(f.value)) + 48
		}
	}
	return n
}
