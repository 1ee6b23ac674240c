package engine

import (
	"bytes"
	"context"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
)

type legacyFloatRow struct {
	key   codec.PropertyKey
	raw   []byte
	value codec.Value
}

// FixNegativeFloats rewrites the float and double properties that hold
// negative values in the legacy encoding, once per type.
func (r *Refactorings) FixNegativeFloats(ctx context.Context) ([]Report, error) {
	return r.forEachEntityType(ctx, PassFloats, r.fixNegativeFloats)
}

func (r *Refactorings) fixNegativeFloats(ctx context.Context, et EntityType, rep *Report) error {
	props := r.s.tables.Get(et.ID).Properties
	done := false
	var rows []legacyFloatRow

	err := r.snapshot(func(txn *env.Txn) error {
		if r.s.settings.isSet(txn, settingFixFloats, et.ID) {
			done = true
			return nil
		}
		return props.Primary.Scan(txn, func(k, raw []byte) (bool, error) {
			rep.Scanned++
			if len(raw) == 0 || !floatingTag(raw) {
				return true, nil
			}
			key, err := codec.DecodePropertyKey(k)
			if err != nil {
				return true, nil
			}
			v, err := codec.DecodeLegacyValue(raw)
			if err != nil {
				r.log.Warn("skipping undecodable float property", "type", et.Name, "entity", key.LocalID, "property", key.PropertyID, "error", err)
				return true, nil
			}
			if codec.HasNegativeFloating(v) {
				rows = append(rows, legacyFloatRow{key: key, raw: clone(raw), value: v})
			}
			return true, nil
		})
	})
	if err != nil || done {
		return err
	}

	return r.apply(ctx, PassFloats, et.Name, func(b *batch) error {
		for _, row := range rows {
			raw, ok := props.Get(b.txn, row.key)
			if !ok || !bytes.Equal(raw, row.raw) {
				continue
			}
			oldKeys, err := codec.LegacySecondaryKeys(row.value)
			if err != nil {
				return err
			}
			if err := props.Rewrite(b.txn, row.key, oldKeys, row.value); err != nil {
				return err
			}
			rep.Rewritten++
			if err := b.step(); err != nil {
				return err
			}
		}
		return r.s.settings.mark(b.txn, settingFixFloats, et.ID)
	})
}

// floatingTag reports whether the stored value is a float, a double or a
// set of either.
func floatingTag(raw []byte) bool {
	t := codec.Type(raw[0])
	if t == codec.TypeSet {
		return len(raw) > 1 && codec.Type(raw[1]).IsFloating()
	}
	return t.IsFloating()
}
