package tables

import (
	"testing"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *env.Environment {
	t.Helper()
	e, err := env.Open(t.TempDir(), func(o *env.Options) { o.Durability = env.DurabilityAsync })
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNames(t *testing.T) {
	assert.Equal(t, "properties#7#value_idx#3", ValueIndexName(7, 3))
	typeID, propID, ok := ParseValueIndexName(ValueIndexName(7, 3))
	require.True(t, ok)
	assert.Equal(t, int32(7), typeID)
	assert.Equal(t, int32(3), propID)

	_, _, ok = ParseValueIndexName(AllPropertiesName(7))
	assert.False(t, ok)

	id, ok := ParseLinksName(LinksName(4))
	require.True(t, ok)
	assert.Equal(t, int32(4), id)
	_, ok = ParseLinksName(ReverseLinksName(4))
	assert.False(t, ok)

	assert.True(t, IsHistory("entities#1#history"))
	assert.False(t, IsHistory(EntitiesName(1)))
}

func TestPropertiesTable_PutReplacesSecondaryRows(t *testing.T) {
	e := newEnv(t)
	pt := NewPropertiesTable(e, 1)
	key := codec.PropertyKey{LocalID: 5, PropertyID: 2}

	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		v, err := codec.Of([]string{"a", "b"})
		require.NoError(t, err)
		changed, err := pt.Put(txn, key, v)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = pt.Put(txn, key, v)
		require.NoError(t, err)
		assert.False(t, changed)

		v2, err := codec.Of("c")
		require.NoError(t, err)
		_, err = pt.Put(txn, key, v2)
		return err
	}))

	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		assert.Equal(t, int64(1), pt.ValueIndex(2).Count(txn))
		assert.Equal(t, int64(1), pt.All.Count(txn))
		assert.Equal(t, []int32{2}, pt.ValueIndexIDs(txn))
		raw, ok := pt.Get(txn, key)
		require.True(t, ok)
		v, err := codec.DecodeValue(raw)
		require.NoError(t, err)
		assert.Equal(t, "c", v.Interface())
		return nil
	}))

	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		deleted, err := pt.Delete(txn, key)
		require.NoError(t, err)
		assert.True(t, deleted)
		return nil
	}))
	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		assert.Zero(t, pt.Primary.Count(txn))
		assert.Zero(t, pt.ValueIndex(2).Count(txn))
		assert.Zero(t, pt.All.Count(txn))
		return nil
	}))
}

func TestLinksTable_AddRemove(t *testing.T) {
	e := newEnv(t)
	lt := NewLinksTable(e, 1)
	a := codec.LinkValue{LinkID: 3, Target: codec.EntityID{TypeID: 1, LocalID: 9}}
	b := codec.LinkValue{LinkID: 3, Target: codec.EntityID{TypeID: 1, LocalID: 10}}

	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		for _, l := range []codec.LinkValue{a, b} {
			added, err := lt.Add(txn, 5, l)
			require.NoError(t, err)
			assert.True(t, added)
		}
		assert.Equal(t, int64(2), lt.First.Count(txn))
		assert.Equal(t, int64(2), lt.Second.Count(txn))
		assert.Equal(t, int64(1), lt.All.Count(txn))

		removed, err := lt.Remove(txn, 5, a)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Equal(t, int64(1), lt.All.Count(txn))

		_, err = lt.Remove(txn, 5, b)
		require.NoError(t, err)
		assert.Zero(t, lt.All.Count(txn))
		assert.Zero(t, lt.Second.Count(txn))
		return nil
	}))
}

func TestBlobValue_Encoding(t *testing.T) {
	v := BlobValue{Handle: 12, Inline: []byte("abc")}
	got, err := DecodeBlobValue(v.Bytes())
	require.NoError(t, err)
	assert.Equal(t, v, got)

	got, err = DecodeBlobValue(BlobValue{Handle: 1 << 40}.Bytes())
	require.NoError(t, err)
	assert.Nil(t, got.Inline)
}

func TestSet_CreateMakesStoresVisibleToReaders(t *testing.T) {
	e := newEnv(t)
	c := NewCache(e)
	s := c.Get(2)
	assert.Same(t, s, c.Get(2))

	err := e.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		_, err := s.Links.First.Open(txn)
		return err
	})
	require.ErrorIs(t, err, env.ErrReadonlyTransaction)

	require.NoError(t, e.ExecuteInTransaction(s.Create))
	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		_, err := s.Links.First.Open(txn)
		return err
	}))
}

func TestIndex_ScanPrefix(t *testing.T) {
	e := newEnv(t)
	idx := NewIndex(e, PropertiesName(1), false)
	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		s, err := idx.Open(txn)
		if err != nil {
			return err
		}
		for _, k := range []codec.PropertyKey{{LocalID: 5, PropertyID: 1}, {LocalID: 5, PropertyID: 2}, {LocalID: 6, PropertyID: 1}, {LocalID: 0x500, PropertyID: 1}} {
			if _, err := s.Put(txn, k.Bytes(), nil); err != nil {
				return err
			}
		}
		return nil
	}))

	txn, err := e.BeginReadonlyTransaction()
	require.NoError(t, err)
	defer txn.Abort()
	var got []int32
	require.NoError(t, idx.ScanPrefix(txn, codec.LocalIDBytes(5), func(k, _ []byte) (bool, error) {
		key, err := codec.DecodePropertyKey(k)
		if err != nil {
			return false, err
		}
		assert.Equal(t, int64(5), key.LocalID)
		got = append(got, key.PropertyID)
		return true, nil
	}))
	assert.Equal(t, []int32{1, 2}, got)
}

func TestPropertiesTable_RewriteLegacyEncoding(t *testing.T) {
	e := newEnv(t)
	pt := NewPropertiesTable(e, 1)
	key := codec.PropertyKey{LocalID: 3, PropertyID: 1}
	v, err := codec.Of(-1.5)
	require.NoError(t, err)
	legacyKeys, err := codec.LegacySecondaryKeys(v)
	require.NoError(t, err)

	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		primary, err := pt.Primary.Open(txn)
		require.NoError(t, err)
		_, err = primary.Put(txn, key.Bytes(), codec.AppendLegacyValue(nil, v))
		require.NoError(t, err)
		return pt.PutSecondary(txn, key, legacyKeys...)
	}))

	require.NoError(t, e.ExecuteInTransaction(func(txn *env.Txn) error {
		return pt.Rewrite(txn, key, legacyKeys, v)
	}))

	newKeys, err := codec.SecondaryKeys(v)
	require.NoError(t, err)
	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		raw, ok := pt.Get(txn, key)
		require.True(t, ok)
		assert.Equal(t, codec.AppendValue(nil, v), raw)
		vi := pt.ValueIndex(1)
		assert.Equal(t, int64(1), vi.Count(txn))
		assert.True(t, vi.Exact(txn, newKeys[0], codec.LocalIDBytes(3)))
		assert.False(t, vi.Exact(txn, legacyKeys[0], codec.LocalIDBytes(3)))
		return nil
	}))
}
