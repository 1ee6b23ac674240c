package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/resource"
	"github.com/hupe1980/entitydb/internal/tables"
)

func putRaw(t *testing.T, txn *env.Txn, idx *tables.Index, k, v []byte) {
	t.Helper()
	s, err := idx.Open(txn)
	require.NoError(t, err)
	_, err = s.Put(txn, k, v)
	require.NoError(t, err)
}

func deleteRaw(t *testing.T, txn *env.Txn, idx *tables.Index, k, v []byte) {
	t.Helper()
	s, err := idx.Open(txn)
	require.NoError(t, err)
	ok, err := s.DeleteExact(txn, k, v)
	require.NoError(t, err)
	require.True(t, ok, "row %x -> %x", k, v)
}

func run(t *testing.T, s *Store, plan Plan) []Report {
	t.Helper()
	reps, err := s.Refactorings().Run(context.Background(), plan)
	require.NoError(t, err)
	return reps
}

// total sums the reports of pass.
func total(reps []Report, pass Pass) Report {
	sum := Report{Pass: pass}
	for _, r := range reps {
		if r.Pass != pass {
			continue
		}
		sum.Scanned += r.Scanned
		sum.Phantom += r.Phantom
		sum.Missing += r.Missing
		sum.Redundant += r.Redundant
		sum.Rewritten += r.Rewritten
		sum.DeletedEntities += r.DeletedEntities
	}
	return sum
}

func linksPlan() Plan { return Plan{Links: true} }

func TestLinksConsistency_DeletedTarget(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 10)

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[5], "friendOf", people[9])
		require.NoError(t, err)
		_, err = s.AddLink(txn, people[5], "friendOf", people[1])
		require.NoError(t, err)
		_, err = s.DeleteEntity(txn, people[9])
		require.NoError(t, err)
	})

	rep := total(run(t, s, linksPlan()), PassLinks)
	assert.Equal(t, int64(1), rep.Phantom)
	assert.Zero(t, rep.Redundant)

	read(t, s, func(txn *env.Txn) {
		targets, err := s.Links(txn, people[5], "friendOf")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[1]}, targets)
		sources, err := s.LinksTo(txn, people[0].TypeID, "friendOf", people[9])
		require.NoError(t, err)
		assert.Empty(t, sources)
		links := s.Tables(people[0].TypeID).Links
		assert.Equal(t, int64(1), links.First.Count(txn))
		assert.Equal(t, int64(1), links.Second.Count(txn))
		assert.Equal(t, int64(1), links.All.Count(txn))
	})

	again := total(run(t, s, linksPlan()), PassLinks)
	assert.Zero(t, again.Changes())
}

func TestLinksConsistency_DeletedSource(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 3)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		_, err = s.Tables(people[0].TypeID).Entities.Remove(txn, people[0].LocalID)
		require.NoError(t, err)
	})

	rep := total(run(t, s, linksPlan()), PassLinks)
	assert.Equal(t, int64(1), rep.Phantom)
	read(t, s, func(txn *env.Txn) {
		assert.Zero(t, links.First.Count(txn))
		assert.Zero(t, links.Second.Count(txn))
		assert.Zero(t, links.All.Count(txn))
	})
}

func TestLinksConsistency_MissingReverseRow(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 2)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		linkID, ok := s.LinkID(txn, "friendOf")
		require.True(t, ok)
		key := codec.PropertyKey{LocalID: 0, PropertyID: linkID}.Bytes()
		value := codec.LinkValue{LinkID: linkID, Target: people[1]}.Bytes()
		deleteRaw(t, txn, links.Second, value, key)
	})

	rep := total(run(t, s, linksPlan()), PassLinks)
	assert.Equal(t, int64(1), rep.Redundant)
	assert.Zero(t, rep.Phantom)

	read(t, s, func(txn *env.Txn) {
		sources, err := s.LinksTo(txn, people[0].TypeID, "friendOf", people[1])
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[0]}, sources)
	})
	assert.Zero(t, total(run(t, s, linksPlan()), PassLinks).Changes())
}

func TestLinksConsistency_OrphanReverseRow(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 3)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		linkID, _ := s.LinkID(txn, "friendOf")
		putRaw(t, txn, links.Second,
			codec.LinkValue{LinkID: linkID, Target: people[1]}.Bytes(),
			codec.PropertyKey{LocalID: 2, PropertyID: linkID}.Bytes())
	})

	rep := total(run(t, s, linksPlan()), PassLinks)
	assert.Equal(t, int64(1), rep.Phantom)
	read(t, s, func(txn *env.Txn) {
		sources, err := s.LinksTo(txn, people[0].TypeID, "friendOf", people[1])
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[0]}, sources)
		assert.Equal(t, int64(1), links.Second.Count(txn))
	})
}

func TestLinksConsistency_MalformedRow(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 2)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		linkID, _ := s.LinkID(txn, "friendOf")
		putRaw(t, txn, links.First,
			codec.PropertyKey{LocalID: 1, PropertyID: linkID}.Bytes(),
			codec.LinkValue{LinkID: linkID + 7, Target: people[0]}.Bytes())
	})

	rep := total(run(t, s, linksPlan()), PassLinks)
	assert.Equal(t, int64(1), rep.Phantom)
	read(t, s, func(txn *env.Txn) {
		assert.Equal(t, int64(1), links.First.Count(txn))
		assert.Equal(t, int64(1), links.Second.Count(txn))
	})
}

func TestLinksConsistency_RestoresAllIndex(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 4)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		for _, from := range people[:3] {
			_, err := s.AddLink(txn, from, "friendOf", people[3])
			require.NoError(t, err)
			_, err = s.AddLink(txn, from, "knows", people[3])
			require.NoError(t, err)
		}
		require.NoError(t, links.All.Truncate(txn))
		require.NoError(t, s.settings.mark(txn, settingNullLinks, people[0].TypeID))
	})

	reps := run(t, s, Plan{Links: true, BatchSize: 2})
	assert.Equal(t, int64(6), total(reps, PassLinks).Missing)

	read(t, s, func(txn *env.Txn) {
		assert.Equal(t, int64(6), links.All.Count(txn))
		with, err := s.EntitiesWithLink(txn, people[0].TypeID, "knows")
		require.NoError(t, err)
		assert.Equal(t, people[:3], with)
		assert.False(t, s.settings.isSet(txn, settingNullLinks, people[0].TypeID))
	})
}

func TestLinksConsistency_PhantomAllLinksRow(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 3)
	links := s.Tables(people[0].TypeID).Links

	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		linkID, ok := s.LinkID(txn, "friendOf")
		require.True(t, ok)
		putRaw(t, txn, links.All, codec.IDBytes(linkID), codec.LocalIDBytes(people[2].LocalID))
	})

	// The settings say the all index is complete; the pass still checks it.
	reps := run(t, s, FullPlan())
	assert.GreaterOrEqual(t, total(reps, PassLinks).Phantom, int64(1))

	read(t, s, func(txn *env.Txn) {
		assert.Equal(t, int64(1), links.All.Count(txn))
		with, err := s.EntitiesWithLink(txn, people[0].TypeID, "friendOf")
		require.NoError(t, err)
		assert.Equal(t, people[:1], with)
	})
	for _, rep := range run(t, s, FullPlan()) {
		assert.Zero(t, rep.Changes(), "%s %s", rep.Pass, rep.TypeName)
	}
}

func TestBlobsConsistency(t *testing.T) {
	s := newTestStore(t)
	docs := newEntities(t, s, "Doc", 3)
	typeID := docs[0].TypeID
	blobs := s.Tables(typeID).Blobs
	ctx := context.Background()

	write(t, s, func(txn *env.Txn) {
		require.NoError(t, s.SetBlobString(ctx, txn, docs[0], "title", "first"))
		require.NoError(t, s.SetBlobString(ctx, txn, docs[1], "title", "second"))
		require.NoError(t, blobs.All.Truncate(txn))
		blobID, ok := s.blobNames.lookup(txn, "title")
		require.True(t, ok)
		putRaw(t, txn, blobs.All, codec.IDBytes(blobID), codec.LocalIDBytes(docs[2].LocalID))
		require.True(t, s.settings.isSet(txn, settingNullBlobs, typeID))
	})

	rep := total(run(t, s, FullPlan()), PassBlobs)
	assert.Equal(t, int64(2), rep.Missing)
	assert.Equal(t, int64(1), rep.Phantom)

	read(t, s, func(txn *env.Txn) {
		assert.Equal(t, int64(2), blobs.All.Count(txn))
		with, err := s.EntitiesWithBlob(txn, typeID, "title")
		require.NoError(t, err)
		assert.Equal(t, docs[:2], with)
	})
	assert.Zero(t, total(run(t, s, FullPlan()), PassBlobs).Changes())
}

func TestPropertiesConsistency(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 4)
	typeID := people[0].TypeID
	props := s.Tables(typeID).Properties

	write(t, s, func(txn *env.Txn) {
		for i, name := range []string{"ada", "bob", "cyd", "dan"} {
			_, err := s.SetProperty(txn, people[i], "name", name)
			require.NoError(t, err)
		}
		nameID, _ := s.PropertyID(txn, "name")
		vi := props.ValueIndex(nameID)

		// ada lost her value index row.
		ada, err := codec.Of("ada")
		require.NoError(t, err)
		sk, err := codec.SecondaryKeys(ada)
		require.NoError(t, err)
		deleteRaw(t, txn, vi, sk[0], codec.LocalIDBytes(0))

		// bob has a stale row for a value he never had.
		ghost, err := codec.Of("ghost")
		require.NoError(t, err)
		sk, err = codec.SecondaryKeys(ghost)
		require.NoError(t, err)
		putRaw(t, txn, vi, sk[0], codec.LocalIDBytes(1))

		// a row that does not decode.
		putRaw(t, txn, vi, []byte{0xee}, codec.LocalIDBytes(1))

		// cyd lost his existence row.
		_, err = s.Tables(typeID).Entities.Remove(txn, 2)
		require.NoError(t, err)

		// dan lost his all-props row.
		deleteRaw(t, txn, props.All, codec.IDBytes(nameID), codec.LocalIDBytes(3))
	})

	rep := total(run(t, s, Plan{Properties: true}), PassProperties)
	assert.Equal(t, int64(1), rep.DeletedEntities)
	assert.Equal(t, int64(2), rep.Missing)
	assert.Equal(t, int64(2), rep.Phantom)

	read(t, s, func(txn *env.Txn) {
		found, err := s.FindByProperty(txn, typeID, "name", "ada")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[0]}, found)
		found, err = s.FindByProperty(txn, typeID, "name", "ghost")
		require.NoError(t, err)
		assert.Empty(t, found)
		found, err = s.FindByProperty(txn, typeID, "name", "cyd")
		require.NoError(t, err)
		assert.Empty(t, found)
		with, err := s.EntitiesWithProperty(txn, typeID, "name")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[0], people[1], people[3]}, with)
		assert.Equal(t, int64(3), props.Primary.Count(txn))
	})

	again := total(run(t, s, Plan{Properties: true}), PassProperties)
	assert.Zero(t, again.Changes())
}

func TestPropertiesConsistency_SetValues(t *testing.T) {
	s := newTestStore(t)
	id := newEntities(t, s, "Doc", 1)[0]
	props := s.Tables(id.TypeID).Properties

	write(t, s, func(txn *env.Txn) {
		_, err := s.SetProperty(txn, id, "tags", []string{"a", "b", "c"})
		require.NoError(t, err)
		tagsID, _ := s.PropertyID(txn, "tags")
		require.NoError(t, props.ValueIndex(tagsID).Truncate(txn))
	})

	rep := total(run(t, s, Plan{Properties: true}), PassProperties)
	assert.Equal(t, int64(3), rep.Missing)
	read(t, s, func(txn *env.Txn) {
		found, err := s.FindByProperty(txn, id.TypeID, "tags", "b")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{id}, found)
	})
}

func TestFixNegativeFloats(t *testing.T) {
	s := newTestStore(t)
	sensors := newEntities(t, s, "Sensor", 2)
	typeID := sensors[0].TypeID
	props := s.Tables(typeID).Properties

	neg, err := codec.Of(-1.5)
	require.NoError(t, err)
	pos, err := codec.Of(2.5)
	require.NoError(t, err)

	write(t, s, func(txn *env.Txn) {
		tempID, _, err := s.props.getOrCreate(txn, "temp")
		require.NoError(t, err)
		for i, v := range []codec.Value{neg, pos} {
			key := codec.PropertyKey{LocalID: sensors[i].LocalID, PropertyID: tempID}
			putRaw(t, txn, props.Primary, key.Bytes(), codec.AppendLegacyValue(nil, v))
			keys, err := codec.LegacySecondaryKeys(v)
			require.NoError(t, err)
			require.NoError(t, props.PutSecondary(txn, key, keys...))
			putRaw(t, txn, props.All, codec.IDBytes(tempID), codec.LocalIDBytes(key.LocalID))
		}
		require.NoError(t, s.settings.unmark(txn, settingFixFloats, typeID))
	})

	read(t, s, func(txn *env.Txn) {
		found, err := s.FindByProperty(txn, typeID, "temp", -1.5)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	rep := total(run(t, s, Plan{FixFloats: true}), PassFloats)
	assert.Equal(t, int64(1), rep.Rewritten)

	read(t, s, func(txn *env.Txn) {
		found, err := s.FindByProperty(txn, typeID, "temp", -1.5)
		require.NoError(t, err)
		assert.Equal(t, []EntityID{sensors[0]}, found)
		found, err = s.FindByProperty(txn, typeID, "temp", 2.5)
		require.NoError(t, err)
		assert.Equal(t, []EntityID{sensors[1]}, found)
		v, ok, err := s.Property(txn, sensors[0], "temp")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, -1.5, v.Interface())
		assert.True(t, s.settings.isSet(txn, settingFixFloats, typeID))
	})

	again := total(run(t, s, Plan{FixFloats: true}), PassFloats)
	assert.Zero(t, again.Rewritten)
	assert.Zero(t, again.Scanned)

	// The properties pass agrees with the rewritten rows.
	assert.Zero(t, total(run(t, s, Plan{Properties: true}), PassProperties).Changes())
}

func TestFixNegativeFloats_ValueIndexOrder(t *testing.T) {
	s := newTestStore(t)
	sensors := newEntities(t, s, "Sensor", 4)
	typeID := sensors[0].TypeID
	props := s.Tables(typeID).Properties
	var tempID int32

	write(t, s, func(txn *env.Txn) {
		var err error
		tempID, _, err = s.props.getOrCreate(txn, "temp")
		require.NoError(t, err)
		for i, f := range []float64{-3.0, -1.5, 0.0, 2.5} {
			v, err := codec.Of(f)
			require.NoError(t, err)
			key := codec.PropertyKey{LocalID: sensors[i].LocalID, PropertyID: tempID}
			putRaw(t, txn, props.Primary, key.Bytes(), codec.AppendLegacyValue(nil, v))
			keys, err := codec.LegacySecondaryKeys(v)
			require.NoError(t, err)
			require.NoError(t, props.PutSecondary(txn, key, keys...))
			putRaw(t, txn, props.All, codec.IDBytes(tempID), codec.LocalIDBytes(key.LocalID))
		}
		require.NoError(t, s.settings.unmark(txn, settingFixFloats, typeID))
	})

	scan := func() (ids []int64, keys [][]byte) {
		read(t, s, func(txn *env.Txn) {
			require.NoError(t, props.ValueIndex(tempID).Scan(txn, func(k, v []byte) (bool, error) {
				id, err := codec.LocalID(v)
				require.NoError(t, err)
				ids = append(ids, id)
				keys = append(keys, clone(k))
				return true, nil
			}))
		})
		return ids, keys
	}
	local := func(i ...int) []int64 {
		out := make([]int64, len(i))
		for j, n := range i {
			out[j] = sensors[n].LocalID
		}
		return out
	}

	// The legacy codec sorts -1.5 before -3.0.
	before, _ := scan()
	assert.Equal(t, local(1, 0, 2, 3), before)

	rep := total(run(t, s, Plan{FixFloats: true}), PassFloats)
	assert.Equal(t, int64(2), rep.Rewritten)

	after, keys := scan()
	assert.Equal(t, local(0, 1, 2, 3), after)
	var got []float64
	for _, k := range keys {
		v, err := codec.DecodeSecondaryKey(k)
		require.NoError(t, err)
		got = append(got, v.Interface().(float64))
	}
	assert.Equal(t, []float64{-3.0, -1.5, 0.0, 2.5}, got)
}

func TestNullIndices(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 2)
	typeID := people[0].TypeID
	set := s.Tables(typeID)

	write(t, s, func(txn *env.Txn) {
		_, err := s.SetProperty(txn, people[0], "name", "ada")
		require.NoError(t, err)
		_, err = s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		require.NoError(t, s.SetBlobString(context.Background(), txn, people[1], "bio", "short"))

		require.NoError(t, set.Properties.All.Truncate(txn))
		require.NoError(t, set.Links.All.Truncate(txn))
		require.NoError(t, set.Blobs.All.Truncate(txn))
		putRaw(t, txn, set.Properties.All, codec.IDBytes(40), codec.LocalIDBytes(1))
		for _, key := range []string{settingNullProps, settingNullLinks, settingNullBlobs} {
			require.NoError(t, s.settings.unmark(txn, key, typeID))
		}
	})

	rep := total(run(t, s, Plan{NullIndices: true}), PassNullIndices)
	assert.Equal(t, int64(3), rep.Missing)
	assert.Equal(t, int64(1), rep.Phantom)

	read(t, s, func(txn *env.Txn) {
		with, err := s.EntitiesWithProperty(txn, typeID, "name")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[0]}, with)
		with, err = s.EntitiesWithBlob(txn, typeID, "bio")
		require.NoError(t, err)
		assert.Equal(t, []EntityID{people[1]}, with)
		assert.Equal(t, int64(1), set.Properties.All.Count(txn))
		for _, key := range []string{settingNullProps, settingNullLinks, settingNullBlobs} {
			assert.True(t, s.settings.isSet(txn, key, typeID))
		}
	})

	again := total(run(t, s, Plan{NullIndices: true}), PassNullIndices)
	assert.Zero(t, again.Scanned)
}

func TestStructure(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 2)
	typeID := people[0].TypeID
	links := s.Tables(typeID).Links
	history := tables.EntitiesName(typeID) + tables.HistorySuffix

	write(t, s, func(txn *env.Txn) {
		_, err := s.Environment().OpenStore(txn, history, env.StoreConfig{})
		require.NoError(t, err)
		_, err = s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		require.NoError(t, links.Second.Truncate(txn))
	})

	reps := run(t, s, Plan{Structure: true})
	require.NotEmpty(t, reps)
	assert.Equal(t, int32(-1), reps[0].TypeID)
	assert.Equal(t, int64(1), reps[0].Phantom)
	assert.Equal(t, int64(2), total(reps, PassStructure).Phantom)

	read(t, s, func(txn *env.Txn) {
		assert.False(t, s.Environment().StoreExists(txn, history))
		assert.Zero(t, links.First.Count(txn))
		assert.Zero(t, links.All.Count(txn))
		assert.False(t, s.settings.isSet(txn, settingNullLinks, typeID))
	})
	assert.Zero(t, total(run(t, s, Plan{Structure: true}), PassStructure).Changes())
}

func TestRun_FullPlanIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	people := newEntities(t, s, "Person", 6)
	cars := newEntities(t, s, "Car", 2)

	write(t, s, func(txn *env.Txn) {
		for i, p := range people {
			_, err := s.SetProperty(txn, p, "age", i*10)
			require.NoError(t, err)
			_, err = s.AddLink(txn, p, "drives", cars[i%2])
			require.NoError(t, err)
		}
		_, err := s.SetProperty(txn, cars[0], "score", -3.25)
		require.NoError(t, err)
		_, err = s.DeleteEntity(txn, cars[1])
		require.NoError(t, err)
		_, err = s.Tables(people[0].TypeID).Entities.Remove(txn, people[4].LocalID)
		require.NoError(t, err)
	})

	first := run(t, s, FullPlan())
	assert.Equal(t, int64(4), total(first, PassLinks).Phantom)
	assert.Equal(t, int64(1), total(first, PassProperties).DeletedEntities)

	second := run(t, s, FullPlan())
	for _, rep := range second {
		assert.Zero(t, rep.Changes(), "%s %s", rep.Pass, rep.TypeName)
	}

	high := s.Environment().HighAddress()
	run(t, s, FullPlan())
	assert.Equal(t, high, s.Environment().HighAddress())
}

func TestRun_MemoryLimitIsFatal(t *testing.T) {
	s := newTestStore(t, WithResourceController(resource.NewController(resource.Config{MemoryLimitBytes: 1})))
	people := newEntities(t, s, "Person", 2)
	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
	})

	_, err := s.Refactorings().Run(context.Background(), linksPlan())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestRun_CanceledBetweenTypes(t *testing.T) {
	s := newTestStore(t)
	newEntities(t, s, "Person", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Refactorings().Run(ctx, FullPlan())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithMetricsRegisterer(reg))
	people := newEntities(t, s, "Person", 2)
	write(t, s, func(txn *env.Txn) {
		_, err := s.AddLink(txn, people[0], "friendOf", people[1])
		require.NoError(t, err)
		_, err = s.DeleteEntity(txn, people[1])
		require.NoError(t, err)
	})

	run(t, s, linksPlan())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().phantom.WithLabelValues(string(PassLinks))))
	assert.Positive(t, testutil.ToFloat64(s.Metrics().scanned.WithLabelValues(string(PassLinks))))

	// A second store on the same registry shares the collectors.
	assert.NotPanics(t, func() { NewMetrics(reg) })
}
