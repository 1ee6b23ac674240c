package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/entitydb/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEnv(t *testing.T, dir string, optFns ...func(*Options)) *Environment {
	t.Helper()
	e, err := Open(dir, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func putAll(t *testing.T, e *Environment, name string, dups bool, kv ...string) {
	t.Helper()
	require.NoError(t, e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, name, StoreConfig{Duplicates: dups})
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(kv); i += 2 {
			if _, err := s.Put(txn, []byte(kv[i]), []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestEnvironment_ReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	require.NoError(t, err)

	putAll(t, e, "plain", false, "a", "1", "b", "2", "a", "3")
	putAll(t, e, "dups", true, "k", "x", "k", "y", "j", "z")
	require.NoError(t, e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "dups", StoreConfig{Duplicates: true})
		if err != nil {
			return err
		}
		_, err = s.DeleteExact(txn, []byte("k"), []byte("x"))
		return err
	}))
	high := e.HighAddress()
	require.NoError(t, e.Close())

	e = openTestEnv(t, dir)
	assert.Equal(t, high, e.HighAddress())
	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *Txn) error {
		plain, err := e.OpenStore(txn, "plain", StoreConfig{UseExisting: true})
		require.NoError(t, err)
		v, ok := plain.Get(txn, []byte("a"))
		assert.True(t, ok)
		assert.Equal(t, "3", string(v))
		assert.Equal(t, int64(2), plain.Count(txn))

		dups, err := e.OpenStore(txn, "dups", StoreConfig{Duplicates: true, UseExisting: true})
		require.NoError(t, err)
		assert.False(t, dups.Exists(txn, []byte("k"), []byte("x")))
		assert.True(t, dups.Exists(txn, []byte("k"), []byte("y")))
		assert.Equal(t, int64(2), dups.Count(txn))
		return nil
	}))
}

func TestEnvironment_TornTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir)
	require.NoError(t, err)
	putAll(t, e, "s", false, "a", "1")
	high := e.HighAddress()
	require.NoError(t, e.Close())

	f, err := os.OpenFile(filepath.Join(dir, LogFileName(0)), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{42, 0, 0, 0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e = openTestEnv(t, dir)
	assert.Equal(t, high, e.HighAddress())
	info, err := os.Stat(filepath.Join(dir, LogFileName(0)))
	require.NoError(t, err)
	assert.Equal(t, high, info.Size())
}

func TestEnvironment_Rotation(t *testing.T) {
	dir := t.TempDir()
	e := openTestEnv(t, dir, func(o *Options) { o.FileSize = 64 })
	for i := 0; i < 10; i++ {
		putAll(t, e, "s", false, "key", string(rune('a'+i))+"-some-longer-value")
	}
	files, err := listLogFiles(fs.Default, dir)
	require.NoError(t, err)
	require.Greater(t, len(files), 1)

	var sum int64
	for _, f := range files {
		assert.Equal(t, sum, f.address)
		sum += f.size
	}
	assert.Equal(t, e.HighAddress(), sum)
}

func TestEnvironment_GapIsCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LogFileName(100)), nil, 0o644))
	_, err := Open(dir)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestAddressOf(t *testing.T) {
	addr, ok := AddressOf(LogFileName(0x1234))
	require.True(t, ok)
	assert.Equal(t, int64(0x1234), addr)

	_, ok = AddressOf("version")
	assert.False(t, ok)
	_, ok = AddressOf("12.xd")
	assert.False(t, ok)
}

func TestTxn_SnapshotIsolation(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	putAll(t, e, "s", false, "a", "1")

	snap, err := e.BeginReadonlyTransaction()
	require.NoError(t, err)
	defer snap.Abort()
	snapHigh := snap.HighAddress()

	putAll(t, e, "s", false, "a", "2", "b", "3")

	s, err := e.OpenStore(snap, "s", StoreConfig{UseExisting: true})
	require.NoError(t, err)
	v, _ := s.Get(snap, []byte("a"))
	assert.Equal(t, "1", string(v))
	assert.False(t, s.Contains(snap, []byte("b")))
	assert.Equal(t, snapHigh, snap.HighAddress())
	assert.Greater(t, e.HighAddress(), snapHigh)
}

func TestTxn_FlushKeepsTransactionOpen(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	txn, err := e.BeginTransaction()
	require.NoError(t, err)
	s, err := e.OpenStore(txn, "s", StoreConfig{})
	require.NoError(t, err)
	_, err = s.Put(txn, []byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, txn.Flush())
	assert.False(t, txn.Dirty())

	ro, err := e.BeginReadonlyTransaction()
	require.NoError(t, err)
	assert.True(t, s.Contains(ro, []byte("a")))
	ro.Abort()

	_, err = s.Put(txn, []byte("b"), []byte("2"))
	require.NoError(t, err)
	txn.Abort()

	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *Txn) error {
		assert.True(t, s.Contains(txn, []byte("a")))
		assert.False(t, s.Contains(txn, []byte("b")))
		return nil
	}))
}

func TestTxn_FlushFailure(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(LogFileExt, fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	e := openTestEnv(t, t.TempDir(), func(o *Options) { o.FS = ffs })

	err := e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "s", StoreConfig{})
		if err != nil {
			return err
		}
		_, err = s.Put(txn, []byte("a"), []byte("1"))
		return err
	})
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, int64(0), e.HighAddress())
}

func TestOpenStore_ReadonlyCannotCreate(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	err := e.ExecuteInReadonlyTransaction(func(txn *Txn) error {
		_, err := e.OpenStore(txn, "lazy", StoreConfig{})
		return err
	})
	require.ErrorIs(t, err, ErrReadonlyTransaction)

	putAll(t, e, "dups", true, "a", "b")
	err = e.ExecuteInTransaction(func(txn *Txn) error {
		_, err := e.OpenStore(txn, "dups", StoreConfig{})
		return err
	})
	require.ErrorIs(t, err, ErrStoreConfig)
}

func TestStore_PutRightOrdering(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	err := e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "s", StoreConfig{Duplicates: true})
		require.NoError(t, err)
		require.NoError(t, s.PutRight(txn, []byte("a"), []byte("1")))
		require.NoError(t, s.PutRight(txn, []byte("a"), []byte("2")))
		require.NoError(t, s.PutRight(txn, []byte("b"), []byte("0")))
		return s.PutRight(txn, []byte("a"), []byte("3"))
	})
	require.ErrorIs(t, err, ErrUnsorted)

	err = e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "u", StoreConfig{})
		require.NoError(t, err)
		require.NoError(t, s.PutRight(txn, []byte("a"), []byte("1")))
		return s.PutRight(txn, []byte("a"), []byte("2"))
	})
	require.ErrorIs(t, err, ErrUnsorted)
}

func TestCursor_DuplicateContract(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	putAll(t, e, "d", true, "a", "1", "a", "2", "a", "3", "b", "1", "c", "9")

	require.NoError(t, e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "d", StoreConfig{Duplicates: true})
		require.NoError(t, err)
		c := s.OpenCursor(txn)
		defer c.Close()

		require.True(t, c.SearchKey([]byte("a")))
		var vals []string
		for ok := true; ok; ok = c.NextDup() {
			vals = append(vals, string(c.Value()))
		}
		assert.Equal(t, []string{"1", "2", "3"}, vals)

		require.True(t, c.NextNoDup())
		assert.Equal(t, "b", string(c.Key()))

		require.True(t, c.SearchBoth([]byte("a"), []byte("2")))
		deleted, err := c.DeleteCurrent()
		require.NoError(t, err)
		assert.True(t, deleted)
		require.True(t, c.Next())
		assert.Equal(t, "3", string(c.Value()))

		assert.False(t, c.SearchBoth([]byte("a"), []byte("2")))
		require.True(t, c.SearchKeyRange([]byte("bb")))
		assert.Equal(t, "c", string(c.Key()))
		assert.False(t, c.Next())
		assert.False(t, c.Next())
		return nil
	}))
}

func TestCursor_DeleteWhileScanning(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	putAll(t, e, "d", true, "a", "1", "b", "2", "c", "3", "d", "4")

	require.NoError(t, e.ExecuteInTransaction(func(txn *Txn) error {
		s, err := e.OpenStore(txn, "d", StoreConfig{Duplicates: true})
		require.NoError(t, err)
		c := s.OpenCursor(txn)
		defer c.Close()
		var seen []string
		for c.Next() {
			seen = append(seen, string(c.Key()))
			if string(c.Key()) != "c" {
				_, err := c.DeleteCurrent()
				require.NoError(t, err)
			}
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
		assert.Equal(t, int64(1), s.Count(txn))
		return nil
	}))
}

func TestEnvironment_StoreManagement(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	putAll(t, e, "x#history", false, "a", "1")
	putAll(t, e, "y", true, "a", "1")

	require.NoError(t, e.ExecuteInTransaction(func(txn *Txn) error {
		assert.Equal(t, []string{"x#history", "y"}, e.AllStoreNames(txn))
		require.NoError(t, e.RemoveStore(txn, "x#history"))
		require.NoError(t, e.TruncateStore(txn, "y"))
		assert.False(t, e.StoreExists(txn, "x#history"))
		return nil
	}))

	require.NoError(t, e.ExecuteInReadonlyTransaction(func(txn *Txn) error {
		assert.Equal(t, []string{"y"}, e.AllStoreNames(txn))
		s, err := e.OpenStore(txn, "y", StoreConfig{Duplicates: true, UseExisting: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), s.Count(txn))
		return nil
	}))
}

func TestCompute(t *testing.T) {
	e := openTestEnv(t, t.TempDir())
	n, err := Compute(e, func(txn *Txn) (int64, error) {
		s, err := e.OpenStore(txn, "s", StoreConfig{})
		if err != nil {
			return 0, err
		}
		if _, err := s.Put(txn, []byte("a"), []byte("1")); err != nil {
			return 0, err
		}
		return s.Count(txn), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBackupStrategy_ListsLogFiles(t *testing.T) {
	dir := t.TempDir()
	e := openTestEnv(t, dir, func(o *Options) { o.FileSize = 64; o.Durability = DurabilityAsync })
	for i := 0; i < 5; i++ {
		putAll(t, e, "s", false, "k", "value-value-value-value")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	s := e.BackupStrategy()
	require.NoError(t, s.BeforeBackup())
	files, err := s.ListFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var total int64
	for _, f := range files {
		_, ok := AddressOf(f.Name)
		assert.True(t, ok, f.Name)
		total += s.AcceptFile(f)
	}
	assert.Equal(t, e.HighAddress(), total)
	require.NoError(t, s.AfterBackup())
}

func TestTxn_AfterCommit(t *testing.T) {
	e := openTestEnv(t, t.TempDir())

	var ran []string
	txn, err := e.BeginTransaction()
	require.NoError(t, err)
	s, err := e.OpenStore(txn, "s", StoreConfig{})
	require.NoError(t, err)
	_, err = s.Put(txn, []byte("a"), []byte("1"))
	require.NoError(t, err)
	txn.AfterCommit(func() { ran = append(ran, "committed") })
	assert.Empty(t, ran)
	require.NoError(t, txn.Commit())
	assert.Equal(t, []string{"committed"}, ran)

	txn, err = e.BeginTransaction()
	require.NoError(t, err)
	txn.AfterCommit(func() { ran = append(ran, "aborted") })
	txn.Abort()
	assert.Equal(t, []string{"committed"}, ran)
}
