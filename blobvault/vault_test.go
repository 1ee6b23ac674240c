package blobvault

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/blobstore"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/fs"
)

type counterSequence struct{ last int64 }

func (s *counterSequence) Increment(*env.Txn) (int64, error) {
	s.last++
	return s.last, nil
}

func (s *counterSequence) Load(*env.Txn) int64 { return s.last }

func TestRelativePath(t *testing.T) {
	tests := []struct {
		handle int64
		want   string
	}{
		{0, "00.blob"},
		{1, "01.blob"},
		{0xff, "ff.blob"},
		{0x100, "01/00.blob"},
		{0x1234, "12/34.blob"},
		{0x0a0b0c, "0a/0b/0c.blob"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativePath(tt.handle))
			h, ok := HandleByPath(tt.want)
			require.True(t, ok)
			assert.Equal(t, tt.handle, h)
		})
	}
}

func TestHandleByPath_Rejects(t *testing.T) {
	for _, p := range []string{
		"version",
		"12.bin",
		"1.blob",
		"zz.blob",
		"00/12.blob",
		"123/45.blob",
	} {
		_, ok := HandleByPath(p)
		assert.False(t, ok, p)
	}
}

func payload(t *testing.T, n int, random bool) []byte {
	t.Helper()
	b := make([]byte, n)
	if random {
		_, err := rand.Read(b)
		require.NoError(t, err)
		return b
	}
	for i := range b {
		b[i] = byte(i % 7)
	}
	return b
}

func vaults(t *testing.T, c Compression) map[string]Vault {
	t.Helper()
	fsv, err := OpenFileSystemVault(t.TempDir(), &counterSequence{}, nil, func(o *Options) {
		o.Compression = c
	})
	require.NoError(t, err)
	obj := NewObjectVault(blobstore.NewMemoryStore(), &counterSequence{}, func(o *Options) {
		o.Compression = c
	})
	return map[string]Vault{"fs": fsv, "object": obj}
}

func TestVault_PutOpen(t *testing.T) {
	ctx := context.Background()
	sizes := []int{0, 1, 1000, blockSize, blockSize*2 + 17}
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		for name, v := range vaults(t, c) {
			t.Run(name+"/"+c.String(), func(t *testing.T) {
				for i, n := range sizes {
					for _, random := range []bool{false, true} {
						data := payload(t, n, random)
						h := int64(i)
						size, err := v.Put(ctx, h, bytes.NewReader(data))
						require.NoError(t, err)
						assert.Equal(t, int64(n), size)

						got, err := v.Size(ctx, h)
						require.NoError(t, err)
						assert.Equal(t, int64(n), got)

						rc, err := v.Open(ctx, h)
						require.NoError(t, err)
						read, err := io.ReadAll(rc)
						require.NoError(t, err)
						require.NoError(t, rc.Close())
						assert.True(t, bytes.Equal(data, read), "size %d", n)
					}
				}
			})
		}
	}
}

func TestVault_DeleteAndExists(t *testing.T) {
	ctx := context.Background()
	for name, v := range vaults(t, CompressionNone) {
		t.Run(name, func(t *testing.T) {
			ok, err := v.Exists(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = v.Open(ctx, 7)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = v.Put(ctx, 7, bytes.NewReader([]byte("x")))
			require.NoError(t, err)
			ok, err = v.Exists(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)

			deleted, err := v.Delete(ctx, 7)
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = v.Delete(ctx, 7)
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestVault_ReservedHandles(t *testing.T) {
	ctx := context.Background()
	for name, v := range vaults(t, CompressionNone) {
		t.Run(name, func(t *testing.T) {
			for _, h := range []int64{EmptyHandle, InPlaceHandle, -1} {
				_, err := v.Put(ctx, h, bytes.NewReader(nil))
				assert.ErrorIs(t, err, ErrReservedHandle)
				_, err = v.Open(ctx, h)
				assert.ErrorIs(t, err, ErrReservedHandle)
			}
		})
	}
}

func TestVault_Sweep(t *testing.T) {
	ctx := context.Background()
	for name, v := range vaults(t, CompressionNone) {
		t.Run(name, func(t *testing.T) {
			for _, h := range []int64{1, 2, 3, 4, 5} {
				_, err := v.Put(ctx, h, bytes.NewReader([]byte("blob")))
				require.NoError(t, err)
			}
			removed, err := v.Sweep(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			for h, want := range map[int64]bool{1: true, 2: true, 3: true, 4: false, 5: false} {
				ok, err := v.Exists(ctx, h)
				require.NoError(t, err)
				assert.Equal(t, want, ok, "handle %d", h)
			}
		})
	}
}

func TestVault_SweepRange(t *testing.T) {
	ctx := context.Background()
	v, err := OpenFileSystemVault(t.TempDir(), &counterSequence{}, nil, func(o *Options) {
		o.SweepRange = 2
	})
	require.NoError(t, err)
	for _, h := range []int64{1, 2, 3} {
		_, err := v.Put(ctx, h, bytes.NewReader([]byte("blob")))
		require.NoError(t, err)
	}
	removed, err := v.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	ok, err := v.Exists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVault_NextHandle(t *testing.T) {
	seq := &counterSequence{}
	v := NewObjectVault(blobstore.NewMemoryStore(), seq)
	h, err := v.NextHandle(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)
	assert.Equal(t, Ref{Handle: 1, Location: "blobs/01.blob"}, v.Blob(1))
}

func TestFileSystemVault_Version(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFileSystemVault(dir, &counterSequence{}, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, VersionFile))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, VersionFile), []byte("9"), 0o644))
	_, err = OpenFileSystemVault(dir, &counterSequence{}, nil)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestFileSystemVault_HandleByFile(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenFileSystemVault(dir, &counterSequence{}, nil)
	require.NoError(t, err)

	h, ok := v.HandleByFile(v.Blob(0x1234).Location)
	require.True(t, ok)
	assert.Equal(t, int64(0x1234), h)

	_, ok = v.HandleByFile(filepath.Join(dir, VersionFile))
	assert.False(t, ok)
	_, ok = v.HandleByFile(filepath.Join(t.TempDir(), "01.blob"))
	assert.False(t, ok)
}

func TestFileSystemVault_BackupStrategy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v, err := OpenFileSystemVault(dir, &counterSequence{}, nil)
	require.NoError(t, err)
	for _, h := range []int64{1, 0x1234} {
		_, err := v.Put(ctx, h, bytes.NewReader([]byte("content")))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	files, err := v.BackupStrategy().ListFiles()
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
		assert.Equal(t, f.Size, v.BackupStrategy().AcceptFile(f))
	}
	assert.ElementsMatch(t, []string{"blobs/01.blob", "blobs/12/34.blob", "blobs/version"}, names)

	assert.Equal(t, backup.Empty, NewObjectVault(blobstore.NewMemoryStore(), nil).BackupStrategy())
}

func TestFileSystemVault_FailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	faulty := fs.NewFaultyFS(nil)
	v, err := OpenFileSystemVault(t.TempDir(), &counterSequence{}, faulty)
	require.NoError(t, err)

	faulty.AddRule(".blob", fs.Fault{FailAfterBytes: 4})
	_, err = v.Put(ctx, 1, bytes.NewReader([]byte("more than four bytes")))
	require.ErrorIs(t, err, fs.ErrInjected)

	ok, err := v.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(v.Blob(1).Location + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestClosedVault(t *testing.T) {
	ctx := context.Background()
	for name, v := range vaults(t, CompressionNone) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, v.Close())
			_, err := v.Put(ctx, 1, bytes.NewReader(nil))
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestCorruptContent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	v := NewObjectVault(store, nil)
	require.NoError(t, blobstore.PutBytes(ctx, store, objectName(3), []byte{9, 0, 0}))
	_, err := v.Open(ctx, 3)
	assert.ErrorIs(t, err, ErrCorruptContent)
}
