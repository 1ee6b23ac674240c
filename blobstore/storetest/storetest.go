// Package storetest checks blobstore.Store implementations.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/entitydb/blobstore"
)

// Run exercises store. The store must be empty below prefix "blobs/".
func Run(t *testing.T, store blobstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetStat", func(t *testing.T) {
		data := []byte("hello world, this is a test blob")
		require.NoError(t, store.Put(ctx, "blobs/00/01.blob", bytes.NewReader(data), int64(len(data))))

		info, err := store.Stat(ctx, "blobs/00/01.blob")
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
		assert.Equal(t, "blobs/00/01.blob", info.Name)

		got, err := blobstore.ReadAll(ctx, store, "blobs/00/01.blob")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("RangedGet", func(t *testing.T) {
		rc, err := store.Get(ctx, "blobs/00/01.blob", 6, 5)
		require.NoError(t, err)
		part, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "world", string(part))

		rc, err = store.Get(ctx, "blobs/00/01.blob", 28, -1)
		require.NoError(t, err)
		tail, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "blob", string(tail))
	})

	t.Run("UnknownSize", func(t *testing.T) {
		body := strings.Repeat("stream ", 1000)
		require.NoError(t, store.Put(ctx, "blobs/00/02.blob", strings.NewReader(body), -1))
		info, err := store.Stat(ctx, "blobs/00/02.blob")
		require.NoError(t, err)
		assert.Equal(t, int64(len(body)), info.Size)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, blobstore.PutBytes(ctx, store, "blobs/00/03.blob", []byte("first")))
		require.NoError(t, blobstore.PutBytes(ctx, store, "blobs/00/03.blob", []byte("second")))
		got, err := blobstore.ReadAll(ctx, store, "blobs/00/03.blob")
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Walk", func(t *testing.T) {
		require.NoError(t, blobstore.PutBytes(ctx, store, "other/version", []byte("1")))
		names, err := blobstore.Names(ctx, store, "blobs/")
		require.NoError(t, err)
		assert.Equal(t, []string{"blobs/00/01.blob", "blobs/00/02.blob", "blobs/00/03.blob"}, names)

		stop := errors.New("stop")
		visited := 0
		err = store.Walk(ctx, "blobs/", func(blobstore.Info) error {
			visited++
			return stop
		})
		require.ErrorIs(t, err, stop)
		assert.Equal(t, 1, visited)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "blobs/00/01.blob"))
		require.NoError(t, store.Delete(ctx, "blobs/00/01.blob"))

		_, err := store.Stat(ctx, "blobs/00/01.blob")
		require.ErrorIs(t, err, blobstore.ErrNotFound)
		_, err = store.Get(ctx, "blobs/00/01.blob", 0, -1)
		require.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}
