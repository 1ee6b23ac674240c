package blobvault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/blobstore"
	"github.com/hupe1980/entitydb/internal/env"
)

// ObjectPrefix is the object name prefix of vault content.
const ObjectPrefix = "blobs/"

// ObjectVault keeps blob content in a blobstore.Store. Its content is not
// part of file backups.
type ObjectVault struct {
	store  blobstore.Store
	seq    Sequence
	opts   Options
	logger *slog.Logger
	closed atomic.Bool
}

var _ Vault = (*ObjectVault)(nil)

// NewObjectVault returns a vault over store.
func NewObjectVault(store blobstore.Store, seq Sequence, optFns ...func(*Options)) *ObjectVault {
	opts := applyOptions(optFns)
	return &ObjectVault{store: store, seq: seq, opts: opts, logger: opts.Logger}
}

func objectName(handle int64) string {
	return ObjectPrefix + RelativePath(handle)
}

// HandleByName parses an object name produced by the vault.
func HandleByName(name string) (int64, bool) {
	rel, ok := strings.CutPrefix(name, ObjectPrefix)
	if !ok {
		return -1, false
	}
	return HandleByPath(rel)
}

func (v *ObjectVault) NextHandle(txn *env.Txn) (int64, error) {
	return v.seq.Increment(txn)
}

func (v *ObjectVault) Blob(handle int64) Ref {
	return Ref{Handle: handle, Location: objectName(handle)}
}

// Put encodes content in memory and uploads it as one object.
func (v *ObjectVault) Put(ctx context.Context, handle int64, r io.Reader) (int64, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}
	if err := checkHandle(handle); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	size, err := encodeContent(&buf, r, v.opts.Compression)
	if err != nil {
		return 0, err
	}
	data := buf.Bytes()
	putContentSize(data, size)
	if err := blobstore.PutBytes(ctx, v.store, objectName(handle), data); err != nil {
		return 0, err
	}
	return size, nil
}

func (v *ObjectVault) notFound(handle int64, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrNotFound, handle)
	}
	return err
}

func (v *ObjectVault) Open(ctx context.Context, handle int64) (io.ReadCloser, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	if err := checkHandle(handle); err != nil {
		return nil, err
	}
	rc, err := v.store.Get(ctx, objectName(handle), 0, -1)
	if err != nil {
		return nil, v.notFound(handle, err)
	}
	return newContentReader(rc)
}

// Size reads only the content header of handle.
func (v *ObjectVault) Size(ctx context.Context, handle int64) (int64, error) {
	if err := checkHandle(handle); err != nil {
		return 0, err
	}
	info, err := v.store.Stat(ctx, objectName(handle))
	if err != nil {
		return 0, v.notFound(handle, err)
	}
	if info.Size < contentHeaderSize {
		return 0, fmt.Errorf("%w: short header", ErrCorruptContent)
	}
	rc, err := v.store.Get(ctx, objectName(handle), 0, contentHeaderSize)
	if err != nil {
		return 0, v.notFound(handle, err)
	}
	cr, err := newContentReader(rc)
	if err != nil {
		return 0, err
	}
	defer cr.Close()
	return cr.Size(), nil
}

func (v *ObjectVault) Exists(ctx context.Context, handle int64) (bool, error) {
	if err := checkHandle(handle); err != nil {
		return false, err
	}
	if _, err := v.store.Stat(ctx, objectName(handle)); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (v *ObjectVault) Delete(ctx context.Context, handle int64) (bool, error) {
	ok, err := v.Exists(ctx, handle)
	if err != nil || !ok {
		return false, err
	}
	if err := v.store.Delete(ctx, objectName(handle)); err != nil {
		return false, err
	}
	return true, nil
}

// Sweep walks the vault objects once and removes those in the sweep range.
func (v *ObjectVault) Sweep(ctx context.Context, lastUsed int64) (int, error) {
	var doomed []string
	err := v.store.Walk(ctx, ObjectPrefix, func(info blobstore.Info) error {
		h, ok := HandleByName(info.Name)
		if ok && h > lastUsed && h <= lastUsed+v.opts.SweepRange {
			doomed = append(doomed, info.Name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range doomed {
		if err := v.store.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		v.logger.Info("swept leftover blobs", "last_used", lastUsed, "removed", removed)
	}
	return removed, nil
}

// BackupStrategy returns backup.Empty.
func (v *ObjectVault) BackupStrategy() backup.Strategy { return backup.Empty }

func (v *ObjectVault) Close() error {
	v.closed.Store(true)
	return nil
}
