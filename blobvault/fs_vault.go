package blobvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/fs"
)

// FileSystemVault keeps the content of every handle in its own file.
type FileSystemVault struct {
	dir    string
	fs     fs.FileSystem
	seq    Sequence
	opts   Options
	logger *slog.Logger
	closed atomic.Bool
}

var _ Vault = (*FileSystemVault)(nil)

// OpenFileSystemVault opens or creates a vault in dir.
func OpenFileSystemVault(dir string, seq Sequence, fsys fs.FileSystem, optFns ...func(*Options)) (*FileSystemVault, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	opts := applyOptions(optFns)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	v := &FileSystemVault{dir: dir, fs: fsys, seq: seq, opts: opts, logger: opts.Logger}
	if err := v.checkVersion(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *FileSystemVault) checkVersion() error {
	name := filepath.Join(v.dir, VersionFile)
	f, err := v.fs.OpenFile(name, os.O_RDONLY, 0)
	if errors.Is(err, iofs.ErrNotExist) {
		return v.writeFile(name, strings.NewReader(vaultVersion))
	}
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) != vaultVersion {
		return fmt.Errorf("%w: %q", ErrVersion, data)
	}
	return nil
}

func (v *FileSystemVault) writeFile(name string, r io.Reader) error {
	return fs.WriteFile(v.fs, name, func(f fs.File) error {
		_, err := io.Copy(f, r)
		return err
	})
}

// Dir returns the vault directory.
func (v *FileSystemVault) Dir() string { return v.dir }

func (v *FileSystemVault) path(handle int64) string {
	return filepath.Join(v.dir, filepath.FromSlash(RelativePath(handle)))
}

// NextHandle allocates the next handle from the sequence.
func (v *FileSystemVault) NextHandle(txn *env.Txn) (int64, error) {
	return v.seq.Increment(txn)
}

// Blob returns the file location of handle.
func (v *FileSystemVault) Blob(handle int64) Ref {
	return Ref{Handle: handle, Location: v.path(handle)}
}

// HandleByFile returns the handle stored in the file at path, or false if
// path is not a blob file of this vault.
func (v *FileSystemVault) HandleByFile(path string) (int64, bool) {
	rel, err := filepath.Rel(v.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return -1, false
	}
	return HandleByPath(filepath.ToSlash(rel))
}

// Put writes content to a temporary file and moves it into place.
func (v *FileSystemVault) Put(ctx context.Context, handle int64, r io.Reader) (int64, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}
	if err := checkHandle(handle); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dst := v.path(handle)
	if err := v.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	var size int64
	err := fs.WriteFile(v.fs, dst, func(f fs.File) error {
		var err error
		size, err = encodeContent(f, r, v.opts.Compression)
		if err != nil {
			return err
		}
		var hdr [contentHeaderSize]byte
		putContentSize(hdr[:], size)
		if _, err := f.Seek(contentSizeOffset, io.SeekStart); err != nil {
			return err
		}
		_, err = f.Write(hdr[contentSizeOffset:])
		return err
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// Open returns a reader over the content of handle.
func (v *FileSystemVault) Open(_ context.Context, handle int64) (io.ReadCloser, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	if err := checkHandle(handle); err != nil {
		return nil, err
	}
	f, err := v.fs.OpenFile(v.path(handle), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, handle)
		}
		return nil, err
	}
	return newContentReader(f)
}

// Size returns the uncompressed content size of handle.
func (v *FileSystemVault) Size(ctx context.Context, handle int64) (int64, error) {
	r, err := v.Open(ctx, handle)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.(*contentReader).Size(), nil
}

// Exists reports whether the file of handle exists.
func (v *FileSystemVault) Exists(_ context.Context, handle int64) (bool, error) {
	if err := checkHandle(handle); err != nil {
		return false, err
	}
	_, err := v.fs.Stat(v.path(handle))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete removes the file of handle.
func (v *FileSystemVault) Delete(_ context.Context, handle int64) (bool, error) {
	if err := checkHandle(handle); err != nil {
		return false, err
	}
	err := v.fs.Remove(v.path(handle))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Sweep removes the files of handles lastUsed+1 .. lastUsed+SweepRange.
func (v *FileSystemVault) Sweep(ctx context.Context, lastUsed int64) (int, error) {
	removed := 0
	for h := lastUsed + 1; h <= lastUsed+v.opts.SweepRange; h++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := v.Delete(ctx, h)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		v.logger.Info("swept leftover blobs", "dir", v.dir, "last_used", lastUsed, "removed", removed)
	}
	return removed, nil
}

// BackupStrategy lists every blob file and the version file. Names are
// prefixed with "blobs/".
func (v *FileSystemVault) BackupStrategy() backup.Strategy {
	return backup.FromLister(v.listFiles)
}

func (v *FileSystemVault) listFiles() ([]backup.FileDescriptor, error) {
	var out []backup.FileDescriptor
	err := filepath.WalkDir(v.dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if name != VersionFile && !strings.HasSuffix(name, blobExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(v.dir, p)
		if err != nil {
			return err
		}
		out = append(out, backup.FileDescriptor{
			Path: p,
			Name: "blobs/" + filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	return out, err
}

// Close marks the vault closed.
func (v *FileSystemVault) Close() error {
	v.closed.Store(true)
	return nil
}
