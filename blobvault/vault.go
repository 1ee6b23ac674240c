package blobvault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/internal/env"
)

const (
	// VersionFile is the name of the vault layout version file.
	VersionFile = "version"
	// DefaultSweepRange is the number of handles above the last used one
	// that are checked for leftover content on open.
	DefaultSweepRange int64 = 10_000

	vaultVersion = "1"
	blobExt      = ".blob"
)

// Vault stores blob content by handle.
type Vault interface {
	// NextHandle allocates the next unused handle in txn.
	NextHandle(txn *env.Txn) (int64, error)
	// Blob resolves a handle to the location of its content.
	Blob(handle int64) Ref
	// Put stores the content of r under handle and returns its size.
	Put(ctx context.Context, handle int64, r io.Reader) (int64, error)
	// Open returns a reader over the content of handle.
	Open(ctx context.Context, handle int64) (io.ReadCloser, error)
	// Size returns the content size of handle.
	Size(ctx context.Context, handle int64) (int64, error)
	// Exists reports whether handle has content.
	Exists(ctx context.Context, handle int64) (bool, error)
	// Delete removes the content of handle and reports whether there was any.
	Delete(ctx context.Context, handle int64) (bool, error)
	// Sweep removes content left by aborted allocations above lastUsed.
	Sweep(ctx context.Context, lastUsed int64) (int, error)
	// BackupStrategy returns the files of the vault for a file backup.
	BackupStrategy() backup.Strategy
	// Close releases the vault.
	Close() error
}

// Options configures a vault.
type Options struct {
	Compression Compression
	SweepRange  int64
	Logger      *slog.Logger
}

// DefaultOptions returns the default vault options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionNone,
		SweepRange:  DefaultSweepRange,
	}
}

func applyOptions(optFns []func(*Options)) Options {
	o := DefaultOptions()
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.SweepRange <= 0 {
		o.SweepRange = DefaultSweepRange
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// RelativePath returns the slash separated path of a handle inside a
// vault: one directory per leading byte of the handle and a file named
// after the last byte, all in hex.
func RelativePath(handle int64) string {
	var parts []string
	h := uint64(handle)
	for {
		parts = append(parts, fmt.Sprintf("%02x", byte(h)))
		h >>= 8
		if h == 0 {
			break
		}
	}
	var sb strings.Builder
	for i := len(parts) - 1; i > 0; i-- {
		sb.WriteString(parts[i])
		sb.WriteByte('/')
	}
	sb.WriteString(parts[0])
	sb.WriteString(blobExt)
	return sb.String()
}

// HandleByPath parses a path produced by RelativePath.
func HandleByPath(rel string) (int64, bool) {
	rel = strings.TrimPrefix(path.Clean(rel), "/")
	parts := strings.Split(rel, "/")
	last := len(parts) - 1
	name, ok := strings.CutSuffix(parts[last], blobExt)
	if !ok {
		return -1, false
	}
	parts[last] = name
	if len(parts) > 8 || (len(parts) > 1 && parts[0] == "00") {
		return -1, false
	}
	var h uint64
	for _, p := range parts {
		if len(p) != 2 {
			return -1, false
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return -1, false
		}
		h = h<<8 | b
	}
	if h > 1<<63-1 {
		return -1, false
	}
	return int64(h), true
}

func checkHandle(handle int64) error {
	if handle < 0 || IsReserved(handle) {
		return fmt.Errorf("%w: %d", ErrReservedHandle, handle)
	}
	return nil
}
