package blobvault

import (
	"errors"
	"math"

	"github.com/hupe1980/entitydb/internal/env"
)

const (
	// EmptyHandle marks a blob without content.
	EmptyHandle int64 = math.MaxInt64
	// InPlaceHandle marks a blob whose content is stored in its row.
	InPlaceHandle int64 = math.MaxInt64 - 1
)

// IsReserved reports whether h never resolves against a vault.
func IsReserved(h int64) bool { return h == EmptyHandle || h == InPlaceHandle }

var (
	// ErrNotFound is returned when a handle has no content.
	ErrNotFound = errors.New("blobvault: blob not found")
	// ErrReservedHandle is returned when a reserved handle is resolved.
	ErrReservedHandle = errors.New("blobvault: reserved handle")
	// ErrVersion is returned when the vault directory has an unknown layout.
	ErrVersion = errors.New("blobvault: unsupported vault version")
	// ErrClosed is returned by a closed vault.
	ErrClosed = errors.New("blobvault: vault closed")
)

// Sequence issues blob handles. Implementations persist their value in the
// transaction passed in.
type Sequence interface {
	// Increment advances the sequence and returns the new value.
	Increment(txn *env.Txn) (int64, error)
	// Load returns the last issued value, or -1 before the first one.
	Load(txn *env.Txn) int64
}

// Ref locates the content of a handle. It does not imply that content
// exists.
type Ref struct {
	Handle int64
	// Location is a file path for FileSystemVault and an object name for
	// ObjectVault.
	Location string
}
