package entitydb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/engine"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/fs"
)

var (
	// ErrClosed is returned when the database is used after Close.
	ErrClosed = errors.New("entitydb: closed")

	// ErrNotFound is returned when an entity type, entity or blob does not exist.
	ErrNotFound = errors.New("entitydb: not found")

	// ErrLocked is returned when another process holds the database directory.
	ErrLocked = errors.New("entitydb: database is locked")

	// ErrReadonly is returned when a write is attempted in a read-only transaction.
	ErrReadonly = errors.New("entitydb: read-only transaction")

	// ErrLegacyFloats is returned when a negative float or double is written
	// to an entity type whose negative-float fix-up has not run yet.
	ErrLegacyFloats = errors.New("entitydb: negative floats pending fix-up")

	// ErrFatal marks failures after which the database must be repaired
	// before it is used again.
	ErrFatal = errors.New("entitydb: fatal store error")
)

// CorruptionError indicates a log that cannot be replayed past a damaged
// record. Torn tails of the last log file are truncated on open and do not
// produce this error.
//
// The original underlying error can be accessed via errors.Unwrap.
type CorruptionError struct {
	Dir   string
	cause error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted log in %s: %v", e.Dir, e.cause)
}

func (e *CorruptionError) Unwrap() error { return e.cause }

func translateError(dir string, err error) error {
	if err == nil {
		return nil
	}

	var ce *CorruptionError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, env.ErrCorrupt) {
		return &CorruptionError{Dir: dir, cause: err}
	}

	if engine.IsFatal(err) {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}

	if errors.Is(err, engine.ErrClosed) || errors.Is(err, env.ErrClosed) || errors.Is(err, blobvault.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrUnknownType) ||
		errors.Is(err, env.ErrStoreNotFound) || errors.Is(err, blobvault.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, fs.ErrLocked) {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if errors.Is(err, env.ErrReadonlyTransaction) {
		return fmt.Errorf("%w: %w", ErrReadonly, err)
	}
	if errors.Is(err, engine.ErrLegacyFloats) {
		return fmt.Errorf("%w: %w", ErrLegacyFloats, err)
	}

	return err
}
