package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidArgument is returned when an argument is invalid (e.g. an empty name).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownType is returned when an entity type name is not registered.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrLegacyFloats is returned when a negative float or double is written
	// to a type whose stored floats still use the legacy encoding. The float
	// fix-up would rewrite such a value a second time.
	ErrLegacyFloats = errors.New("negative floats pending fix-up")
)

// FatalError marks a failure after which the store must not be used until
// it has been repaired: unsorted indices, failed flushes during bulk
// rebuilds and exhausted resources.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal store error in %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
