package env

import "errors"

var (
	// ErrReadonlyTransaction is returned when a write is attempted in a
	// read-only transaction, including lazily creating a missing store.
	ErrReadonlyTransaction = errors.New("env: read-only transaction")

	// ErrFinished is returned when a finished transaction is used.
	ErrFinished = errors.New("env: transaction already finished")

	// ErrStoreNotFound is returned when opening a missing store with UseExisting.
	ErrStoreNotFound = errors.New("env: store not found")

	// ErrStoreConfig is returned when a store is reopened with a different duplicates setting.
	ErrStoreConfig = errors.New("env: store config mismatch")

	// ErrUnsorted is returned by PutRight when the entry is not strictly
	// greater than the last entry of the store.
	ErrUnsorted = errors.New("env: key is not greater than the last key")

	// ErrCorrupt is returned when the log cannot be replayed.
	ErrCorrupt = errors.New("env: log corrupted")

	// ErrClosed is returned when the environment is closed.
	ErrClosed = errors.New("env: closed")
)
