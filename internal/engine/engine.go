package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/fs"
	"github.com/hupe1980/entitydb/internal/resource"
	"github.com/hupe1980/entitydb/internal/tables"
)

const (
	// BlobHandlesSequence is the name of the sequence issuing blob handles.
	BlobHandlesSequence = "blob.handles"

	// DefaultInPlaceBlobLimit is the largest string blob kept in its row.
	DefaultInPlaceBlobLimit = 256

	blobsDir = "blobs"
)

// VaultFactory creates the blob vault of a store. seq issues its handles.
type VaultFactory func(seq blobvault.Sequence) (blobvault.Vault, error)

// Store is an entity store over one environment.
type Store struct {
	env      *env.Environment
	tables   *tables.Cache
	settings *Settings

	types     *registry
	props     *registry
	links     *registry
	blobNames *registry

	blobHandles *Sequence
	vault       blobvault.Vault

	vaultFactory       VaultFactory
	vaultOptions       []func(*blobvault.Options)
	inPlaceBlobLimit   int
	fs                 fs.FileSystem
	logger             *slog.Logger
	resourceController *resource.Controller
	metrics            *Metrics

	id     string
	closed atomic.Bool
}

// Option defines a configuration option for the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithResourceController sets the resource controller used by refactorings.
func WithResourceController(rc *resource.Controller) Option {
	return func(s *Store) {
		s.resourceController = rc
	}
}

// WithVault sets the factory of the blob vault. The default is a
// FileSystemVault in the "blobs" directory of the environment.
func WithVault(f VaultFactory) Option {
	return func(s *Store) {
		s.vaultFactory = f
	}
}

// WithVaultOptions configures the default vault.
func WithVaultOptions(optFns ...func(*blobvault.Options)) Option {
	return func(s *Store) {
		s.vaultOptions = append(s.vaultOptions, optFns...)
	}
}

// WithInPlaceBlobLimit sets the largest string blob stored in its row.
func WithInPlaceBlobLimit(n int) Option {
	return func(s *Store) {
		s.inPlaceBlobLimit = n
	}
}

// WithFileSystem sets the file system of the default vault.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(s *Store) {
		s.fs = fsys
	}
}

// WithMetricsRegisterer registers the refactoring metrics on r.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(s *Store) {
		s.metrics = NewMetrics(r)
	}
}

// Open opens the entity store over e. It creates the vault, records a store
// id on first use and sweeps vault content left by aborted transactions.
func Open(ctx context.Context, e *env.Environment, opts ...Option) (*Store, error) {
	s := &Store{
		env:              e,
		tables:           tables.NewCache(e),
		settings:         newSettings(e),
		types:            newRegistry(e, registryEntityTypes),
		props:            newRegistry(e, registryProperties),
		links:            newRegistry(e, registryLinks),
		blobNames:        newRegistry(e, registryBlobs),
		blobHandles:      newSequence(e, BlobHandlesSequence),
		inPlaceBlobLimit: DefaultInPlaceBlobLimit,
		fs:               fs.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.resourceController == nil {
		s.resourceController = resource.NewController(resource.Config{})
	}

	if s.vaultFactory == nil {
		dir := filepath.Join(e.Dir(), blobsDir)
		vopts := append([]func(*blobvault.Options){func(o *blobvault.Options) { o.Logger = s.logger }}, s.vaultOptions...)
		s.vaultFactory = func(seq blobvault.Sequence) (blobvault.Vault, error) {
			return blobvault.OpenFileSystemVault(dir, seq, s.fs, vopts...)
		}
	}
	v, err := s.vaultFactory(s.blobHandles)
	if err != nil {
		return nil, fmt.Errorf("open blob vault: %w", err)
	}
	s.vault = v

	if err := s.initID(); err != nil {
		_ = v.Close()
		return nil, err
	}
	if err := s.sweepVault(ctx); err != nil {
		_ = v.Close()
		return nil, err
	}
	s.logger.Debug("entity store opened", "id", s.id, "dir", e.Dir())
	return s, nil
}

func (s *Store) initID() error {
	err := s.env.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		s.id, _ = s.settings.Get(txn, settingStoreID)
		return nil
	})
	if err != nil || s.id != "" {
		return err
	}
	return s.env.ExecuteInTransaction(func(txn *env.Txn) error {
		s.id = uuid.NewString()
		return s.settings.Set(txn, settingStoreID, s.id)
	})
}

func (s *Store) sweepVault(ctx context.Context) error {
	txn, err := s.env.BeginReadonlyTransaction()
	if err != nil {
		return err
	}
	lastUsed := s.blobHandles.Load(txn)
	txn.Abort()
	if _, err := s.vault.Sweep(ctx, lastUsed); err != nil {
		return fmt.Errorf("sweep blob vault: %w", err)
	}
	return nil
}

// ID returns the store id recorded on creation.
func (s *Store) ID() string { return s.id }

// Environment returns the underlying environment.
func (s *Store) Environment() *env.Environment { return s.env }

// Vault returns the blob vault.
func (s *Store) Vault() blobvault.Vault { return s.vault }

// Settings returns the settings table.
func (s *Store) Settings() *Settings { return s.settings }

// Tables returns the table set of typeID.
func (s *Store) Tables(typeID int32) *tables.Set { return s.tables.Get(typeID) }

// BlobHandles returns the blob handle sequence.
func (s *Store) BlobHandles() *Sequence { return s.blobHandles }

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Metrics returns the refactoring metrics of the store.
func (s *Store) Metrics() *Metrics { return s.metrics }

// Close closes the vault. The environment is owned by the caller.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.vault.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}
