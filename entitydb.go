package entitydb

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/engine"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/resource"
)

type (
	// Txn is a snapshot isolated transaction over the database.
	Txn = env.Txn
	// Store is the entity store of a database.
	Store = engine.Store
	// EntityID identifies an entity.
	EntityID = engine.EntityID
	// Plan selects the refactorings of a repair run.
	Plan = engine.Plan
	// Pass names one refactoring.
	Pass = engine.Pass
	// Report describes the work of one pass for one entity type.
	Report = engine.Report
	// BackupStats summarizes a backup or restore.
	BackupStats = backup.Stats
)

// DefaultPlan runs structural maintenance, the null-index backfill and the
// negative float fix-up.
func DefaultPlan() Plan { return engine.DefaultPlan() }

// FullPlan runs every refactoring including the link, property and blob
// consistency passes.
func FullPlan() Plan { return engine.FullPlan() }

// TypeInfo describes one entity type.
type TypeInfo struct {
	ID       int32
	Name     string
	Entities int
}

// Info is a summary of a database.
type Info struct {
	ID          string
	Dir         string
	HighAddress int64
	Types       []TypeInfo
	Settings    map[string]string
}

// DB is an open entity database.
type DB struct {
	dir     string
	env     *env.Environment
	store   *engine.Store
	opts    options
	logger  *Logger
	metrics MetricsCollector

	closeOnce sync.Once
	closed    atomic.Bool
}

// Open opens or creates the database in dir. Unless disabled with
// WithRepairOnOpen, the refactorings of DefaultPlan run before Open returns.
func Open(ctx context.Context, dir string, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)
	logger := opts.logger

	e, err := env.Open(dir, func(o *env.Options) {
		o.FS = opts.fs
		o.FileSize = opts.fileSize
		o.Durability = opts.durability
		o.Logger = logger.Logger
	})
	if err != nil {
		return nil, translateError(dir, err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Logger),
		engine.WithFileSystem(opts.fs),
		engine.WithResourceController(resource.NewController(opts.resources)),
		engine.WithMetricsRegisterer(opts.registerer),
	}
	if opts.inPlaceLimit >= 0 {
		engineOpts = append(engineOpts, engine.WithInPlaceBlobLimit(opts.inPlaceLimit))
	}
	vaultOpts := func(o *blobvault.Options) {
		o.Compression = opts.compression
		o.SweepRange = opts.sweepRange
		o.Logger = logger.Logger
	}
	if opts.objectStore != nil {
		store := opts.objectStore
		engineOpts = append(engineOpts, engine.WithVault(func(seq blobvault.Sequence) (blobvault.Vault, error) {
			return blobvault.NewObjectVault(store, seq, vaultOpts), nil
		}))
	} else {
		engineOpts = append(engineOpts, engine.WithVaultOptions(vaultOpts))
	}

	s, err := engine.Open(ctx, e, engineOpts...)
	if err != nil {
		_ = e.Close()
		return nil, translateError(dir, err)
	}

	db := &DB{
		dir:     dir,
		env:     e,
		store:   s,
		opts:    opts,
		logger:  logger.WithStore(s.ID()),
		metrics: opts.metricsCollector,
	}
	if opts.repairOnOpen {
		if _, err := db.Repair(ctx, opts.openPlan); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Store returns the entity store for reads and writes.
func (db *DB) Store() *Store { return db.store }

// Dir returns the database directory.
func (db *DB) Dir() string { return db.dir }

// Update runs fn in a read-write transaction and commits it when fn
// returns nil.
func (db *DB) Update(fn func(txn *Txn) error) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.dir, db.env.ExecuteInTransaction(fn))
}

// View runs fn in a read-only transaction.
func (db *DB) View(fn func(txn *Txn) error) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.dir, db.env.ExecuteInReadonlyTransaction(fn))
}

// Repair runs the refactorings selected by plan and returns one report per
// pass and entity type.
func (db *DB) Repair(ctx context.Context, plan Plan) ([]Report, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	reports, err := db.store.Refactorings().Run(ctx, plan)
	err = translateError(db.dir, err)

	var changes int64
	for _, r := range reports {
		changes += r.Changes()
	}
	db.metrics.RecordRepair(changes, time.Since(start), err)
	db.logger.LogRepair(ctx, reports, err)
	return reports, err
}

// Backup writes a zstd compressed tar archive of the database to w. Writers
// are not blocked; the archive reflects a snapshot taken when Backup starts.
func (db *DB) Backup(ctx context.Context, w io.Writer) (BackupStats, error) {
	if db.closed.Load() {
		return BackupStats{}, ErrClosed
	}
	start := time.Now()
	stats, err := db.store.Backup(ctx, w)
	err = translateError(db.dir, err)
	db.metrics.RecordBackup(stats.Bytes, time.Since(start), err)
	db.logger.LogBackup(ctx, stats, err)
	return stats, err
}

// BackupToDir copies the files of a snapshot into dir using up to
// parallelism workers. The copy opens as a database.
func (db *DB) BackupToDir(ctx context.Context, dir string, parallelism int) (BackupStats, error) {
	if db.closed.Load() {
		return BackupStats{}, ErrClosed
	}
	start := time.Now()
	stats, err := db.store.BackupToDir(ctx, dir, parallelism)
	err = translateError(db.dir, err)
	db.metrics.RecordBackup(stats.Bytes, time.Since(start), err)
	db.logger.LogBackup(ctx, stats, err)
	return stats, err
}

// BackupStrategy returns the backup strategy of a snapshot taken now, for
// callers that copy the files themselves. The caller drives the strategy
// through its lifecycle; AfterBackup releases the snapshot.
func (db *DB) BackupStrategy() (backup.Strategy, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	s, err := db.store.NewBackupStrategy()
	return s, translateError(db.dir, err)
}

// Info summarizes the database.
func (db *DB) Info() (Info, error) {
	if db.closed.Load() {
		return Info{}, ErrClosed
	}
	info := Info{
		ID:       db.store.ID(),
		Dir:      db.dir,
		Settings: make(map[string]string),
	}
	err := db.env.ExecuteInReadonlyTransaction(func(txn *Txn) error {
		info.HighAddress = txn.HighAddress()
		types, err := db.store.EntityTypes(txn)
		if err != nil {
			return err
		}
		for _, et := range types {
			ids, err := db.store.Entities(txn, et.ID)
			if err != nil {
				return err
			}
			info.Types = append(info.Types, TypeInfo{ID: et.ID, Name: et.Name, Entities: len(ids)})
		}
		return db.store.Settings().All(txn, func(k, v string) bool {
			info.Settings[k] = v
			return true
		})
	})
	return info, translateError(db.dir, err)
}

// Close closes the store and the environment. Close is idempotent.
func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		db.closed.Store(true)
		if serr := db.store.Close(); serr != nil {
			err = serr
		}
		if eerr := db.env.Close(); err == nil {
			err = eerr
		}
		db.logger.Debug("database closed", "dir", db.dir)
	})
	return err
}

// Restore unpacks an archive written by Backup into dir. dir must not hold
// an open database.
func Restore(ctx context.Context, r io.Reader, dir string, optFns ...Option) (BackupStats, error) {
	opts := applyOptions(optFns)
	start := time.Now()
	stats, err := backup.Restore(ctx, r, dir)
	opts.metricsCollector.RecordRestore(stats.Files, time.Since(start), err)
	if err != nil {
		opts.logger.ErrorContext(ctx, "restore failed", "dir", dir, "error", err)
		return stats, err
	}
	opts.logger.InfoContext(ctx, "restore completed", "dir", dir, "files", stats.Files, "bytes", stats.Bytes)
	return stats, nil
}
