package env

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/internal/fs"
)

// Durability controls the durability guarantees of commits.
type Durability int

const (
	// DurabilitySync calls fsync after every commit. Slow but safe.
	DurabilitySync Durability = iota
	// DurabilityAsync relies on OS page cache. Fast but risky.
	DurabilityAsync
)

const (
	// DefaultFileSize is the size at which the active log file is rotated.
	DefaultFileSize = 8 << 20

	lockFileName = "env.lck"
)

// Options configures an Environment.
type Options struct {
	FS         fs.FileSystem
	FileSize   int64
	Durability Durability
	Logger     *slog.Logger
}

// DefaultOptions returns the default environment options.
func DefaultOptions() Options {
	return Options{
		FS:         fs.Default,
		FileSize:   DefaultFileSize,
		Durability: DurabilitySync,
	}
}

// Environment is a directory-backed ordered keyed store.
type Environment struct {
	dir    string
	opts   Options
	logger *slog.Logger

	log     *appendLog
	current atomic.Pointer[version]
	writeMu sync.Mutex
	lock    *fs.DirLock
	closed  atomic.Bool
}

// Open opens or creates the environment in dir and replays its log.
func Open(dir string, optFns ...func(*Options)) (*Environment, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.FileSize <= 0 {
		opts.FileSize = DefaultFileSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock, err := fs.Lock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}

	v := &version{stores: make(map[string]*storeState)}
	high, err := replay(opts.FS, dir, logger, v.applyOps)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("replay %s: %w", dir, err)
	}
	v.highAddress = high

	files, err := listLogFiles(opts.FS, dir)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	start := int64(0)
	if len(files) > 0 {
		start = files[len(files)-1].address
	}

	l := &appendLog{
		fs:       opts.FS,
		dir:      dir,
		fileSize: opts.FileSize,
		sync:     opts.Durability == DurabilitySync,
		logger:   logger,
		high:     high,
	}
	if err := l.openFile(start); err != nil {
		_ = lock.Release()
		return nil, err
	}

	e := &Environment{
		dir:    dir,
		opts:   opts,
		logger: logger,
		log:    l,
		lock:   lock,
	}
	e.current.Store(v)
	logger.Debug("environment opened", "dir", dir, "high_address", high, "stores", len(v.stores))
	return e, nil
}

// Dir returns the environment directory.
func (e *Environment) Dir() string { return e.dir }

// HighAddress returns the address just past the last committed record.
func (e *Environment) HighAddress() int64 { return e.current.Load().highAddress }

// BeginTransaction starts a write transaction. It blocks while another
// write transaction is active.
func (e *Environment) BeginTransaction() (*Txn, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.writeMu.Lock()
	if e.closed.Load() {
		e.writeMu.Unlock()
		return nil, ErrClosed
	}
	base := e.current.Load()
	return &Txn{
		env:    e,
		base:   base,
		stores: maps.Clone(base.stores),
		owned:  make(map[string]bool),
	}, nil
}

// BeginReadonlyTransaction starts a read-only transaction on the latest
// committed version.
func (e *Environment) BeginReadonlyTransaction() (*Txn, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	base := e.current.Load()
	return &Txn{env: e, readonly: true, base: base, stores: base.stores}, nil
}

// ExecuteInTransaction runs fn in a write transaction and commits it unless
// fn fails.
func (e *Environment) ExecuteInTransaction(fn func(txn *Txn) error) error {
	txn, err := e.BeginTransaction()
	if err != nil {
		return err
	}
	defer txn.abortIfActive()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// ExecuteInReadonlyTransaction runs fn in a read-only transaction.
func (e *Environment) ExecuteInReadonlyTransaction(fn func(txn *Txn) error) error {
	txn, err := e.BeginReadonlyTransaction()
	if err != nil {
		return err
	}
	defer txn.Abort()
	return fn(txn)
}

// Compute runs fn in a write transaction, commits it and returns its result.
func Compute[T any](e *Environment, fn func(txn *Txn) (T, error)) (T, error) {
	var zero T
	txn, err := e.BeginTransaction()
	if err != nil {
		return zero, err
	}
	defer txn.abortIfActive()
	out, err := fn(txn)
	if err != nil {
		return zero, err
	}
	if err := txn.Commit(); err != nil {
		return zero, err
	}
	return out, nil
}

// OpenStore opens the named store in txn, creating it when missing and
// cfg.UseExisting is false. Creation requires a write transaction.
func (e *Environment) OpenStore(txn *Txn, name string, cfg StoreConfig) (*Store, error) {
	if err := txn.check(); err != nil {
		return nil, err
	}
	if s, ok := txn.stores[name]; ok {
		if s.dups != cfg.Duplicates {
			return nil, fmt.Errorf("%w: %s", ErrStoreConfig, name)
		}
		return &Store{env: e, name: name, dups: s.dups}, nil
	}
	if cfg.UseExisting {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	if txn.readonly {
		return nil, fmt.Errorf("%w: cannot create store %s", ErrReadonlyTransaction, name)
	}
	txn.stores[name] = newStoreState(cfg.Duplicates)
	txn.owned[name] = true
	txn.ops = append(txn.ops, op{typ: opCreateStore, store: name, dups: cfg.Duplicates})
	return &Store{env: e, name: name, dups: cfg.Duplicates}, nil
}

// StoreExists reports whether the named store exists in txn.
func (e *Environment) StoreExists(txn *Txn, name string) bool {
	_, ok := txn.stores[name]
	return ok
}

// AllStoreNames returns the sorted names of all stores visible in txn.
func (e *Environment) AllStoreNames(txn *Txn) []string {
	return slices.Sorted(maps.Keys(txn.stores))
}

// RemoveStore deletes the named store and its content.
func (e *Environment) RemoveStore(txn *Txn, name string) error {
	if err := txn.checkWrite(); err != nil {
		return err
	}
	if _, ok := txn.stores[name]; !ok {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	delete(txn.stores, name)
	delete(txn.owned, name)
	txn.ops = append(txn.ops, op{typ: opRemoveStore, store: name})
	return nil
}

// TruncateStore removes all entries of the named store, keeping the store.
func (e *Environment) TruncateStore(txn *Txn, name string) error {
	if err := txn.checkWrite(); err != nil {
		return err
	}
	s, ok := txn.stores[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	txn.stores[name] = newStoreState(s.dups)
	txn.owned[name] = true
	txn.ops = append(txn.ops, op{typ: opTruncateStore, store: name})
	return nil
}

// Sync forces buffered log bytes to stable storage.
func (e *Environment) Sync() error { return e.log.syncNow() }

// BackupStrategy returns a strategy listing every log file at its current
// size. Callers bound the copied length with a snapshot's high address.
func (e *Environment) BackupStrategy() backup.Strategy {
	return &logBackup{
		Strategy: backup.FromLister(func() ([]backup.FileDescriptor, error) {
			return backup.ListDir(e.dir, "", func(name string) bool {
				_, ok := AddressOf(name)
				return ok
			})
		}),
		env: e,
	}
}

type logBackup struct {
	backup.Strategy
	env *Environment
}

func (b *logBackup) BeforeBackup() error { return b.env.Sync() }

// Close waits for the active writer, then closes the log and releases the
// directory lock.
func (e *Environment) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	err := e.log.close()
	if lerr := e.lock.Release(); err == nil {
		err = lerr
	}
	return err
}
