package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/entitydb/backup"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/resource"
)

// fileHandles is implemented by vaults whose backup lists blob files.
type fileHandles interface {
	HandleByFile(path string) (int64, bool)
}

// NewBackupStrategy returns a strategy over the log and the vault as of a
// snapshot taken now. Log files are copied up to the snapshot's high
// address; blob files of handles allocated after the snapshot are left out.
// The snapshot is released by AfterBackup.
func (s *Store) NewBackupStrategy() (backup.Strategy, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	txn, err := s.env.BeginReadonlyTransaction()
	if err != nil {
		return nil, err
	}
	high := txn.HighAddress()
	lastUsed := s.blobHandles.Load(txn)

	logs := backup.Decorate(s.env.BackupStrategy(), backup.Clamp(func(fd backup.FileDescriptor) int64 {
		start, ok := env.AddressOf(fd.Path)
		if !ok {
			return 0
		}
		return high - start
	}))

	blobs := s.vault.BackupStrategy()
	if fh, ok := s.vault.(fileHandles); ok {
		blobs = backup.Decorate(blobs, func(fd backup.FileDescriptor, accepted int64) int64 {
			h, ok := fh.HandleByFile(fd.Path)
			if ok && h > lastUsed {
				return backup.Exclude
			}
			return accepted
		})
	}

	s.logger.Debug("backup snapshot", "high_address", high, "last_blob_handle", lastUsed)
	return &storeBackup{
		Strategy: backup.Compose(blobs, logs),
		logs:     logs,
		blobs:    blobs,
		txn:      txn,
		logger:   s.logger,
	}, nil
}

type storeBackup struct {
	backup.Strategy
	logs   backup.Strategy
	blobs  backup.Strategy
	txn    *env.Txn
	logger *slog.Logger
}

// BeforeBackup syncs the log before the vault is prepared.
func (b *storeBackup) BeforeBackup() error {
	if err := b.logs.BeforeBackup(); err != nil {
		return err
	}
	return b.blobs.BeforeBackup()
}

func (b *storeBackup) AfterBackup() error {
	defer b.txn.Abort()
	return b.Strategy.AfterBackup()
}

func (b *storeBackup) OnError(err error) {
	b.logger.Error("backup failed", "error", err)
	b.Strategy.OnError(err)
}

// Backup writes a zstd compressed tar archive of the store to w.
func (s *Store) Backup(ctx context.Context, w io.Writer) (backup.Stats, error) {
	strategy, err := s.NewBackupStrategy()
	if err != nil {
		return backup.Stats{}, err
	}
	stats, err := backup.WriteArchive(ctx, strategy, w, s.throttle)
	s.metrics.ObserveBackup(stats.Bytes, err)
	return stats, err
}

// BackupToDir copies the files of the store into dir.
func (s *Store) BackupToDir(ctx context.Context, dir string, parallelism int) (backup.Stats, error) {
	strategy, err := s.NewBackupStrategy()
	if err != nil {
		return backup.Stats{}, err
	}
	stats, err := backup.CopyToDir(ctx, strategy, dir, parallelism, s.throttle)
	s.metrics.ObserveBackup(stats.Bytes, err)
	return stats, err
}

func (s *Store) throttle(o *backup.Options) {
	o.Throttle = func(ctx context.Context, r io.Reader) io.Reader {
		return resource.NewRateLimitedReader(ctx, r, s.resourceController)
	}
}
