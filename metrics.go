package entitydb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// The engine always exports prometheus metrics on the registerer passed with
// WithMetricsRegisterer; a collector sees one call per facade operation.
type MetricsCollector interface {
	// RecordRepair is called after each repair run. changes is the sum of
	// rows changed over all reports.
	RecordRepair(changes int64, duration time.Duration, err error)

	// RecordBackup is called after each backup.
	RecordBackup(bytes int64, duration time.Duration, err error)

	// RecordRestore is called after each restore.
	RecordRestore(files int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRepair(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordBackup(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordRestore(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	RepairCount      atomic.Int64
	RepairErrors     atomic.Int64
	RepairChanges    atomic.Int64
	RepairTotalNanos atomic.Int64
	BackupCount      atomic.Int64
	BackupErrors     atomic.Int64
	BackupBytes      atomic.Int64
	BackupTotalNanos atomic.Int64
	RestoreCount     atomic.Int64
	RestoreErrors    atomic.Int64
}

// RecordRepair implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRepair(changes int64, duration time.Duration, err error) {
	b.RepairCount.Add(1)
	b.RepairChanges.Add(changes)
	b.RepairTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RepairErrors.Add(1)
	}
}

// RecordBackup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBackup(bytes int64, duration time.Duration, err error) {
	b.BackupCount.Add(1)
	b.BackupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BackupErrors.Add(1)
		return
	}
	b.BackupBytes.Add(bytes)
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(_ int, _ time.Duration, err error) {
	b.RestoreCount.Add(1)
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RepairCount:    b.RepairCount.Load(),
		RepairErrors:   b.RepairErrors.Load(),
		RepairChanges:  b.RepairChanges.Load(),
		RepairAvgNanos: avg(b.RepairTotalNanos.Load(), b.RepairCount.Load()),
		BackupCount:    b.BackupCount.Load(),
		BackupErrors:   b.BackupErrors.Load(),
		BackupBytes:    b.BackupBytes.Load(),
		BackupAvgNanos: avg(b.BackupTotalNanos.Load(), b.BackupCount.Load()),
		RestoreCount:   b.RestoreCount.Load(),
		RestoreErrors:  b.RestoreErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RepairCount    int64
	RepairErrors   int64
	RepairChanges  int64
	RepairAvgNanos int64
	BackupCount    int64
	BackupErrors   int64
	BackupBytes    int64
	BackupAvgNanos int64
	RestoreCount   int64
	RestoreErrors  int64
}
