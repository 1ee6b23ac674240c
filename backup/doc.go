// Package backup defines the contract between a store and an external backup
// tool, plus runners that execute a strategy.
//
// A [Strategy] is asked, in order, to prepare ([Strategy.BeforeBackup]), to
// enumerate candidate files ([Strategy.ListFiles]) and, for every file, how
// many bytes to copy ([Strategy.AcceptFile]). A negative length excludes the
// file. [Strategy.AfterBackup] always runs last, even after a failure that was
// reported through [Strategy.OnError].
//
// Strategies are composed rather than subclassed:
//
//	clamped := backup.Decorate(env.BackupStrategy(), func(fd backup.FileDescriptor, n int64) int64 {
//	    return min(n, highAddress-addressOf(fd))
//	})
//
// [WriteArchive] streams a zstd compressed tar archive, [CopyToDir] copies
// files into a directory in parallel and [Restore] unpacks an archive.
package backup
