// Package fs is the file layer under the environment log and the file
// system blob vault.
//
// [FileSystem] and [File] cover what those two need: append and truncate of
// log files, temp-file-and-rename writes of blobs, directory listing for
// recovery and sweeps. [LocalFS] is the os backed implementation and
// [Default] the instance production code passes around. [WriteFile] is the
// atomic write both the vault and its version file use.
//
// [FaultyFS] wraps another FileSystem and fails opens, writes past a byte
// budget or syncs of files whose name contains a pattern:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".xd", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
//
// [Lock] takes the exclusive directory lock of an open environment.
package fs
