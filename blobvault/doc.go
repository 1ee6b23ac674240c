// Package blobvault stores blob content outside the log, addressed by
// handles.
//
// Handles are allocated from a store sequence inside the transaction that
// creates the blob. Content is written before that transaction commits, so
// an aborted transaction leaves content behind at a handle above the last
// used one. Such files are never part of a backup and are swept when the
// vault is opened.
//
// Two vaults are provided: FileSystemVault keeps one file per handle below
// a directory and takes part in file backups; ObjectVault keeps content in
// a blobstore.Store such as S3 or MinIO.
package blobvault
