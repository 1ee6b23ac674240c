// Package blobstore is the object storage abstraction behind the object
// blob vault.
//
// Objects are named, immutable byte strings. An object written by Put
// becomes visible only when Put returns nil, so readers never observe a
// partial blob. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local filesystem
//   - MemoryStore: process memory, for tests
//   - s3.Store: Amazon S3 with ranged GETs and multipart uploads
//   - minio.Store: MinIO and other S3 compatible services
//
// The storetest package checks an implementation against the contract.
package blobstore
