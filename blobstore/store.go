package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Info describes a stored object.
type Info struct {
	Name string
	Size int64
}

// Store reads and writes named, immutable objects.
type Store interface {
	// Put stores the content of r under name. size is the content length,
	// or -1 when unknown. The object is visible once Put returns nil.
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Get returns a reader over length bytes of name starting at off. A
	// negative length reads to the end of the object.
	Get(ctx context.Context, name string, off, length int64) (io.ReadCloser, error)
	// Stat describes name.
	Stat(ctx context.Context, name string) (Info, error)
	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// Walk calls fn for every object whose name starts with prefix. Object
	// stores walk in name order, LocalStore in directory order. An error
	// returned by fn stops the walk and is returned.
	Walk(ctx context.Context, prefix string, fn func(Info) error) error
}

// PutBytes stores data under name.
func PutBytes(ctx context.Context, s Store, name string, data []byte) error {
	return s.Put(ctx, name, bytes.NewReader(data), int64(len(data)))
}

// ReadAll reads the whole object.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Get(ctx, name, 0, -1)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Names returns the names of the objects below prefix.
func Names(ctx context.Context, s Store, prefix string) ([]string, error) {
	var names []string
	err := s.Walk(ctx, prefix, func(info Info) error {
		names = append(names, info.Name)
		return nil
	})
	return names, err
}

// CheckName rejects names that are empty, absolute or not clean slash
// separated paths.
func CheckName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
		return fmt.Errorf("blobstore: invalid object name %q", name)
	}
	return nil
}

// clampRange resolves off and length against an object of size bytes.
func clampRange(size, off, length int64) (int64, int64, error) {
	if off < 0 || off > size {
		return 0, 0, fmt.Errorf("blobstore: offset %d out of range [0,%d]", off, size)
	}
	if length < 0 || off+length > size {
		length = size - off
	}
	return off, length, nil
}
