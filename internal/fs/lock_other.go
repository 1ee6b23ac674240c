//go:build !unix

package fs

import (
	"errors"
	"os"
)

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("directory is locked by another process")

// DirLock is a placeholder lock on platforms without flock.
type DirLock struct {
	f *os.File
}

// Lock opens path without taking an OS-level lock.
func Lock(path string) (*DirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &DirLock{f: f}, nil
}

// Release closes the lock file.
func (l *DirLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
