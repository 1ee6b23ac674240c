package backup

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Exclude is the AcceptFile result that leaves a file out of the backup.
const Exclude int64 = -1

// FileDescriptor describes a file that is a candidate for backup.
type FileDescriptor struct {
	// Path is the location of the file on disk.
	Path string
	// Name is the slash separated path of the file inside the backup.
	Name string
	// Size is the file size observed when the file was listed.
	Size int64
}

// Strategy produces a consistent, bounded list of files for a backup tool.
type Strategy interface {
	BeforeBackup() error
	ListFiles() ([]FileDescriptor, error)
	AfterBackup() error
	OnError(err error)
	// AcceptFile returns the number of bytes of fd to copy, or a negative
	// value to exclude the file.
	AcceptFile(fd FileDescriptor) int64
}

// Lister enumerates backup candidates.
type Lister func() ([]FileDescriptor, error)

// FromLister returns a Strategy that lists files with l and accepts every
// file at its listed size.
func FromLister(l Lister) Strategy {
	return listerStrategy{list: l}
}

type listerStrategy struct {
	list Lister
}

func (listerStrategy) BeforeBackup() error { return nil }

func (s listerStrategy) ListFiles() ([]FileDescriptor, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list()
}

func (listerStrategy) AfterBackup() error { return nil }
func (listerStrategy) OnError(error)      {}

func (listerStrategy) AcceptFile(fd FileDescriptor) int64 { return fd.Size }

// Empty is a Strategy without files.
var Empty Strategy = listerStrategy{}

// AcceptFunc post-processes the length a base strategy accepted for fd.
type AcceptFunc func(fd FileDescriptor, accepted int64) int64

// Decorate returns a Strategy that delegates every call to base and passes
// the result of base.AcceptFile through accept. Excluded files stay excluded.
func Decorate(base Strategy, accept AcceptFunc) Strategy {
	return &decorated{Strategy: base, accept: accept}
}

type decorated struct {
	Strategy
	accept AcceptFunc
}

func (d *decorated) AcceptFile(fd FileDescriptor) int64 {
	n := d.Strategy.AcceptFile(fd)
	if n < 0 || d.accept == nil {
		return n
	}
	return d.accept(fd, n)
}

// Clamp returns an AcceptFunc limiting the copied length to limit(fd).
// A non-positive limit excludes the file.
func Clamp(limit func(fd FileDescriptor) int64) AcceptFunc {
	return func(fd FileDescriptor, accepted int64) int64 {
		l := limit(fd)
		if l <= 0 {
			return Exclude
		}
		return min(accepted, l)
	}
}

// ListDir returns descriptors for the regular files directly inside dir
// whose name satisfies keep (nil keeps all). Names are prefixed with prefix.
func ListDir(dir, prefix string, keep func(name string) bool) ([]FileDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []FileDescriptor
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, FileDescriptor{
			Path: filepath.Join(dir, e.Name()),
			Name: filepath.ToSlash(filepath.Join(prefix, e.Name())),
			Size: info.Size(),
		})
	}
	return out, nil
}

// Compose returns a Strategy over several strategies. Lifecycle calls and
// listings run in argument order; AcceptFile is answered by the strategy
// that listed the file. The first BeforeBackup or ListFiles error stops the
// call. AfterBackup calls every strategy and joins their errors.
func Compose(strategies ...Strategy) Strategy {
	return &composite{parts: strategies}
}

type composite struct {
	parts []Strategy

	mu    sync.Mutex
	owner map[string]Strategy
}

func (c *composite) BeforeBackup() error {
	for _, s := range c.parts {
		if err := s.BeforeBackup(); err != nil {
			return err
		}
	}
	return nil
}

func (c *composite) ListFiles() ([]FileDescriptor, error) {
	owner := make(map[string]Strategy)
	var out []FileDescriptor
	for _, s := range c.parts {
		files, err := s.ListFiles()
		if err != nil {
			return nil, err
		}
		for _, fd := range files {
			owner[fd.Path] = s
		}
		out = append(out, files...)
	}
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
	return out, nil
}

func (c *composite) AfterBackup() error {
	var errs []error
	for _, s := range c.parts {
		if err := s.AfterBackup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *composite) OnError(err error) {
	for _, s := range c.parts {
		s.OnError(err)
	}
}

func (c *composite) AcceptFile(fd FileDescriptor) int64 {
	c.mu.Lock()
	s, ok := c.owner[fd.Path]
	c.mu.Unlock()
	if !ok {
		return Exclude
	}
	return s.AcceptFile(fd)
}
