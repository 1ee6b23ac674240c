package blobstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process memory. Intended for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := CheckName(name); err != nil {
		return err
	}
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[name] = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string, off, length int64) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	off, length, err := clampRange(int64(len(data)), off, length)
	if err != nil {
		return nil, err
	}
	// Objects are never mutated in place, so the slice can be shared.
	return io.NopCloser(bytes.NewReader(data[off : off+length])), nil
}

func (m *MemoryStore) Stat(_ context.Context, name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return Info{}, ErrNotFound
	}
	return Info{Name: name, Size: int64(len(data))}, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.objects, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Walk(ctx context.Context, prefix string, fn func(Info) error) error {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.objects))
	for name, data := range m.objects {
		if strings.HasPrefix(name, prefix) {
			infos = append(infos, Info{Name: name, Size: int64(len(data))})
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
