package tables

import (
	"sync"

	"github.com/hupe1980/entitydb/internal/env"
)

// Set bundles the tables of one entity type.
type Set struct {
	TypeID     int32
	Entities   *SingleColumnTable
	Properties *PropertiesTable
	Links      *LinksTable
	Blobs      *BlobsTable
}

// NewSet returns the tables of typeID.
func NewSet(e *env.Environment, typeID int32) *Set {
	return &Set{
		TypeID:     typeID,
		Entities:   NewSingleColumnTable(e, typeID),
		Properties: NewPropertiesTable(e, typeID),
		Links:      NewLinksTable(e, typeID),
		Blobs:      NewBlobsTable(e, typeID),
	}
}

// Create opens every fixed store of the set so that read-only
// transactions find them.
func (s *Set) Create(txn *env.Txn) error {
	for _, idx := range []*Index{
		s.Entities.Index,
		s.Properties.Primary, s.Properties.All,
		s.Links.First, s.Links.Second, s.Links.All,
		s.Blobs.Primary, s.Blobs.All,
	} {
		if _, err := idx.Open(txn); err != nil {
			return err
		}
	}
	return nil
}

// Truncate drops the content of every table in the set.
func (s *Set) Truncate(txn *env.Txn) error {
	if err := s.Properties.Truncate(txn); err != nil {
		return err
	}
	if err := s.Links.Truncate(txn); err != nil {
		return err
	}
	if err := s.Blobs.Truncate(txn); err != nil {
		return err
	}
	return s.Entities.Truncate(txn)
}

// Cache holds the table sets of a store for its lifetime.
type Cache struct {
	env  *env.Environment
	mu   sync.Mutex
	sets map[int32]*Set
}

// NewCache returns an empty cache.
func NewCache(e *env.Environment) *Cache {
	return &Cache{env: e, sets: make(map[int32]*Set)}
}

// Get returns the set of typeID, creating the handles on first access.
func (c *Cache) Get(typeID int32) *Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[typeID]
	if !ok {
		s = NewSet(c.env, typeID)
		c.sets[typeID] = s
	}
	return s
}

// Forget drops the cached set of typeID.
func (c *Cache) Forget(typeID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, typeID)
}
