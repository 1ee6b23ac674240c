package engine

import (
	"fmt"

	"github.com/hupe1980/entitydb/internal/env"
)

// EntityType describes a registered entity type.
type EntityType struct {
	ID   int32
	Name string
}

// EntityTypeID returns the id of a registered type name.
func (s *Store) EntityTypeID(txn *env.Txn, name string) (int32, error) {
	id, ok := s.types.lookup(txn, name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return id, nil
}

// EntityTypeName returns the name of typeID.
func (s *Store) EntityTypeName(txn *env.Txn, typeID int32) (string, bool) {
	return s.types.name(txn, typeID)
}

// CreateEntityType returns the id of name and registers the type when it is
// new. A new type starts with its tables created and every one-time
// refactoring marked as applied, since nothing written by a current store
// needs them.
func (s *Store) CreateEntityType(txn *env.Txn, name string) (int32, error) {
	id, created, err := s.types.getOrCreate(txn, name)
	if err != nil || !created {
		return id, err
	}
	if err := s.tables.Get(id).Create(txn); err != nil {
		return 0, err
	}
	for _, key := range []string{settingNullProps, settingNullLinks, settingNullBlobs, settingFixFloats} {
		if err := s.settings.mark(txn, key, id); err != nil {
			return 0, err
		}
	}
	s.logger.Debug("entity type created", "type", name, "id", id)
	return id, nil
}

// EntityTypes returns every registered type in id order.
func (s *Store) EntityTypes(txn *env.Txn) ([]EntityType, error) {
	var out []EntityType
	err := s.types.all(txn, func(id int32, name string) error {
		out = append(out, EntityType{ID: id, Name: name})
		return nil
	})
	return out, err
}

func (s *Store) localIDs(typeID int32) *Sequence {
	return newSequence(s.env, fmt.Sprintf("entity.local_ids#%d", typeID))
}

// PropertyID returns the id of a property name.
func (s *Store) PropertyID(txn *env.Txn, name string) (int32, bool) { return s.props.lookup(txn, name) }

// PropertyName returns the name of a property id.
func (s *Store) PropertyName(txn *env.Txn, id int32) (string, bool) { return s.props.name(txn, id) }

// LinkID returns the id of a link name.
func (s *Store) LinkID(txn *env.Txn, name string) (int32, bool) { return s.links.lookup(txn, name) }

// LinkName returns the name of a link id.
func (s *Store) LinkName(txn *env.Txn, id int32) (string, bool) { return s.links.name(txn, id) }

// BlobID returns the id of a blob name.
func (s *Store) BlobID(txn *env.Txn, name string) (int32, bool) { return s.blobNames.lookup(txn, name) }
