package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// SetBlob stores the content of r as the named blob of id. The content is
// written to the vault under a fresh handle before txn commits; the
// previous content is removed after commit.
func (s *Store) SetBlob(ctx context.Context, txn *env.Txn, id EntityID, name string, r io.Reader) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	key, err := s.blobKey(txn, id, name)
	if err != nil {
		return 0, err
	}
	handle, err := s.vault.NextHandle(txn)
	if err != nil {
		return 0, err
	}
	size, err := s.vault.Put(ctx, handle, r)
	if err != nil {
		return 0, fmt.Errorf("put blob %q of %s: %w", name, id, err)
	}
	if err := s.replaceBlob(txn, id.TypeID, key, tables.BlobValue{Handle: handle}); err != nil {
		return 0, err
	}
	return size, nil
}

// SetBlobString stores a string blob. Empty and short strings are kept in
// the blob row and never reach the vault.
func (s *Store) SetBlobString(ctx context.Context, txn *env.Txn, id EntityID, name, value string) error {
	if len(value) > s.inPlaceBlobLimit {
		_, err := s.SetBlob(ctx, txn, id, name, strings.NewReader(value))
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	key, err := s.blobKey(txn, id, name)
	if err != nil {
		return err
	}
	v := tables.BlobValue{Handle: blobvault.EmptyHandle}
	if value != "" {
		v = tables.BlobValue{Handle: blobvault.InPlaceHandle, Inline: []byte(value)}
	}
	return s.replaceBlob(txn, id.TypeID, key, v)
}

func (s *Store) blobKey(txn *env.Txn, id EntityID, name string) (codec.PropertyKey, error) {
	if err := s.mustExist(txn, id); err != nil {
		return codec.PropertyKey{}, err
	}
	blobID, _, err := s.blobNames.getOrCreate(txn, name)
	if err != nil {
		return codec.PropertyKey{}, err
	}
	return codec.PropertyKey{LocalID: id.LocalID, PropertyID: blobID}, nil
}

func (s *Store) replaceBlob(txn *env.Txn, typeID int32, key codec.PropertyKey, v tables.BlobValue) error {
	t := s.tables.Get(typeID).Blobs
	old, had, err := t.Get(txn, key)
	if err != nil {
		s.logger.Warn("replacing malformed blob row", "type", typeID, "entity", key.LocalID, "error", err)
	}
	if err := t.Put(txn, key, v); err != nil {
		return err
	}
	if had && !blobvault.IsReserved(old.Handle) && old.Handle != v.Handle {
		s.deleteContentAfterCommit(txn, old.Handle)
	}
	return nil
}

// Blob returns a reader over the named blob of id.
func (s *Store) Blob(ctx context.Context, txn *env.Txn, id EntityID, name string) (io.ReadCloser, bool, error) {
	blobID, ok := s.blobNames.lookup(txn, name)
	if !ok {
		return nil, false, nil
	}
	v, ok, err := s.tables.Get(id.TypeID).Blobs.Get(txn, codec.PropertyKey{LocalID: id.LocalID, PropertyID: blobID})
	if err != nil || !ok {
		return nil, false, err
	}
	switch v.Handle {
	case blobvault.EmptyHandle:
		return io.NopCloser(bytes.NewReader(nil)), true, nil
	case blobvault.InPlaceHandle:
		return io.NopCloser(bytes.NewReader(v.Inline)), true, nil
	}
	rc, err := s.vault.Open(ctx, v.Handle)
	if err != nil {
		return nil, false, fmt.Errorf("blob %q of %s: %w", name, id, err)
	}
	return rc, true, nil
}

// BlobString returns the named blob of id as a string.
func (s *Store) BlobString(ctx context.Context, txn *env.Txn, id EntityID, name string) (string, bool, error) {
	rc, ok, err := s.Blob(ctx, txn, id, name)
	if err != nil || !ok {
		return "", ok, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// DeleteBlob deletes the named blob of id. Vault content is removed after
// txn commits.
func (s *Store) DeleteBlob(txn *env.Txn, id EntityID, name string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	blobID, ok := s.blobNames.lookup(txn, name)
	if !ok {
		return false, nil
	}
	return s.deleteBlob(txn, id.TypeID, codec.PropertyKey{LocalID: id.LocalID, PropertyID: blobID})
}

func (s *Store) deleteBlob(txn *env.Txn, typeID int32, key codec.PropertyKey) (bool, error) {
	t := s.tables.Get(typeID).Blobs
	v, had, err := t.Get(txn, key)
	if err != nil {
		s.logger.Warn("deleting malformed blob row", "type", typeID, "entity", key.LocalID, "error", err)
	}
	deleted, err := t.Delete(txn, key)
	if err != nil {
		return false, err
	}
	if had && !blobvault.IsReserved(v.Handle) {
		s.deleteContentAfterCommit(txn, v.Handle)
	}
	return deleted, nil
}

func (s *Store) deleteContentAfterCommit(txn *env.Txn, handle int64) {
	txn.AfterCommit(func() {
		if _, err := s.vault.Delete(context.Background(), handle); err != nil {
			s.logger.Warn("failed to delete blob content", "handle", handle, "error", err)
		}
	})
}
