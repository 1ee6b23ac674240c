package minio

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/entitydb/blobstore"
)

// Store implements blobstore.Store on a MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blobstore.Store = (*Store)(nil)

// NewStore returns a store for bucket. rootPrefix is prepended to every
// object name.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: rootPrefix}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name
}

func (s *Store) name(key string) string {
	return strings.TrimPrefix(key, s.key(""))
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func (s *Store) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := blobstore.CheckName(name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Get issues a ranged GET. A missing object is reported on Get, not on the
// first read.
func (s *Store) Get(ctx context.Context, name string, off, length int64) (io.ReadCloser, error) {
	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	if off < 0 || off > info.Size {
		return nil, io.ErrUnexpectedEOF
	}
	if length < 0 || off+length > info.Size {
		length = info.Size - off
	}
	if length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	opts := minio.GetObjectOptions{}
	if off > 0 || length < info.Size {
		if err := opts.SetRange(off, off+length-1); err != nil {
			return nil, err
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), opts)
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *Store) Stat(ctx context.Context, name string) (blobstore.Info, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return blobstore.Info{}, blobstore.ErrNotFound
		}
		return blobstore.Info{}, err
	}
	return blobstore.Info{Name: name, Size: info.Size}, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Walk lists the bucket recursively. The listing is in key order.
func (s *Store) Walk(ctx context.Context, prefix string, fn func(blobstore.Info) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return obj.Err
		}
		name := s.name(obj.Key)
		if name == "" {
			continue
		}
		if err := fn(blobstore.Info{Name: name, Size: obj.Size}); err != nil {
			return err
		}
	}
	return ctx.Err()
}
