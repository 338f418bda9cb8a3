// Package s3 keeps run history archives in an S3-compatible bucket through
// minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/storage"
)

// bucket is the slice of the S3 API the archive uses. Keys passed to it
// already carry the store prefix.
type bucket interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Walk(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Ensure(ctx context.Context, region string) error
}

// Store maps archive keys such as history/date=.../runs-1-5.parquet onto a
// bucket, optionally below a shared prefix.
type Store struct {
	bucket bucket
	keys   keyspace
}

var _ storage.ObjectStore = (*Store)(nil)

func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(&minioBucket{client: client, name: name}, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.bucket.Ensure(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", name, err)
		}
	}
	return store, nil
}

func newStore(b bucket, prefix string) *Store {
	return &Store{bucket: b, keys: newKeyspace(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	object, err := s.keys.object(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Upload(ctx, object, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %q: %w", object, err)
	}
	info.Key = s.keys.relative(info.Key)
	return info, nil
}

// Get returns storage.ErrObjectNotFound, unwrapped, for a missing key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.keys.object(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Download(ctx, object)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", object, err)
	}
	return reader, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	listing := s.keys.listing(prefix)
	objects, err := s.bucket.Walk(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", listing, err)
	}
	for i := range objects {
		objects[i].Key = s.keys.relative(objects[i].Key)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// keyspace confines archive keys below an optional prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = path.Clean("/" + strings.TrimSpace(prefix))
	return keyspace{prefix: strings.TrimPrefix(prefix, "/")}
}

func (k keyspace) object(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(k.prefix, cleaned), nil
}

func (k keyspace) listing(prefix string) string {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if k.prefix == "" {
		return prefix
	}
	return k.prefix + "/" + prefix
}

func (k keyspace) relative(key string) string {
	if k.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, k.prefix+"/")
}

// parseEndpoint accepts host:port or a URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// Download stats the object first; GetObject itself defers errors to the
// first read.
func (b *minioBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (b *minioBucket) Walk(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	objects := make([]storage.ObjectInfo, 0)
	for object := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, notFound(object.Err)
		}
		objects = append(objects, storage.ObjectInfo{Key: object.Key, Size: object.Size, ETag: object.ETag, LastModified: object.LastModified})
	}
	return objects, nil
}

func (b *minioBucket) Ensure(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil || exists {
		return err
	}
	return b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region})
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
