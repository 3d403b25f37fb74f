package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore keeps partitions in a Cloud Storage bucket. Object creation in
// GCS is atomic at writer Close, which gives Publish the same all-or-nothing
// guarantee as the filesystem rename.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a store for a "gs://bucket/prefix" URI. It assumes
// Application Default Credentials are configured.
func NewGCSStore(ctx context.Context, gcsURI string) (*GCSStore, error) {
	bucket, prefix, err := splitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func splitGCSURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key))
}

// Publish writes data under key. The object becomes visible only if the
// writer closes cleanly.
func (s *GCSStore) Publish(ctx context.Context, key string, data []byte) error {
	w := s.object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Publish: write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Publish: finalize object %s: %w", key, err)
	}
	return nil
}

// Read returns the object stored under key, or ErrNotExist.
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("Read: %s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("Read: open object %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: read object %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an object is stored under key.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Exists: %s: %w", key, err)
	}
	return true, nil
}
