package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioScheme = "minio://"

// MinioStore implements FileStorage on MinIO/S3 compatible storage.
// Locations have the form minio://bucket/key.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return minioScheme + m.bucket + "/" + key, nil
}

// Open downloads the object into a temp file.
func (m *MinioStore) Open(ctx context.Context, location string) (string, func(), error) {
	key, err := m.keyOf(location)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp("", "medexplain-obj-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	path := filepath.Join(dir, SafeFilename(key))
	if err := m.client.FGetObject(ctx, m.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		cleanup()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("get object: %w", err)
	}
	return path, cleanup, nil
}

func (m *MinioStore) Delete(ctx context.Context, location string) error {
	key, err := m.keyOf(location)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (m *MinioStore) keyOf(location string) (string, error) {
	prefix := minioScheme + m.bucket + "/"
	if !strings.HasPrefix(location, prefix) || len(location) == len(prefix) {
		return "", fmt.Errorf("location %q not in bucket %s", location, m.bucket)
	}
	return strings.TrimPrefix(location, prefix), nil
}
