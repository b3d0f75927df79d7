// Package backend provides BlobStore implementations for the bulk-bytes
// collaborator: a MinIO/S3-compatible remote store and an in-memory
// store for tests and local development.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mcrawfurd/slipway"
)

// MinioConfig holds connection settings for a MinIO/S3-compatible backend.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	// Bucket is the single physical bucket all objects live in,
	// namespaced by their logical bucket.
	Bucket string `mapstructure:"bucket"`
}

// MinioStore stores blobs in one physical bucket on a MinIO/S3-compatible
// service. Logical buckets are directory-style prefixes inside it, so
// gateway bucket creation never needs a backend round trip.
type MinioStore struct {
	mc     *minio.Client
	bucket string
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("new minio store: endpoint and bucket are required")
	}

	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio store: %w", err)
	}

	return &MinioStore{mc: mc, bucket: cfg.Bucket}, nil
}

// normalizeEndpoint strips a scheme prefix if present; the scheme wins
// over the useSSL flag.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	secure := useSSL
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if u, err := url.Parse(endpoint); err == nil {
			secure = u.Scheme == "https"
			return u.Host, secure
		}
	}
	return endpoint, secure
}

// EnsureBucket creates the physical bucket if it does not exist.
// Called once at startup.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ensure bucket: %w: %w", slipway.ErrBackendUnavailable, err)
	}

	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("ensure bucket %q: %w: %w", s.bucket, slipway.ErrBackendUnavailable, err)
		}
	}

	return nil
}

// locator maps a logical (bucket, key) pair onto the physical bucket.
func locator(bucket, key string) string {
	return bucket + "/" + strings.TrimPrefix(key, "/")
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) (slipway.StatInfo, error) {
	info, err := s.mc.PutObject(ctx, s.bucket, locator(bucket, key), content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return slipway.StatInfo{}, fmt.Errorf("put %s/%s: %w: %w", bucket, key, slipway.ErrBackendUnavailable, err)
	}

	return slipway.StatInfo{SizeBytes: info.Size, Checksum: trimETag(info.ETag)}, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, slipway.StatInfo, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, locator(bucket, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, slipway.StatInfo{}, fmt.Errorf("get %s/%s: %w: %w", bucket, key, slipway.ErrBackendUnavailable, err)
	}

	// GetObject is lazy; Stat forces the request and surfaces absence.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, slipway.StatInfo{}, mapMinioError("get", bucket, key, err)
	}

	return obj, slipway.StatInfo{SizeBytes: info.Size, Checksum: trimETag(info.ETag)}, nil
}

func (s *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	// RemoveObject succeeds for absent keys; stat first so absence is
	// reported distinctly.
	if _, err := s.mc.StatObject(ctx, s.bucket, locator(bucket, key), minio.StatObjectOptions{}); err != nil {
		return mapMinioError("delete", bucket, key, err)
	}

	if err := s.mc.RemoveObject(ctx, s.bucket, locator(bucket, key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w: %w", bucket, key, slipway.ErrBackendUnavailable, err)
	}

	return nil
}

func (s *MinioStore) Stat(ctx context.Context, bucket, key string) (slipway.StatInfo, error) {
	info, err := s.mc.StatObject(ctx, s.bucket, locator(bucket, key), minio.StatObjectOptions{})
	if err != nil {
		return slipway.StatInfo{}, mapMinioError("stat", bucket, key, err)
	}

	return slipway.StatInfo{SizeBytes: info.Size, Checksum: trimETag(info.ETag)}, nil
}

// mapMinioError distinguishes a missing key from a failing backend.
// Anything that is not a definitive "no such key" is treated as
// unavailable, never as absence.
func mapMinioError(op, bucket, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s %s/%s: %w", op, bucket, key, slipway.ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w: %w", op, bucket, key, slipway.ErrBackendUnavailable, err)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
