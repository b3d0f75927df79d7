package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/mcrawfurd/slipway"
)

type blob struct {
	data        []byte
	contentType string
	checksum    string
}

// MemoryStore is an in-memory BlobStore for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]blob)}
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) (slipway.StatInfo, error) {
	if err := ctx.Err(); err != nil {
		return slipway.StatInfo{}, err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return slipway.StatInfo{}, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	s.mu.Lock()
	s.blobs[locator(bucket, key)] = blob{data: data, contentType: contentType, checksum: checksum}
	s.mu.Unlock()

	return slipway.StatInfo{SizeBytes: int64(len(data)), Checksum: checksum}, nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, slipway.StatInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, slipway.StatInfo{}, err
	}

	s.mu.RLock()
	b, ok := s.blobs[locator(bucket, key)]
	s.mu.RUnlock()

	if !ok {
		return nil, slipway.StatInfo{}, fmt.Errorf("get %s/%s: %w", bucket, key, slipway.ErrNotFound)
	}

	return io.NopCloser(bytes.NewReader(b.data)), slipway.StatInfo{SizeBytes: int64(len(b.data)), Checksum: b.checksum}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[locator(bucket, key)]; !ok {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, slipway.ErrNotFound)
	}

	delete(s.blobs, locator(bucket, key))
	return nil
}

func (s *MemoryStore) Stat(ctx context.Context, bucket, key string) (slipway.StatInfo, error) {
	if err := ctx.Err(); err != nil {
		return slipway.StatInfo{}, err
	}

	s.mu.RLock()
	b, ok := s.blobs[locator(bucket, key)]
	s.mu.RUnlock()

	if !ok {
		return slipway.StatInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, slipway.ErrNotFound)
	}

	return slipway.StatInfo{SizeBytes: int64(len(b.data)), Checksum: b.checksum}, nil
}
