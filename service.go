package slipway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// MetadataRepo defines the interface for bucket and object record
// persistence. Every mutating call must be atomic per row so that
// concurrent operations on the same (bucket, key) serialize at the
// store and last-writer-wins applies; the gateway takes no in-process
// locks.
//
// Implementations report ErrNotFound and ErrConflict distinctly.
type MetadataRepo interface {
	// GetBucket retrieves a bucket record by name.
	// Returns ErrNotFound if no bucket of that name exists.
	GetBucket(ctx context.Context, name string) (Bucket, error)

	// PutBucket inserts a new bucket record.
	// Returns ErrConflict if a bucket of that name already exists.
	PutBucket(ctx context.Context, bucket Bucket) (Bucket, error)

	// DeleteBucket removes a bucket record. It does not check for
	// remaining objects; emptiness is the gateway's invariant.
	// Returns ErrNotFound if the bucket does not exist.
	DeleteBucket(ctx context.Context, name string) error

	// ListBuckets returns all bucket records ordered by name.
	ListBuckets(ctx context.Context) ([]Bucket, error)

	// GetObject retrieves the object row for (bucket, key) regardless
	// of status. Returns ErrNotFound if no row exists.
	GetObject(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// UpsertObject atomically creates or replaces the object row keyed
	// by (Bucket, Key). On update CreatedAt is preserved and UpdatedAt
	// refreshed; all other fields are taken from info.
	UpsertObject(ctx context.Context, info ObjectInfo) (ObjectInfo, error)

	// DeleteObject removes the object row for (bucket, key).
	// Returns ErrNotFound if no row exists.
	DeleteObject(ctx context.Context, bucket, key string) error

	// ListCommitted returns COMMITTED rows in bucket whose key starts
	// with q.Prefix, ordered by key, resuming after the key encoded in
	// q.Cursor. PENDING rows must never appear in the result.
	ListCommitted(ctx context.Context, bucket string, q ListQuery) (ListResult, error)

	// CountObjects returns the number of object rows in bucket,
	// PENDING rows included.
	CountObjects(ctx context.Context, bucket string) (int64, error)

	// ListExpiredPending returns up to limit PENDING rows whose grant
	// expiry is before the given instant, ordered by expiry.
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]ObjectInfo, error)
}

// BlobStore defines the interface for the bulk-bytes backend. The
// backend is the source of truth for content: size and checksum flow
// from Stat results into metadata rows, never the other way.
//
// Implementations map a missing blob to ErrNotFound and transport
// failures to ErrBackendUnavailable. Calls are blocking I/O; callers
// bound them with a context deadline, and a deadline hit is
// ErrBackendUnavailable, not absence.
type BlobStore interface {
	// Put writes content under (bucket, key) and returns the stored
	// size and checksum.
	Put(ctx context.Context, bucket, key string, content io.Reader, size int64, contentType string) (StatInfo, error)

	// Get opens the blob for reading. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, StatInfo, error)

	// Delete removes the blob. Deleting an absent blob returns ErrNotFound.
	Delete(ctx context.Context, bucket, key string) error

	// Stat reports size and checksum, or ErrNotFound if the blob is absent.
	Stat(ctx context.Context, bucket, key string) (StatInfo, error)
}

// GatewayService owns the bucket/object lifecycle and the consistency
// protocol between metadata rows and backend blobs.
type GatewayService struct {
	repo           MetadataRepo
	blobs          BlobStore
	signer         *Signer
	defaultTTL     time.Duration
	backendTimeout time.Duration
	now            func() time.Time
}

// ServiceConfig holds configuration options for GatewayService.
type ServiceConfig struct {
	DefaultGrantTTL time.Duration // TTL used when a request does not specify one (default: 15m)
	BackendTimeout  time.Duration // Deadline applied to each blob backend call (default: 30s)
	Now             func() time.Time
}

func NewGatewayService(repo MetadataRepo, blobs BlobStore, signer *Signer, cfg ServiceConfig) (*GatewayService, error) {
	if repo == nil || blobs == nil || signer == nil {
		return nil, fmt.Errorf("new gateway service: %w: repo, blob store and signer are required", ErrInvalidArgument)
	}

	defaultTTL := cfg.DefaultGrantTTL
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}

	backendTimeout := cfg.BackendTimeout
	if backendTimeout <= 0 {
		backendTimeout = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &GatewayService{
		repo:           repo,
		blobs:          blobs,
		signer:         signer,
		defaultTTL:     defaultTTL,
		backendTimeout: backendTimeout,
		now:            now,
	}, nil
}

// CreateBucket validates the name and inserts the bucket record.
// The backend namespace is provisioned lazily; no backend call happens here.
func (s *GatewayService) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}

	if !IsValidBucketName(name) {
		return Bucket{}, fmt.Errorf("create bucket %q: %w: name must be 3-63 lowercase alphanumeric or hyphen characters", name, ErrInvalidArgument)
	}

	b, err := s.repo.PutBucket(ctx, Bucket{Name: name, CreatedAt: s.now().UTC()})
	if err != nil {
		return Bucket{}, fmt.Errorf("create bucket %q: %w", name, err)
	}

	return b, nil
}

// DeleteBucket removes an empty bucket. A bucket holding any object
// rows, PENDING included, is not empty and fails with ErrConflict.
func (s *GatewayService) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}

	if _, err := s.repo.GetBucket(ctx, name); err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}

	n, err := s.repo.CountObjects(ctx, name)
	if err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}

	if n > 0 {
		return fmt.Errorf("delete bucket %q: %d objects remain: %w", name, n, ErrConflict)
	}

	if err := s.repo.DeleteBucket(ctx, name); err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}

	return nil
}

func (s *GatewayService) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	buckets, err := s.repo.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	return buckets, nil
}

// ListObjects returns COMMITTED objects in key order. PENDING rows are
// invisible here: an upload in progress, or an overwrite awaiting
// re-confirmation, never shows up in a listing.
func (s *GatewayService) ListObjects(ctx context.Context, bucket string, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list objects: %w", err)
	}

	if _, err := s.repo.GetBucket(ctx, bucket); err != nil {
		return ListResult{}, fmt.Errorf("list objects %q: %w", bucket, err)
	}

	if q.Limit <= 0 {
		q.Limit = 100
	}
	q.Limit = min(q.Limit, 1000)

	result, err := s.repo.ListCommitted(ctx, bucket, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list objects %q: %w", bucket, err)
	}

	return result, nil
}

// IssueUploadGrant upserts a PENDING row for (bucket, key) and mints a
// WRITE grant. Re-issuing over an existing PENDING or COMMITTED row is
// allowed and resets it to PENDING: an in-flight overwrite hides the
// previous commit from listings until it is re-confirmed.
func (s *GatewayService) IssueUploadGrant(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (ObjectInfo, Grant, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, Grant{}, fmt.Errorf("issue upload grant: %w", err)
	}

	if !IsValidObjectKey(key) {
		return ObjectInfo{}, Grant{}, fmt.Errorf("issue upload grant %s/%s: %w: invalid key", bucket, key, ErrInvalidArgument)
	}

	if _, err := s.repo.GetBucket(ctx, bucket); err != nil {
		return ObjectInfo{}, Grant{}, fmt.Errorf("issue upload grant %s/%s: %w", bucket, key, err)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	grant, err := s.signer.Mint(bucket, key, MethodWrite, ttl)
	if err != nil {
		return ObjectInfo{}, Grant{}, fmt.Errorf("issue upload grant %s/%s: %w", bucket, key, err)
	}

	row, err := s.repo.UpsertObject(ctx, ObjectInfo{
		Bucket:         bucket,
		Key:            key,
		ContentType:    contentType,
		SizeBytes:      0,
		Status:         StatusPending,
		GrantExpiresAt: grant.ExpiresAt,
	})
	if err != nil {
		return ObjectInfo{}, Grant{}, fmt.Errorf("issue upload grant %s/%s: %w", bucket, key, err)
	}

	return row, grant, nil
}

// IssueDownloadGrant mints a READ grant for a COMMITTED object. A
// PENDING row is indistinguishable from absence here: downloads are
// denied until the upload is confirmed.
func (s *GatewayService) IssueDownloadGrant(ctx context.Context, bucket, key string, ttl time.Duration) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, fmt.Errorf("issue download grant: %w", err)
	}

	obj, err := s.repo.GetObject(ctx, bucket, key)
	if err != nil {
		return Grant{}, fmt.Errorf("issue download grant %s/%s: %w", bucket, key, err)
	}

	if obj.Status != StatusCommitted {
		return Grant{}, fmt.Errorf("issue download grant %s/%s: upload not confirmed: %w", bucket, key, ErrNotFound)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	grant, err := s.signer.Mint(bucket, key, MethodRead, ttl)
	if err != nil {
		return Grant{}, fmt.Errorf("issue download grant %s/%s: %w", bucket, key, err)
	}

	return grant, nil
}

// ConfirmUpload reconciles the metadata row with backend truth. It is
// the single point where the two converge and is safe to call
// repeatedly and concurrently for the same key: every write is an
// atomic upsert of fields derived from the backend, so the last
// reconciliation wins.
//
// Outcomes:
//   - blob present: size and checksum copied into the row, status COMMITTED
//   - blob absent, row PENDING within its grant window: row unchanged,
//     the writer may simply not have finished
//   - blob absent, row PENDING past its grant expiry: row reclaimed,
//     ErrNotFound returned
//   - blob absent, row COMMITTED: the row is stale; it is demoted to
//     PENDING with an already-elapsed grant window so the next confirm
//     or sweep reclaims it unless the blob reappears first
func (s *GatewayService) ConfirmUpload(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, fmt.Errorf("confirm upload: %w", err)
	}

	obj, err := s.repo.GetObject(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: %w", bucket, key, err)
	}

	statCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	st, err := s.blobs.Stat(statCtx, bucket, key)
	switch {
	case err == nil:
		obj.SizeBytes = st.SizeBytes
		obj.Checksum = st.Checksum
		obj.Status = StatusCommitted

		committed, upsertErr := s.repo.UpsertObject(ctx, obj)
		if upsertErr != nil {
			return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: %w", bucket, key, upsertErr)
		}
		return committed, nil

	case errors.Is(err, ErrNotFound):
		now := s.now()

		if obj.Status == StatusCommitted {
			// Stale row: the blob vanished under a COMMITTED record
			// (interrupted delete, backend loss). Demote and let the
			// reclaimer decide.
			slog.Warn("committed object missing from backend, demoting to pending",
				"bucket", bucket, "key", key)

			obj.Status = StatusPending
			obj.GrantExpiresAt = now

			demoted, upsertErr := s.repo.UpsertObject(ctx, obj)
			if upsertErr != nil {
				return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: %w", bucket, key, upsertErr)
			}
			return demoted, nil
		}

		if now.After(obj.GrantExpiresAt) {
			if delErr := s.repo.DeleteObject(ctx, bucket, key); delErr != nil && !errors.Is(delErr, ErrNotFound) {
				return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: reclaim: %w", bucket, key, delErr)
			}
			slog.Info("reclaimed expired pending object", "bucket", bucket, "key", key)
			return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: grant expired, row reclaimed: %w", bucket, key, ErrNotFound)
		}

		// Writer may not have finished yet; not an error.
		return obj, nil

	default:
		return ObjectInfo{}, fmt.Errorf("confirm upload %s/%s: stat failed: %w: %w", bucket, key, ErrBackendUnavailable, err)
	}
}

// PutObject streams content into the backend and confirms it in one
// call. This is the path behind presigned PUTs: the verified request
// bypasses the metadata path except for the confirmation step.
func (s *GatewayService) PutObject(ctx context.Context, bucket, key, contentType string, size int64, content io.Reader) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, fmt.Errorf("put object: %w", err)
	}

	if !IsValidObjectKey(key) {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w: invalid key", bucket, key, ErrInvalidArgument)
	}

	if _, err := s.repo.GetBucket(ctx, bucket); err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Direct (API-key) uploads arrive without a prior grant; make sure
	// a PENDING row exists before bytes land so the row is reclaimable
	// if the write is cut short.
	if _, err := s.repo.GetObject(ctx, bucket, key); errors.Is(err, ErrNotFound) {
		_, err = s.repo.UpsertObject(ctx, ObjectInfo{
			Bucket:         bucket,
			Key:            key,
			ContentType:    contentType,
			Status:         StatusPending,
			GrantExpiresAt: s.now().Add(s.defaultTTL),
		})
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
		}
	} else if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	if _, err := s.blobs.Put(ctx, bucket, key, content, size, contentType); err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: write failed: %w: %w", bucket, key, ErrBackendUnavailable, err)
	}

	committed, err := s.ConfirmUpload(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	return committed, nil
}

// GetObjectInfo returns the row for a COMMITTED object; PENDING rows
// are reported as absent.
func (s *GatewayService) GetObjectInfo(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, fmt.Errorf("get object info: %w", err)
	}

	obj, err := s.repo.GetObject(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("get object info %s/%s: %w", bucket, key, err)
	}

	if obj.Status != StatusCommitted {
		return ObjectInfo{}, fmt.Errorf("get object info %s/%s: upload not confirmed: %w", bucket, key, ErrNotFound)
	}

	return obj, nil
}

// OpenObject opens a COMMITTED object's content for reading. A
// COMMITTED row whose blob is gone surfaces ErrInconsistent rather
// than being silently repaired; ConfirmUpload is the repair path.
func (s *GatewayService) OpenObject(ctx context.Context, bucket, key string) (ObjectInfo, io.ReadCloser, error) {
	obj, err := s.GetObjectInfo(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, nil, fmt.Errorf("open object: %w", err)
	}

	rc, _, err := s.blobs.Get(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ObjectInfo{}, nil, fmt.Errorf("open object %s/%s: %w", bucket, key, ErrInconsistent)
		}
		return ObjectInfo{}, nil, fmt.Errorf("open object %s/%s: %w: %w", bucket, key, ErrBackendUnavailable, err)
	}

	return obj, rc, nil
}

// DeleteObject removes blob then row, in that order. If the backend
// delete fails the row is untouched and the operation fails closed; a
// row orphaned by a crash between the two deletes is caught by the
// confirm-path demotion above.
func (s *GatewayService) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if _, err := s.repo.GetObject(ctx, bucket, key); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}

	delCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	// A PENDING row may never have received bytes; a missing blob is fine.
	if err := s.blobs.Delete(delCtx, bucket, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete object %s/%s: backend delete failed: %w: %w", bucket, key, ErrBackendUnavailable, err)
	}

	if err := s.repo.DeleteObject(ctx, bucket, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}

	return nil
}

// Sweep reclaims PENDING rows whose grant window has elapsed,
// processing batches until none remain. Rows whose blob did arrive
// (a writer that finished after its grant expired but was never
// confirmed) are committed instead of reclaimed.
//
// Returns the number of rows reclaimed and the number committed.
func (s *GatewayService) Sweep(ctx context.Context, batchSize int) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, fmt.Errorf("sweep: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	reclaimed, committed := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return reclaimed, committed, fmt.Errorf("sweep: %w", err)
		}

		rows, err := s.repo.ListExpiredPending(ctx, s.now(), batchSize)
		if err != nil {
			return reclaimed, committed, fmt.Errorf("sweep: %w", err)
		}

		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			result, err := s.ConfirmUpload(ctx, row.Bucket, row.Key)
			switch {
			case errors.Is(err, ErrNotFound):
				reclaimed++
			case err != nil:
				return reclaimed, committed, fmt.Errorf("sweep %s/%s: %w", row.Bucket, row.Key, err)
			case result.Status == StatusCommitted:
				committed++
			}
		}
	}

	return reclaimed, committed, nil
}
