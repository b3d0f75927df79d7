// Package sqlite implements the metadata repo using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"

	"github.com/mcrawfurd/slipway"
)

// sqliteConstraint is the low byte of every SQLITE_CONSTRAINT result
// code, extended variants included.
const sqliteConstraint = 19

func isConstraintErr(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code()&0xff == sqliteConstraint
}

// timeFormat is RFC 3339 with a fixed nine digit fraction. Timestamps
// are stored as TEXT and compared lexically, so the width must not
// vary; RFC3339Nano drops trailing zeros and breaks sub-second ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type repo struct {
	db      *sql.DB
	buckets string
	objects string
}

func NewRepo(db *sql.DB, tables slipway.Tables) (slipway.MetadataRepo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &repo{db: db, buckets: tables.Buckets, objects: tables.Objects}, nil
}

func (r *repo) GetBucket(ctx context.Context, name string) (slipway.Bucket, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT name, created_at FROM %s WHERE name = ?`, r.buckets)

	var b slipway.Bucket
	var createdAt string

	err := r.db.QueryRowContext(ctx, query, name).Scan(&b.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return slipway.Bucket{}, slipway.ErrNotFound
		}
		return slipway.Bucket{}, fmt.Errorf("get bucket: %w", err)
	}

	b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return slipway.Bucket{}, fmt.Errorf("get bucket: parse created_at: %w", err)
	}

	return b, nil
}

func (r *repo) PutBucket(ctx context.Context, bucket slipway.Bucket) (slipway.Bucket, error) {
	createdAt := bucket.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (name, created_at) VALUES (?, ?)`, r.buckets)

	_, err := r.db.ExecContext(ctx, query, bucket.Name, createdAt.UTC().Format(timeFormat))
	if err != nil {
		if isConstraintErr(err) {
			return slipway.Bucket{}, slipway.ErrConflict
		}
		return slipway.Bucket{}, fmt.Errorf("put bucket: %w", err)
	}

	return slipway.Bucket{Name: bucket.Name, CreatedAt: createdAt}, nil
}

func (r *repo) DeleteBucket(ctx context.Context, name string) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE name = ?`, r.buckets)

	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bucket: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("delete bucket: %w", slipway.ErrNotFound)
	}

	return nil
}

func (r *repo) ListBuckets(ctx context.Context) ([]slipway.Bucket, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT name, created_at FROM %s ORDER BY name`, r.buckets)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := make([]slipway.Bucket, 0)
	for rows.Next() {
		var b slipway.Bucket
		var createdAt string

		if scanErr := rows.Scan(&b.Name, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("list buckets: scan: %w", scanErr)
		}

		b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("list buckets: parse created_at: %w", err)
		}

		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: rows: %w", err)
	}

	return buckets, nil
}

const objectColumns = "id, bucket_name, object_key, size_bytes, content_type, checksum, status, grant_expires_at, created_at, updated_at"

func (r *repo) GetObject(ctx context.Context, bucket, key string) (slipway.ObjectInfo, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE bucket_name = ? AND object_key = ?`, objectColumns, r.objects)

	o, err := scanObject(r.db.QueryRowContext(ctx, query, bucket, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return slipway.ObjectInfo{}, slipway.ErrNotFound
		}
		return slipway.ObjectInfo{}, fmt.Errorf("get object: %w", err)
	}

	return o, nil
}

func (r *repo) UpsertObject(ctx context.Context, info slipway.ObjectInfo) (slipway.ObjectInfo, error) {
	now := time.Now().UTC()

	// The conflict clause leaves id and created_at untouched so an
	// update preserves them.
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket_name, object_key) DO UPDATE
		SET size_bytes = excluded.size_bytes,
			content_type = excluded.content_type,
			checksum = excluded.checksum,
			status = excluded.status,
			grant_expires_at = excluded.grant_expires_at,
			updated_at = excluded.updated_at`, r.objects, objectColumns)

	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), info.Bucket, info.Key, info.SizeBytes, info.ContentType, info.Checksum,
		string(info.Status), info.GrantExpiresAt.UTC().Format(timeFormat),
		now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return slipway.ObjectInfo{}, fmt.Errorf("upsert object: %w", err)
	}

	return r.GetObject(ctx, info.Bucket, info.Key)
}

func (r *repo) DeleteObject(ctx context.Context, bucket, key string) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE bucket_name = ? AND object_key = ?`, r.objects)

	result, err := r.db.ExecContext(ctx, query, bucket, key)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete object: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("delete object: %w", slipway.ErrNotFound)
	}

	return nil
}

func (r *repo) ListCommitted(ctx context.Context, bucket string, q slipway.ListQuery) (slipway.ListResult, error) {
	afterKey, err := slipway.DecodeCursor(q.Cursor)
	if err != nil {
		return slipway.ListResult{}, fmt.Errorf("list committed: %w", err)
	}

	escapedPrefix := slipway.EscapeLikePattern(q.Prefix)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE bucket_name = ? AND status = ? AND object_key LIKE ? || '%%' ESCAPE '\' AND object_key > ?
		ORDER BY object_key
		LIMIT ?
	`, objectColumns, r.objects)

	rows, err := r.db.QueryContext(ctx, query, bucket, string(slipway.StatusCommitted), escapedPrefix, afterKey, q.Limit+1)
	if err != nil {
		return slipway.ListResult{}, fmt.Errorf("list committed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]slipway.ObjectInfo, 0, q.Limit)
	for rows.Next() {
		o, scanErr := scanObject(rows)
		if scanErr != nil {
			return slipway.ListResult{}, fmt.Errorf("list committed: scan: %w", scanErr)
		}
		items = append(items, o)
	}

	if err := rows.Err(); err != nil {
		return slipway.ListResult{}, fmt.Errorf("list committed: rows: %w", err)
	}

	var nextCursor string
	if len(items) > q.Limit {
		// Cursor points to the last item of the current page
		nextCursor = slipway.EncodeCursor(items[q.Limit-1].Key)
		items = items[:q.Limit]
	}

	return slipway.ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *repo) CountObjects(ctx context.Context, bucket string) (int64, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT COUNT(*) FROM %s WHERE bucket_name = ?`, r.objects)

	var n int64
	if err := r.db.QueryRowContext(ctx, query, bucket).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}

	return n, nil
}

func (r *repo) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]slipway.ObjectInfo, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status = ? AND grant_expires_at < ?
		ORDER BY grant_expires_at
		LIMIT ?
	`, objectColumns, r.objects)

	rows, err := r.db.QueryContext(ctx, query, string(slipway.StatusPending), before.UTC().Format(timeFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]slipway.ObjectInfo, 0, limit)
	for rows.Next() {
		o, scanErr := scanObject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list expired pending: scan: %w", scanErr)
		}
		items = append(items, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired pending: rows: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (slipway.ObjectInfo, error) {
	var o slipway.ObjectInfo
	var idStr, status, grantExpiresAt, createdAt, updatedAt string

	err := row.Scan(
		&idStr, &o.Bucket, &o.Key, &o.SizeBytes, &o.ContentType, &o.Checksum,
		&status, &grantExpiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return slipway.ObjectInfo{}, err
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return slipway.ObjectInfo{}, fmt.Errorf("parse uuid: %w", err)
	}

	o.Status = slipway.ObjectStatus(status)

	for _, f := range []struct {
		raw  string
		dest *time.Time
	}{
		{grantExpiresAt, &o.GrantExpiresAt},
		{createdAt, &o.CreatedAt},
		{updatedAt, &o.UpdatedAt},
	} {
		*f.dest, err = time.Parse(time.RFC3339Nano, f.raw)
		if err != nil {
			return slipway.ObjectInfo{}, fmt.Errorf("parse timestamp: %w", err)
		}
	}

	return o, nil
}
