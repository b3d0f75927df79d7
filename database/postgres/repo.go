// Package postgres implements the metadata repo on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcrawfurd/slipway"
)

const uniqueViolation = "23505"

type Repo struct {
	pool    *pgxpool.Pool
	buckets string
	objects string
}

func NewRepo(pool *pgxpool.Pool, tables slipway.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, buckets: tables.Buckets, objects: tables.Objects}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) GetBucket(ctx context.Context, name string) (slipway.Bucket, error) {
	query := fmt.Sprintf(`
		SELECT name, created_at
		FROM %s
		WHERE name = $1
	`, r.buckets)

	var b slipway.Bucket
	err := r.pool.QueryRow(ctx, query, name).Scan(&b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return slipway.Bucket{}, slipway.ErrNotFound
		}
		return slipway.Bucket{}, fmt.Errorf("get bucket: %w", err)
	}

	return b, nil
}

func (r *Repo) PutBucket(ctx context.Context, bucket slipway.Bucket) (slipway.Bucket, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, created_at)
		VALUES ($1, $2)
		RETURNING name, created_at
	`, r.buckets)

	var b slipway.Bucket
	err := r.pool.QueryRow(ctx, query, bucket.Name, bucket.CreatedAt).Scan(&b.Name, &b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return slipway.Bucket{}, slipway.ErrConflict
		}
		return slipway.Bucket{}, fmt.Errorf("put bucket: %w", err)
	}

	return b, nil
}

func (r *Repo) DeleteBucket(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, r.buckets)

	result, err := r.pool.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete bucket: %w", slipway.ErrNotFound)
	}

	return nil
}

func (r *Repo) ListBuckets(ctx context.Context) ([]slipway.Bucket, error) {
	query := fmt.Sprintf(`SELECT name, created_at FROM %s ORDER BY name`, r.buckets)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]slipway.Bucket, 0)
	for rows.Next() {
		var b slipway.Bucket
		if err := rows.Scan(&b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("list buckets: scan: %w", err)
		}
		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: rows: %w", err)
	}

	return buckets, nil
}

const objectColumns = "id, bucket_name, object_key, size_bytes, content_type, checksum, status, grant_expires_at, created_at, updated_at"

func (r *Repo) GetObject(ctx context.Context, bucket, key string) (slipway.ObjectInfo, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE bucket_name = $1 AND object_key = $2
	`, objectColumns, r.objects)

	o, err := scanObject(r.pool.QueryRow(ctx, query, bucket, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return slipway.ObjectInfo{}, slipway.ErrNotFound
		}
		return slipway.ObjectInfo{}, fmt.Errorf("get object: %w", err)
	}

	return o, nil
}

func (r *Repo) UpsertObject(ctx context.Context, info slipway.ObjectInfo) (slipway.ObjectInfo, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (bucket_name, object_key, size_bytes, content_type, checksum, status, grant_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bucket_name, object_key) DO UPDATE
		SET size_bytes = EXCLUDED.size_bytes,
			content_type = EXCLUDED.content_type,
			checksum = EXCLUDED.checksum,
			status = EXCLUDED.status,
			grant_expires_at = EXCLUDED.grant_expires_at,
			updated_at = NOW()
		RETURNING %s
	`, r.objects, objectColumns)

	o, err := scanObject(r.pool.QueryRow(ctx, query,
		info.Bucket, info.Key, info.SizeBytes, info.ContentType, info.Checksum, info.Status, info.GrantExpiresAt,
	))
	if err != nil {
		return slipway.ObjectInfo{}, fmt.Errorf("upsert object: %w", err)
	}

	return o, nil
}

func (r *Repo) DeleteObject(ctx context.Context, bucket, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE bucket_name = $1 AND object_key = $2`, r.objects)

	result, err := r.pool.Exec(ctx, query, bucket, key)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete object: %w", slipway.ErrNotFound)
	}

	return nil
}

func (r *Repo) ListCommitted(ctx context.Context, bucket string, q slipway.ListQuery) (slipway.ListResult, error) {
	afterKey, err := slipway.DecodeCursor(q.Cursor)
	if err != nil {
		return slipway.ListResult{}, fmt.Errorf("list committed: %w", err)
	}

	escapedPrefix := slipway.EscapeLikePattern(q.Prefix)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE bucket_name = $1 AND status = $2 AND object_key LIKE $3 || '%%' AND object_key > $4
		ORDER BY object_key
		LIMIT $5
	`, objectColumns, r.objects)

	rows, err := r.pool.Query(ctx, query, bucket, slipway.StatusCommitted, escapedPrefix, afterKey, q.Limit+1)
	if err != nil {
		return slipway.ListResult{}, fmt.Errorf("list committed: %w", err)
	}
	defer rows.Close()

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

func (r *Repo) CountObjects(ctx context.Context, bucket string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE bucket_name = $1`, r.objects)

	var n int64
	if err := r.pool.QueryRow(ctx, query, bucket).Scan(&n); err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}

	return n, nil
}

func (r *Repo) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]slipway.ObjectInfo, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status = $1 AND grant_expires_at < $2
		ORDER BY grant_expires_at
		LIMIT $3
	`, objectColumns, r.objects)

	rows, err := r.pool.Query(ctx, query, slipway.StatusPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired pending: %w", err)
	}
	defer rows.Close()

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

func scanObject(row pgx.Row) (slipway.ObjectInfo, error) {
	var o slipway.ObjectInfo
	err := row.Scan(
		&o.ID, &o.Bucket, &o.Key, &o.SizeBytes, &o.ContentType, &o.Checksum,
		&o.Status, &o.GrantExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
