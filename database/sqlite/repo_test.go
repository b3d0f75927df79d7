package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcrawfurd/slipway"
)

func TestRepo_Buckets(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		created, err := repo.PutBucket(ctx, slipway.Bucket{Name: "photos"})
		assert.NoError(t, err)
		assert.Equal(t, "photos", created.Name)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetBucket(ctx, "photos")
		assert.NoError(t, err)
		assert.Equal(t, "photos", got.Name)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")

		_, err := repo.PutBucket(ctx, slipway.Bucket{Name: "photos"})
		assert.ErrorIs(t, err, slipway.ErrConflict)
	})

	t.Run("get missing", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()

		_, err := repo.GetBucket(context.Background(), "nope")
		assert.ErrorIs(t, err, slipway.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")

		assert.NoError(t, repo.DeleteBucket(ctx, "photos"))
		assert.ErrorIs(t, repo.DeleteBucket(ctx, "photos"), slipway.ErrNotFound)
	})

	t.Run("list ordered by name", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		for _, name := range []string{"zebra", "alpha", "middle"} {
			mustCreateBucket(t, repo, name)
		}

		buckets, err := repo.ListBuckets(ctx)
		assert.NoError(t, err)
		assert.Len(t, buckets, 3)
		assert.Equal(t, "alpha", buckets[0].Name)
		assert.Equal(t, "middle", buckets[1].Name)
		assert.Equal(t, "zebra", buckets[2].Name)
	})
}

func TestRepo_UpsertObject(t *testing.T) {
	t.Run("insert assigns id and timestamps", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")

		obj, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "a.txt",
			ContentType:    "text/plain",
			Status:         slipway.StatusPending,
			GrantExpiresAt: time.Now().Add(time.Minute),
		})
		assert.NoError(t, err)
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", obj.ID.String())
		assert.Equal(t, slipway.StatusPending, obj.Status)
		assert.False(t, obj.CreatedAt.IsZero())
		assert.False(t, obj.UpdatedAt.IsZero())
	})

	t.Run("update preserves id and created_at", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")

		first, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "a.txt",
			Status: slipway.StatusPending,
		})
		assert.NoError(t, err)

		second, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "a.txt",
			SizeBytes: 42, Checksum: "etag-1",
			Status: slipway.StatusCommitted,
		})
		assert.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)
		assert.Equal(t, slipway.StatusCommitted, second.Status)
		assert.Equal(t, int64(42), second.SizeBytes)
	})

	t.Run("same key in different buckets", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "one")
		mustCreateBucket(t, repo, "two")

		a, err := repo.UpsertObject(ctx, slipway.ObjectInfo{Bucket: "one", Key: "a.txt", Status: slipway.StatusCommitted})
		assert.NoError(t, err)
		b, err := repo.UpsertObject(ctx, slipway.ObjectInfo{Bucket: "two", Key: "a.txt", Status: slipway.StatusPending})
		assert.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)

		got, err := repo.GetObject(ctx, "one", "a.txt")
		assert.NoError(t, err)
		assert.Equal(t, slipway.StatusCommitted, got.Status)
	})
}

func TestRepo_DeleteObject(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	mustCreateBucket(t, repo, "photos")

	_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{Bucket: "photos", Key: "a.txt", Status: slipway.StatusCommitted})
	assert.NoError(t, err)

	assert.NoError(t, repo.DeleteObject(ctx, "photos", "a.txt"))
	assert.ErrorIs(t, repo.DeleteObject(ctx, "photos", "a.txt"), slipway.ErrNotFound)

	_, err = repo.GetObject(ctx, "photos", "a.txt")
	assert.ErrorIs(t, err, slipway.ErrNotFound)
}

func TestRepo_ListCommitted(t *testing.T) {
	seed := func(t *testing.T, repo slipway.MetadataRepo) {
		t.Helper()
		ctx := context.Background()
		mustCreateBucket(t, repo, "photos")

		for i := range 5 {
			_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
				Bucket: "photos",
				Key:    fmt.Sprintf("docs/file%d.txt", i),
				Status: slipway.StatusCommitted,
			})
			assert.NoError(t, err)
		}

		// A pending row that must never be listed.
		_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "docs/file2b.txt",
			Status:         slipway.StatusPending,
			GrantExpiresAt: time.Now().Add(time.Minute),
		})
		assert.NoError(t, err)

		// A committed row outside the prefix.
		_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "other/file.txt",
			Status: slipway.StatusCommitted,
		})
		assert.NoError(t, err)
	}

	t.Run("pending rows are invisible", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		seed(t, repo)

		result, err := repo.ListCommitted(context.Background(), "photos", slipway.ListQuery{Limit: 100})
		assert.NoError(t, err)
		assert.Len(t, result.Items, 6)
		for _, item := range result.Items {
			assert.Equal(t, slipway.StatusCommitted, item.Status)
			assert.NotEqual(t, "docs/file2b.txt", item.Key)
		}
	})

	t.Run("prefix filter", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		seed(t, repo)

		result, err := repo.ListCommitted(context.Background(), "photos", slipway.ListQuery{Prefix: "docs/", Limit: 100})
		assert.NoError(t, err)
		assert.Len(t, result.Items, 5)
	})

	t.Run("pagination walks every committed row once", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		seed(t, repo)
		ctx := context.Background()

		seen := make([]string, 0, 6)
		cursor := ""
		for {
			result, err := repo.ListCommitted(ctx, "photos", slipway.ListQuery{Limit: 2, Cursor: cursor})
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(result.Items), 2)

			for _, item := range result.Items {
				seen = append(seen, item.Key)
			}

			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		assert.Equal(t, []string{
			"docs/file0.txt", "docs/file1.txt", "docs/file2.txt",
			"docs/file3.txt", "docs/file4.txt", "other/file.txt",
		}, seen)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		seed(t, repo)

		_, err := repo.ListCommitted(context.Background(), "photos", slipway.ListQuery{Limit: 10, Cursor: "garbage!!"})
		assert.ErrorIs(t, err, slipway.ErrInvalidArgument)
	})

	t.Run("prefix with like metacharacters", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()
		mustCreateBucket(t, repo, "photos")

		_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "100%_done.txt", Status: slipway.StatusCommitted,
		})
		assert.NoError(t, err)
		_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "100x-done.txt", Status: slipway.StatusCommitted,
		})
		assert.NoError(t, err)

		result, err := repo.ListCommitted(ctx, "photos", slipway.ListQuery{Prefix: "100%", Limit: 10})
		assert.NoError(t, err)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, "100%_done.txt", result.Items[0].Key)
	})
}

func TestRepo_CountObjects(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	mustCreateBucket(t, repo, "photos")

	n, err := repo.CountObjects(ctx, "photos")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{Bucket: "photos", Key: "a.txt", Status: slipway.StatusCommitted})
	assert.NoError(t, err)
	_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{
		Bucket: "photos", Key: "b.txt",
		Status: slipway.StatusPending, GrantExpiresAt: time.Now().Add(time.Minute),
	})
	assert.NoError(t, err)

	// Pending rows count toward occupancy.
	n, err = repo.CountObjects(ctx, "photos")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepo_ListExpiredPending(t *testing.T) {
	t.Run("expired pending only", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")
		now := time.Now().UTC()

		_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "expired.txt",
			Status: slipway.StatusPending, GrantExpiresAt: now.Add(-time.Hour),
		})
		assert.NoError(t, err)

		_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "fresh.txt",
			Status: slipway.StatusPending, GrantExpiresAt: now.Add(time.Hour),
		})
		assert.NoError(t, err)

		_, err = repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "committed.txt",
			Status: slipway.StatusCommitted, GrantExpiresAt: now.Add(-time.Hour),
		})
		assert.NoError(t, err)

		rows, err := repo.ListExpiredPending(ctx, now, 10)
		assert.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, "expired.txt", rows[0].Key)
	})

	t.Run("sub-second cutoff after a whole-second expiry", func(t *testing.T) {
		repo, cleanup := setupTestRepo(t)
		defer cleanup()
		ctx := context.Background()

		mustCreateBucket(t, repo, "photos")

		// Timestamps are compared as text, so an expiry landing exactly
		// on a second must still sort before a cutoff a few hundred
		// milliseconds into that same second.
		expiry := time.Now().UTC().Truncate(time.Second)
		_, err := repo.UpsertObject(ctx, slipway.ObjectInfo{
			Bucket: "photos", Key: "on-the-second.txt",
			Status: slipway.StatusPending, GrantExpiresAt: expiry,
		})
		assert.NoError(t, err)

		rows, err := repo.ListExpiredPending(ctx, expiry.Add(400*time.Millisecond), 10)
		assert.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, "on-the-second.txt", rows[0].Key)
	})
}
