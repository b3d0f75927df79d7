package sqlite_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"

	"github.com/mcrawfurd/slipway"
	"github.com/mcrawfurd/slipway/database/sqlite"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	assert.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// setupTestRepo creates a repo with unique table names for test isolation
func setupTestRepo(t *testing.T) (slipway.MetadataRepo, func()) {
	t.Helper()

	ctx := context.Background()

	suffix := getRandomString(t)
	tables := slipway.Tables{
		Buckets: fmt.Sprintf("buckets_%s", suffix),
		Objects: fmt.Sprintf("objects_%s", suffix),
	}

	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err, "failed to open")

	// Each sqlite connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	err = sqlite.Migrate(ctx, db, tables)
	assert.NoError(t, err, "failed to migrate")

	err = sqlite.ValidateSchema(ctx, db, tables)
	assert.NoError(t, err, "failed to validate schema")

	repo, err := sqlite.NewRepo(db, tables)
	assert.NoError(t, err, "failed to create repo")

	cleanup := func() {
		_ = db.Close()
	}

	return repo, cleanup
}

// mustCreateBucket inserts a bucket record or fails the test.
func mustCreateBucket(t *testing.T, repo slipway.MetadataRepo, name string) {
	t.Helper()
	_, err := repo.PutBucket(context.Background(), slipway.Bucket{Name: name})
	assert.NoError(t, err, "put bucket %s", name)
}
