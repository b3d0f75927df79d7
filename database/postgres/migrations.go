package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcrawfurd/slipway"
)

// Migrate creates the metadata tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables slipway.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, tables.Buckets),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID NOT NULL DEFAULT gen_random_uuid(),
				bucket_name TEXT NOT NULL REFERENCES %s(name),
				object_key TEXT NOT NULL,
				size_bytes BIGINT NOT NULL DEFAULT 0,
				content_type TEXT NOT NULL DEFAULT '',
				checksum TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				grant_expires_at TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (bucket_name, object_key)
			)`, tables.Objects, tables.Buckets),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_status_key_idx
			ON %s (bucket_name, status, object_key)`, tables.Objects, tables.Objects),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_pending_expiry_idx
			ON %s (grant_expires_at) WHERE status = 'PENDING'`, tables.Objects, tables.Objects),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// ValidateSchema checks that the metadata tables exist with the columns
// the repo depends on.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables slipway.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}

	expected := map[string][]string{
		tables.Buckets: {"name", "created_at"},
		tables.Objects: {
			"id", "bucket_name", "object_key", "size_bytes", "content_type",
			"checksum", "status", "grant_expires_at", "created_at", "updated_at",
		},
	}

	for tableName, columns := range expected {
		if err := validateTableColumns(ctx, pool, tableName, columns); err != nil {
			return err
		}
	}

	return nil
}

func validateTableColumns(ctx context.Context, pool *pgxpool.Pool, tableName string, expected []string) error {
	exists, err := tableExists(ctx, pool, tableName)
	if err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate schema: table %s does not exist", tableName)
	}

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1
	`

	rows, err := pool.Query(ctx, query, tableName)
	if err != nil {
		return fmt.Errorf("validate schema: query columns: %w", err)
	}
	defer rows.Close()

	actual := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("validate schema: scan column: %w", err)
		}
		actual[name] = true
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate schema: rows: %w", err)
	}

	var missing []string
	for _, col := range expected {
		if !actual[col] {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return errors.New("validate schema: table " + tableName + " missing columns: " + strings.Join(missing, ", "))
	}

	return nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`

	var exists bool
	if err := pool.QueryRow(ctx, query, tableName).Scan(&exists); err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}

	return exists, nil
}
