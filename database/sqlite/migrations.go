package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mcrawfurd/slipway"
)

// Migrate creates the metadata tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, tables slipway.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				created_at TEXT NOT NULL
			)`, tables.Buckets),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL,
				bucket_name TEXT NOT NULL REFERENCES %s(name),
				object_key TEXT NOT NULL,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				content_type TEXT NOT NULL DEFAULT '',
				checksum TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				grant_expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
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
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// ValidateSchema checks that the metadata tables exist with the columns
// the repo depends on.
func ValidateSchema(ctx context.Context, db *sql.DB, tables slipway.Tables) error {
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
		if err := validateTableColumns(ctx, db, tableName, columns); err != nil {
			return err
		}
	}

	return nil
}

func validateTableColumns(ctx context.Context, db *sql.DB, tableName string, expected []string) error {
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, tableName) //nolint:gosec // G201: table name is validated

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("validate schema: query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("validate schema: scan column: %w", err)
		}
		actual[name] = true
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate schema: rows: %w", err)
	}

	if len(actual) == 0 {
		return fmt.Errorf("validate schema: table %s does not exist", tableName)
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
