package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. It is embedded in both the
// database and the filename so an incompatible older layout is never read
// silently. Bump it when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// ensureCollectionLocked creates the per-collection post table on first use
// and returns its name. The caller must hold s.mu.
func (s *Store) ensureCollectionLocked(ctx context.Context, collection string) (string, error) {
	table := tableName(collection)
	if table == "col_" {
		return "", fmt.Errorf("collection name %q sanitizes to nothing", collection)
	}
	if _, ok := s.tables[table]; ok {
		return table, nil
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
        post_id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        created_utc INTEGER NOT NULL,
        recorded_at TEXT NOT NULL
    )`

	var execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	} = s.db
	if s.tx != nil {
		execer = s.tx
	}
	if _, err := execer.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("create collection table %s: %w", table, err)
	}
	s.tables[table] = struct{}{}
	return table, nil
}

func tableName(collection string) string {
	return "col_" + sanitizeCollection(collection)
}

// sanitizeCollection reduces a collection name to a lowercase identifier-safe
// form used for table names and the files table key.
func sanitizeCollection(collection string) string {
	folded := cases.Fold().String(strings.TrimSpace(collection))
	var sb strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
