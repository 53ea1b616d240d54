package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store records which posts have been fully processed, keyed by
// (collection, post id). Rows are never updated or deleted; presence alone
// means "do not reprocess".
//
// Writes buffer inside an open transaction committed every commitEvery
// records so a crash loses at most one batch. All access is serialized
// through an internal mutex (single-writer discipline; reads ride along so
// they observe buffered rows).
type Store struct {
	mu          sync.Mutex
	db          *sql.DB
	tx          *sql.Tx
	path        string
	pending     int
	commitEvery int
	tables      map[string]struct{}
}

// Post is the durable subset of a feed post the ledger keeps.
type Post struct {
	ID         string
	Title      string
	Collection string
	CreatedAt  time.Time
}

// FileRef is one stored file associated with a processed post.
type FileRef struct {
	Filename  string
	PostID    string
	CreatedAt time.Time
}

// Option customizes an opened Store.
type Option func(*Store)

// WithCommitEvery overrides the batched-commit interval.
func WithCommitEvery(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.commitEvery = n
		}
	}
}

// Open initializes or connects to the ledger database under metaDir and
// verifies the schema version.
func Open(metaDir string, opts ...Option) (*Store, error) {
	dbPath := filepath.Join(metaDir, fmt.Sprintf("ledger_v%d.sqlite", schemaVersion))
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:          db,
		path:        dbPath,
		commitEvery: defaultCommitEvery,
		tables:      map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// HasProcessed reports whether the post is already recorded for collection,
// including rows buffered in the current uncommitted batch.
func (s *Store) HasProcessed(ctx context.Context, collection, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.ensureCollectionLocked(ctx, collection)
	if err != nil {
		return false, err
	}

	var one int
	row := s.querierLocked().QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE post_id = ?`, postID)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup post %s: %w", postID, err)
	}
	return true, nil
}

// RecordPost marks a post as processed. Recording the same post twice is a
// no-op (idempotent upsert).
func (s *Store) RecordPost(ctx context.Context, post Post) error {
	if post.ID == "" {
		return errors.New("post id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.ensureCollectionLocked(ctx, post.Collection)
	if err != nil {
		return err
	}
	if err := s.beginLocked(ctx); err != nil {
		return err
	}

	_, err = s.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (post_id, title, created_utc, recorded_at)
         VALUES (?, ?, ?, ?)`,
		post.ID,
		post.Title,
		post.CreatedAt.UTC().Unix(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record post %s: %w", post.ID, err)
	}
	return s.bumpLocked()
}

// RecordFile associates a stored filename with an already-recorded post.
func (s *Store) RecordFile(ctx context.Context, collection, postID, filename string) error {
	if filename == "" {
		return errors.New("filename is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureCollectionLocked(ctx, collection); err != nil {
		return err
	}
	if err := s.beginLocked(ctx); err != nil {
		return err
	}

	_, err := s.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO files (filename, collection, post_id, created_at)
         VALUES (?, ?, ?, ?)`,
		filename,
		sanitizeCollection(collection),
		postID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record file %s: %w", filename, err)
	}
	return s.bumpLocked()
}

// FilesFor returns the file references recorded for a post.
func (s *Store) FilesFor(ctx context.Context, collection, postID string) ([]FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.querierLocked().QueryContext(ctx,
		`SELECT filename, post_id, created_at FROM files
         WHERE collection = ? AND post_id = ? ORDER BY filename`,
		sanitizeCollection(collection), postID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var refs []FileRef
	for rows.Next() {
		var (
			ref FileRef
			raw string
		)
		if err := rows.Scan(&ref.Filename, &ref.PostID, &raw); err != nil {
			return nil, err
		}
		if created, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ref.CreatedAt = created
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CountPosts returns the number of recorded posts in a collection.
func (s *Store) CountPosts(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.ensureCollectionLocked(ctx, collection)
	if err != nil {
		return 0, err
	}
	var count int
	row := s.querierLocked().QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// CountFiles returns the number of file references recorded for a
// collection.
func (s *Store) CountFiles(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	row := s.querierLocked().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM files WHERE collection = ?`, sanitizeCollection(collection))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

// Flush commits the current batch, if any.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	commitErr := s.commitLocked()
	closeErr := s.db.Close()
	if commitErr != nil {
		return commitErr
	}
	return closeErr
}

const defaultCommitEvery = 50

func (s *Store) querierLocked() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) beginLocked(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	// The batch outlives individual record calls, so it must not die with
	// the caller's context: a canceled request would roll back every
	// buffered row before Flush gets to commit them.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	s.tx = tx
	s.pending = 0
	return nil
}

func (s *Store) bumpLocked() error {
	s.pending++
	if s.pending < s.commitEvery {
		return nil
	}
	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("commit ledger batch: %w", err)
	}
	return nil
}
