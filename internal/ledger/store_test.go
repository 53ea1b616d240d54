package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPost(id string) Post {
	return Post{
		ID:         id,
		Title:      "title " + id,
		Collection: "EarthPorn",
		CreatedAt:  time.Unix(1700000000, 0),
	}
}

func TestRecordPostIdempotent(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.RecordPost(ctx, testPost("abc123")); err != nil {
			t.Fatalf("RecordPost attempt %d: %v", i, err)
		}
	}

	count, err := store.CountPosts(ctx, "EarthPorn")
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded post, got %d", count)
	}
}

func TestHasProcessedSeesBufferedRows(t *testing.T) {
	store, err := Open(t.TempDir(), WithCommitEvery(1000))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordPost(ctx, testPost("buffered")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}

	// The batch has not committed yet; the row must still be visible.
	seen, err := store.HasProcessed(ctx, "EarthPorn", "buffered")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Fatal("expected buffered post to be visible before commit")
	}

	seen, err = store.HasProcessed(ctx, "EarthPorn", "missing")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if seen {
		t.Fatal("unexpected hit for unknown post")
	}
}

func TestFlushSurvivesCanceledRecordContext(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, WithCommitEvery(1000))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	recordCtx, cancel := context.WithCancel(context.Background())
	if err := store.RecordPost(recordCtx, testPost("outlived")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}
	// The recording context dies before the batch commits, as happens when
	// a dispatch pass finishes and its group context is canceled.
	cancel()

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after canceled record context: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	seen, err := reopened.HasProcessed(context.Background(), "EarthPorn", "outlived")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Fatal("expected post recorded under a canceled context to survive flush")
	}
}

func TestCloseFlushesAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, WithCommitEvery(1000))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.RecordPost(ctx, testPost("persist")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	seen, err := reopened.HasProcessed(ctx, "EarthPorn", "persist")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Fatal("expected post recorded before Close to persist")
	}
}

func TestCommitEveryTriggersAutoCommit(t *testing.T) {
	store, err := Open(t.TempDir(), WithCommitEvery(2))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordPost(ctx, testPost("one")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}
	if store.tx == nil {
		t.Fatal("expected open batch after first record")
	}
	if err := store.RecordPost(ctx, testPost("two")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}
	if store.tx != nil {
		t.Fatal("expected batch to commit once the interval is reached")
	}
}

func TestCollectionNamesFold(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	post := testPost("mixed")
	post.Collection = "Earth-Porn"
	if err := store.RecordPost(ctx, post); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}

	// Case and punctuation differences resolve to the same collection.
	seen, err := store.HasProcessed(ctx, "earthporn", "mixed")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Fatal("expected folded collection name to hit the same table")
	}
}

func TestRecordPostRejectsEmptyID(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.RecordPost(context.Background(), Post{Collection: "x"}); err == nil {
		t.Fatal("expected error for empty post id")
	}
}

func TestRecordFileAndFilesFor(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordPost(ctx, testPost("withfiles")); err != nil {
		t.Fatalf("RecordPost: %v", err)
	}
	for _, name := range []string{"b.jpg", "a.jpg", "b.jpg"} {
		if err := store.RecordFile(ctx, "EarthPorn", "withfiles", name); err != nil {
			t.Fatalf("RecordFile %s: %v", name, err)
		}
	}

	refs, err := store.FilesFor(ctx, "earthporn", "withfiles")
	if err != nil {
		t.Fatalf("FilesFor: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 file refs, got %d", len(refs))
	}
	if refs[0].Filename != "a.jpg" || refs[1].Filename != "b.jpg" {
		t.Fatalf("unexpected order: %q, %q", refs[0].Filename, refs[1].Filename)
	}
}

func TestSchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("tamper version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestSanitizeCollection(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"EarthPorn", "earthporn"},
		{"r/Earth-Porn ", "rearthporn"},
		{"snake_case", "snake_case"},
		{"123abc", "123abc"},
	}
	for _, tc := range cases {
		if got := sanitizeCollection(tc.in); got != tc.want {
			t.Errorf("sanitizeCollection(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
