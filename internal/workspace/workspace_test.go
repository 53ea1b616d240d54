package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCollectionDirLowercasesAndCreates(t *testing.T) {
	root := t.TempDir()
	dir, err := CollectionDir(root, "EarthPorn")
	if err != nil {
		t.Fatalf("CollectionDir: %v", err)
	}
	if dir != filepath.Join(root, "ws-earthporn") {
		t.Fatalf("unexpected dir %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

func TestCollectionDirRejectsEmpty(t *testing.T) {
	if _, err := CollectionDir(t.TempDir(), "  "); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"ws-pics", "ws-earthporn", "other", "ws-"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "ws-notadir"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	collections, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if want := []string{"earthporn", "pics"}; !reflect.DeepEqual(collections, want) {
		t.Fatalf("got %v, want %v", collections, want)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	collections, err := Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(collections) != 0 {
		t.Fatalf("expected no collections, got %v", collections)
	}
}
