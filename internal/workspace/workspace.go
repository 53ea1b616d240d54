package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// dirPrefix marks per-collection directories under the data root so refresh
// runs can tell them apart from anything else a user drops there.
const dirPrefix = "ws-"

// CollectionDir returns the target directory for a collection under the
// data root, creating it if needed.
func CollectionDir(dataRoot, collection string) (string, error) {
	collection = strings.ToLower(strings.TrimSpace(collection))
	if collection == "" {
		return "", fmt.Errorf("workspace: empty collection name")
	}
	dir := filepath.Join(dataRoot, dirPrefix+collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return dir, nil
}

// Discover lists the collections that already have a directory under the
// data root, sorted. Used by refresh runs to re-enumerate past collections.
func Discover(dataRoot string) ([]string, error) {
	entries, err := os.ReadDir(dataRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workspace: read %s: %w", dataRoot, err)
	}

	var collections []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, dirPrefix) {
			continue
		}
		if collection := strings.TrimPrefix(name, dirPrefix); collection != "" {
			collections = append(collections, collection)
		}
	}
	sort.Strings(collections)
	return collections, nil
}
