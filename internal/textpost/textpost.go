package textpost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"harvester/internal/feed"
)

// Result reports where a text post landed.
type Result struct {
	Path    string
	Skipped bool // the file already existed
}

var titleCleaner = regexp.MustCompile(`[^0-9a-z_]+`)

// Write renders a self-text post as a Markdown document
// <id>_<sanitized_title>.md under targetDir. An existing file is left
// untouched and reported as skipped.
func Write(post feed.PostRecord, targetDir string) (Result, error) {
	if post.Kind != feed.KindSelfText {
		return Result{}, fmt.Errorf("textpost: post %s is %s, not selftext", post.ID, post.Kind)
	}
	if post.ID == "" {
		return Result{}, errors.New("textpost: post id is empty")
	}

	filename := post.ID + "_" + sanitizeTitle(post.Title) + ".md"
	path := filepath.Join(targetDir, filename)
	if _, err := os.Stat(path); err == nil {
		return Result{Path: path, Skipped: true}, nil
	}

	var sb strings.Builder
	sb.WriteString("# " + post.Title + "\n")
	sb.WriteString("---\n")
	sb.WriteString("Author: " + post.Author + "\n")
	sb.WriteString("Created: " + post.CreatedAt.UTC().Format(time.RFC3339) + "\n")
	sb.WriteString("Collection: " + post.Collection + "\n")
	sb.WriteString("---\n")
	sb.WriteString(post.BodyText)

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("textpost: write %s: %w", filename, err)
	}
	return Result{Path: path}, nil
}

func sanitizeTitle(title string) string {
	lowered := strings.ToLower(title)
	lowered = strings.ReplaceAll(lowered, " ", "_")
	lowered = strings.ReplaceAll(lowered, "-", "_")
	return titleCleaner.ReplaceAllString(lowered, "")
}
