package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"

	"harvester/internal/logging"
)

// ErrUnknownType indicates neither the declared content type nor content
// sniffing produced a usable file extension. Untyped content is rejected
// outright because it cannot be classified later.
var ErrUnknownType = errors.New("content type could not be determined")

// sniffLen is how much of the stream head is offered to the magic-number
// detector when the Content-Type header is missing or ambiguous.
const sniffLen = 128

// Hints carries request metadata that assists extension inference.
type Hints struct {
	// ContentType is the declared MIME type, usually from a response header.
	ContentType string
	// Prefix, when set, groups related files (e.g. one gallery) on disk.
	Prefix string
}

// Result describes one completed store operation.
type Result struct {
	// Digest is the hex SHA-256 of the stored bytes. Empty for duplicates,
	// mirroring the duplicate-sentinel contract.
	Digest string
	// Path is the file the content lives at (existing path for duplicates).
	Path string
	// Duplicate is true when an identical file already existed and no bytes
	// were written.
	Duplicate bool
	// Size is the total number of content bytes consumed from the stream.
	Size int64
}

// Sink hashes byte streams and persists them under content-addressed names.
// Files are write-once: a second store of identical content is detected by
// path existence and skipped.
type Sink struct {
	tempDir     string
	memoryLimit int
	noOp        bool
	logger      *slog.Logger
}

// Option customizes a Sink.
type Option func(*Sink)

// WithMemoryLimit overrides the in-memory staging threshold in bytes.
func WithMemoryLimit(limit int) Option {
	return func(s *Sink) {
		if limit > 0 {
			s.memoryLimit = limit
		}
	}
}

// WithNoOp makes Store compute hashes and paths without writing output files.
func WithNoOp(noOp bool) Option {
	return func(s *Sink) {
		s.noOp = noOp
	}
}

// WithLogger attaches a logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

const defaultMemoryLimit = 512 * 1024

// New constructs a Sink staging through tempDir.
func New(tempDir string, opts ...Option) *Sink {
	s := &Sink{
		tempDir:     tempDir,
		memoryLimit: defaultMemoryLimit,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store consumes r fully, computing a SHA-256 digest while spooling the bytes,
// then writes them to <targetDir>/<hex>.<ext>. The extension comes from the
// declared content type when usable, otherwise from sniffing the stream head.
// targetDir must exist. Identical content already on disk yields a duplicate
// result and no write.
func (s *Sink) Store(ctx context.Context, r io.Reader, hints Hints, targetDir string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sp := newSpool(s.tempDir, s.memoryLimit)
	defer sp.Close()

	digester := digest.SHA256.Digester()
	head := make([]byte, 0, sniffLen)

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if len(head) < sniffLen {
				head = append(head, chunk[:min(len(chunk), sniffLen-len(head))]...)
			}
			if _, err := digester.Hash().Write(chunk); err != nil {
				return Result{}, fmt.Errorf("hash content: %w", err)
			}
			if _, err := sp.Write(chunk); err != nil {
				return Result{}, fmt.Errorf("stage content: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, fmt.Errorf("read content: %w", readErr)
		}
	}

	ext := inferExtension(hints.ContentType, head)
	if ext == "" {
		return Result{}, ErrUnknownType
	}

	hexDigest := digester.Digest().Encoded()
	filename := hexDigest + "." + ext
	if hints.Prefix != "" {
		filename = hints.Prefix + "_" + hexDigest[:len(hexDigest)/2] + "." + ext
	}
	targetPath := filepath.Join(targetDir, filename)

	if _, err := os.Stat(targetPath); err == nil {
		s.logger.Debug("duplicate content skipped",
			logging.Args(logging.String("path", targetPath))...)
		return Result{Path: targetPath, Duplicate: true, Size: sp.Size()}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Result{}, fmt.Errorf("stat target: %w", err)
	}

	result := Result{Digest: hexDigest, Path: targetPath, Size: sp.Size()}
	if s.noOp {
		return result, nil
	}

	reader, err := sp.Reader()
	if err != nil {
		return Result{}, err
	}
	if err := writeFile(targetPath, reader); err != nil {
		return Result{}, err
	}
	return result, nil
}

func writeFile(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		// A concurrent store of the same content can win the race; that is
		// still a duplicate, not a failure.
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write target: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("sync target: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close target: %w", err)
	}
	return nil
}

// rejectedExtensions lists sniffed extensions that past runs showed to be
// junk payloads (error pages served with success status codes).
var rejectedExtensions = map[string]struct{}{
	"xsl": {},
}

func inferExtension(contentType string, head []byte) string {
	if ext := extensionFromContentType(contentType); ext != "" {
		return ext
	}
	if len(head) == 0 {
		return ""
	}
	detected := mimetype.Detect(head)
	ext := strings.TrimPrefix(detected.Extension(), ".")
	if ext == "" {
		return ""
	}
	if _, rejected := rejectedExtensions[ext]; rejected {
		return ""
	}
	return ext
}

func extensionFromContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	// Generic types carry no real information; fall through to sniffing.
	switch parsed {
	case "application/octet-stream", "text/plain":
		return ""
	}
	exts, err := mime.ExtensionsByType(parsed)
	if err != nil || len(exts) == 0 {
		return ""
	}
	// Prefer the shortest candidate for stable names (".jpg" over ".jpeg").
	best := exts[0]
	for _, ext := range exts[1:] {
		if len(ext) < len(best) {
			best = ext
		}
	}
	return strings.TrimPrefix(best, ".")
}
