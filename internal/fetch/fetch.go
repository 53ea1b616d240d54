package fetch

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"harvester/internal/env"
	"harvester/internal/sink"
)

// ErrUnparseable indicates a URL matched a fetcher's host patterns but its
// shape could not be reduced to a content identifier.
var ErrUnparseable = errors.New("url not parseable")

// StatusError reports a non-success HTTP response from a remote host.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: http %d", e.URL, e.Code)
}

// IsNotFound reports whether err is a 404 or 410 response, which callers
// treat as terminal for the URL rather than retryable.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == 404 || statusErr.Code == 410
}

// Fetcher retrieves the content behind a URL and hands it to the sink.
type Fetcher interface {
	// Name identifies the fetcher in logs and env requirement listings.
	Name() string
	// HostPatterns returns the match expressions the registry resolves
	// against, tried in order against "host" and "host/firstPathSegment".
	HostPatterns() []*regexp.Regexp
	// Fetch downloads the content behind rawURL into targetDir. A
	// non-empty prefix groups the resulting file with its siblings, such
	// as the pages of one gallery.
	Fetch(ctx context.Context, rawURL, targetDir, prefix string) (sink.Result, error)
}

// Initializer is implemented by fetchers that need startup work, such as an
// allow-list download or a token handshake. Init failures abort the run.
type Initializer interface {
	Init(ctx context.Context, environ env.Env) error
}

// Closer is implemented by fetchers holding resources to release at
// shutdown.
type Closer interface {
	Close() error
}
