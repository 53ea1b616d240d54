package testsupport

import (
	"path/filepath"
	"testing"

	"harvester/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.MetaDir = filepath.Join(base, "meta")
	cfgVal.Fetch.RetryBaseDelay = 0
	cfgVal.Fetch.CollectionBackoff = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithFeedEndpoints points the feed config at a test server.
func WithFeedEndpoints(baseURL, authURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feed.BaseURL = baseURL
		b.cfg.Feed.AuthURL = authURL
	}
}

// WithAllowListURL sets the generic fetcher's allow-list source.
func WithAllowListURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.AllowListURL = url
	}
}

// WithConcurrency overrides the dispatch concurrency ceiling.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.Concurrency = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
