package fetch

import (
	"context"
	"regexp"
	"testing"

	"harvester/internal/sink"
)

type stubFetcher struct {
	name     string
	patterns []*regexp.Regexp
}

func (s *stubFetcher) Name() string                   { return s.name }
func (s *stubFetcher) HostPatterns() []*regexp.Regexp { return s.patterns }
func (s *stubFetcher) Fetch(context.Context, string, string, string) (sink.Result, error) {
	return sink.Result{}, nil
}

func newStub(name string, patterns ...string) *stubFetcher {
	s := &stubFetcher{name: name}
	for _, p := range patterns {
		s.patterns = append(s.patterns, regexp.MustCompile(p))
	}
	return s
}

func TestResolveRegistrationOrderWins(t *testing.T) {
	registry := NewRegistry()
	first := newStub("first", `^example\.com$`)
	second := newStub("second", `example`)
	registry.Register(first)
	registry.Register(second)

	fetcher, ok := registry.Resolve("https://example.com/thing.png")
	if !ok {
		t.Fatal("expected a match")
	}
	if fetcher.Name() != "first" {
		t.Fatalf("expected first registration to win, got %s", fetcher.Name())
	}
}

func TestResolveHostPathSegment(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStub("gallery", `^example\.com/galleries$`))

	if _, ok := registry.Resolve("https://example.com/galleries/abc"); !ok {
		t.Fatal("expected host/segment pattern to match")
	}
	if _, ok := registry.Resolve("https://example.com/other/abc"); ok {
		t.Fatal("expected non-gallery path to miss")
	}
}

func TestResolveUnsupportedHostStillCounted(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStub("only", `^known\.com$`))

	if _, ok := registry.Resolve("https://unknown.org/x"); ok {
		t.Fatal("expected no match for unknown host")
	}
	if _, ok := registry.Resolve("https://unknown.org/y"); ok {
		t.Fatal("expected no match for unknown host")
	}
	if _, ok := registry.Resolve("https://known.com/z"); !ok {
		t.Fatal("expected match for known host")
	}

	stats := registry.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat rows, got %d", len(stats))
	}
	if stats[0].Match != "unknown.org" || stats[0].Attempts != 2 || stats[0].Supported {
		t.Fatalf("unexpected top row: %+v", stats[0])
	}
	if stats[1].Match != "known.com" || stats[1].Attempts != 1 || !stats[1].Supported {
		t.Fatalf("unexpected second row: %+v", stats[1])
	}
}

func TestResolveCaseInsensitiveHost(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStub("lower", `^example\.com$`))

	if _, ok := registry.Resolve("https://EXAMPLE.com/a"); !ok {
		t.Fatal("expected host matching to lowercase")
	}
}

func TestResolveGarbageURL(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStub("any", `.`))

	if _, ok := registry.Resolve("not a url"); ok {
		t.Fatal("expected no match for URL without host")
	}
	if len(registry.Stats()) != 0 {
		t.Fatal("expected no stat row for unparseable URL")
	}
}
