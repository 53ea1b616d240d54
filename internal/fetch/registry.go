package fetch

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry resolves URLs to fetchers in registration order. Earlier
// registrations win when more than one fetcher claims a host, so callers
// register the most specific fetchers first.
type Registry struct {
	entries []registration

	mu     sync.Mutex
	counts map[string]*hostCounter
}

type registration struct {
	fetcher  Fetcher
	patterns []*regexp.Regexp
}

type hostCounter struct {
	attempts  atomic.Int64
	supported bool
}

// HostStat is one row of a usage snapshot.
type HostStat struct {
	Match     string
	Attempts  int64
	Supported bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: map[string]*hostCounter{}}
}

// Register appends a fetcher. Resolution order follows registration order.
func (r *Registry) Register(f Fetcher) {
	r.entries = append(r.entries, registration{fetcher: f, patterns: f.HostPatterns()})
}

// Fetchers returns the registered fetchers in resolution order.
func (r *Registry) Fetchers() []Fetcher {
	out := make([]Fetcher, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.fetcher)
	}
	return out
}

// Resolve returns the first registered fetcher whose patterns match the
// URL's host or host plus first path segment. Every call counts the match
// string so unsupported hosts still show up in usage reports. A nil fetcher
// with ok=false means no fetcher claims the URL.
func (r *Registry) Resolve(rawURL string) (Fetcher, bool) {
	match, fetcher := r.resolve(rawURL)
	if match == "" {
		return nil, false
	}
	r.count(match, fetcher != nil)
	return fetcher, fetcher != nil
}

func (r *Registry) resolve(rawURL string) (string, Fetcher) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", nil
	}
	host := strings.ToLower(parsed.Hostname())

	candidates := []string{host}
	if seg := firstPathSegment(parsed.Path); seg != "" {
		candidates = append(candidates, host+"/"+seg)
	}

	for _, e := range r.entries {
		for _, pattern := range e.patterns {
			for _, candidate := range candidates {
				if pattern.MatchString(candidate) {
					return candidate, e.fetcher
				}
			}
		}
	}
	return host, nil
}

func firstPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.ToLower(trimmed)
}

func (r *Registry) count(match string, supported bool) {
	r.mu.Lock()
	counter, ok := r.counts[match]
	if !ok {
		counter = &hostCounter{supported: supported}
		r.counts[match] = counter
	}
	r.mu.Unlock()
	counter.attempts.Add(1)
}

// Stats returns a snapshot of per-host attempt counts sorted by attempts
// descending, then by match string for stable output.
func (r *Registry) Stats() []HostStat {
	r.mu.Lock()
	stats := make([]HostStat, 0, len(r.counts))
	for match, counter := range r.counts {
		stats = append(stats, HostStat{
			Match:     match,
			Attempts:  counter.attempts.Load(),
			Supported: counter.supported,
		})
	}
	r.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Attempts != stats[j].Attempts {
			return stats[i].Attempts > stats[j].Attempts
		}
		return stats[i].Match < stats[j].Match
	})
	return stats
}
