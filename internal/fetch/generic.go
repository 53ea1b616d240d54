package fetch

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"harvester/internal/env"
	"harvester/internal/sink"
)

// Generic handles any host on a remotely maintained allow-list with a plain
// GET. The list is one pattern per line, fetched once at Init; it is the
// fallback fetcher, so it should be registered last.
type Generic struct {
	client  *Client
	sink    *sink.Sink
	listURL string

	patterns []*regexp.Regexp
}

// NewGeneric constructs the allow-list fetcher. Init must run before the
// first Fetch.
func NewGeneric(client *Client, snk *sink.Sink, allowListURL string) *Generic {
	return &Generic{client: client, sink: snk, listURL: allowListURL}
}

func (g *Generic) Name() string {
	return "generic"
}

func (g *Generic) HostPatterns() []*regexp.Regexp {
	return g.patterns
}

// Init downloads and compiles the allow-list. Any failure means the run
// cannot determine which hosts are safe, so the caller aborts.
func (g *Generic) Init(ctx context.Context, _ env.Env) error {
	resp, err := g.client.Get(ctx, g.listURL, nil)
	if err != nil {
		return fmt.Errorf("generic: fetch allow-list: %w", err)
	}
	defer resp.Body.Close()

	var patterns []*regexp.Regexp
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern, err := regexp.Compile(line)
		if err != nil {
			return fmt.Errorf("generic: bad allow-list pattern %q: %w", line, err)
		}
		patterns = append(patterns, pattern)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("generic: read allow-list: %w", err)
	}
	if len(patterns) == 0 {
		return fmt.Errorf("generic: allow-list %s is empty", g.listURL)
	}
	g.patterns = patterns
	return nil
}

func (g *Generic) Fetch(ctx context.Context, rawURL, targetDir, prefix string) (sink.Result, error) {
	return fetchDirect(ctx, g.client, g.sink, rawURL, targetDir, prefix)
}

// fetchDirect is the shared GET-then-store path used by fetchers whose URLs
// point straight at the content.
func fetchDirect(ctx context.Context, client *Client, snk *sink.Sink, rawURL, targetDir, prefix string) (sink.Result, error) {
	resp, err := client.Get(ctx, rawURL, nil)
	if err != nil {
		return sink.Result{}, err
	}
	defer resp.Body.Close()

	return snk.Store(ctx, resp.Body, sink.Hints{
		ContentType: resp.Header.Get("Content-Type"),
		Prefix:      prefix,
	}, targetDir)
}
