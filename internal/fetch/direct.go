package fetch

import (
	"context"
	"regexp"

	"harvester/internal/sink"
)

var directPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^i\.redd\.it$`),
	regexp.MustCompile(`^preview\.redd\.it$`),
}

// Direct handles the feed's own CDN hosts, whose URLs always point straight
// at the content.
type Direct struct {
	client *Client
	sink   *sink.Sink
}

// NewDirect constructs the CDN fetcher.
func NewDirect(client *Client, snk *sink.Sink) *Direct {
	return &Direct{client: client, sink: snk}
}

func (d *Direct) Name() string {
	return "direct"
}

func (d *Direct) HostPatterns() []*regexp.Regexp {
	return directPatterns
}

func (d *Direct) Fetch(ctx context.Context, rawURL, targetDir, prefix string) (sink.Result, error) {
	return fetchDirect(ctx, d.client, d.sink, rawURL, targetDir, prefix)
}
