package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"harvester/internal/env"
	"harvester/internal/sink"
)

var tokenHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(www\.)?redgifs\.com$`),
	regexp.MustCompile(`^(www\.|thumbs\.)?gfycat\.com$`),
}

// tokenExpirySlack refreshes slightly early so a token never expires while a
// request is in flight.
const tokenExpirySlack = 30 * time.Second

// TokenFetcher handles hosts that gate content metadata behind a temporary
// bearer token. The token is obtained with client credentials at Init and
// refreshed before expiry; concurrent fetches keep using the current token
// while exactly one goroutine refreshes.
type TokenFetcher struct {
	client  *Client
	sink    *sink.Sink
	authURL string
	apiURL  string

	clientID     string
	clientSecret string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenOption customizes a TokenFetcher.
type TokenOption func(*TokenFetcher)

// WithTokenEndpoints overrides the auth and metadata endpoints (tests).
func WithTokenEndpoints(authURL, apiURL string) TokenOption {
	return func(t *TokenFetcher) {
		t.authURL = authURL
		t.apiURL = apiURL
	}
}

// NewTokenFetcher constructs the bearer-token fetcher.
func NewTokenFetcher(client *Client, snk *sink.Sink, opts ...TokenOption) *TokenFetcher {
	t := &TokenFetcher{
		client:  client,
		sink:    snk,
		authURL: "https://api.gfycat.com/v1/oauth/token",
		apiURL:  "https://api.gfycat.com/v1/gfycats",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TokenFetcher) Name() string {
	return "token"
}

func (t *TokenFetcher) HostPatterns() []*regexp.Regexp {
	return tokenHostPatterns
}

func (t *TokenFetcher) RequiredEnv() []string {
	return []string{env.GfycatClientID, env.GfycatSecret}
}

// Init stores the credentials and performs the first token handshake so a
// bad credential fails the run up front.
func (t *TokenFetcher) Init(ctx context.Context, environ env.Env) error {
	t.clientID = environ.Get(env.GfycatClientID)
	t.clientSecret = environ.Get(env.GfycatSecret)
	_, err := t.bearer(ctx)
	return err
}

func (t *TokenFetcher) Fetch(ctx context.Context, rawURL, targetDir, prefix string) (sink.Result, error) {
	id, err := contentID(rawURL)
	if err != nil {
		return sink.Result{}, err
	}

	token, err := t.bearer(ctx)
	if err != nil {
		return sink.Result{}, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	resp, err := t.client.Get(ctx, t.apiURL+"/"+id, header)
	if err != nil {
		return sink.Result{}, err
	}
	defer resp.Body.Close()

	var meta struct {
		GfyItem struct {
			MP4URL  string `json:"mp4Url"`
			WebmURL string `json:"webmUrl"`
		} `json:"gfyItem"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return sink.Result{}, fmt.Errorf("token: decode metadata for %s: %w", id, err)
	}
	contentURL := meta.GfyItem.MP4URL
	if contentURL == "" {
		contentURL = meta.GfyItem.WebmURL
	}
	if contentURL == "" {
		return sink.Result{}, fmt.Errorf("token: no content url for %s: %w", id, ErrUnparseable)
	}
	return fetchDirect(ctx, t.client, t.sink, contentURL, targetDir, prefix)
}

// bearer returns a valid token, refreshing it under the mutex when the
// current one is within the expiry slack.
func (t *TokenFetcher) bearer(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Until(t.expiry) > tokenExpirySlack {
		return t.token, nil
	}

	body := fmt.Sprintf(
		`{"grant_type":"client_credentials","client_id":%q,"client_secret":%q}`,
		t.clientID, t.clientSecret,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("token: auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, URL: t.authURL}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("token: decode grant: %w", err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("token: empty access token from %s", t.authURL)
	}
	t.token = grant.AccessToken
	t.expiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	return t.token, nil
}

// contentID extracts the media identifier from a share URL: the last path
// segment, lowercased, with any "-extra-words" suffix dropped.
func contentID(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rawURL, ErrUnparseable)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	last = strings.ToLower(strings.TrimSpace(last))
	if idx := strings.IndexByte(last, '-'); idx > 0 {
		last = last[:idx]
	}
	if idx := strings.IndexByte(last, '.'); idx > 0 {
		last = last[:idx]
	}
	if last == "" || strings.ContainsAny(last, "?&=") {
		return "", fmt.Errorf("%s: %w", rawURL, ErrUnparseable)
	}
	return last, nil
}
