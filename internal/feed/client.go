package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPageSize    = 100
	defaultHTTPTimeout = 30 * time.Second
	tokenExpirySlack   = 60 * time.Second
)

// Config captures the runtime settings required to talk to the feed API.
type Config struct {
	BaseURL   string
	AuthURL   string
	UserAgent string
	PageSize  int
}

// Credentials hold the OAuth2 client and account identity. Username and
// Password are optional; without them the client falls back to the
// client-credentials grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Client enumerates posts from the feed API with token-authenticated
// paginated requests.
type Client struct {
	cfg        Config
	creds      Credentials
	httpClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a feed client.
func NewClient(cfg Config, creds Credentials, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			BaseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			AuthURL:   strings.TrimSpace(cfg.AuthURL),
			UserAgent: strings.TrimSpace(cfg.UserAgent),
			PageSize:  cfg.PageSize,
		},
		creds:      creds,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.PageSize <= 0 {
		client.cfg.PageSize = defaultPageSize
	}
	return client
}

// Listing enumerates up to limit posts from a collection, newest first,
// following pagination cursors until the limit or the end of the listing.
func (c *Client) Listing(ctx context.Context, collection string, limit int) ([]PostRecord, error) {
	if collection == "" {
		return nil, errors.New("feed listing: collection required")
	}
	if limit <= 0 {
		return nil, errors.New("feed listing: limit must be positive")
	}

	var (
		records []PostRecord
		after   string
	)
	for len(records) < limit {
		pageSize := c.cfg.PageSize
		if remaining := limit - len(records); remaining < pageSize {
			pageSize = remaining
		}

		page, next, err := c.listingPage(ctx, collection, pageSize, after)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if next == "" || len(page) == 0 {
			break
		}
		after = next
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ResolveCrosspost fetches the parent post behind a permalink.
func (c *Client) ResolveCrosspost(ctx context.Context, permalink string) (PostRecord, error) {
	permalink = strings.TrimSpace(permalink)
	if permalink == "" {
		return PostRecord{}, errors.New("feed crosspost: permalink required")
	}
	if !strings.HasPrefix(permalink, "/") {
		permalink = "/" + permalink
	}

	endpoint := c.cfg.BaseURL + strings.TrimSuffix(permalink, "/") + "?raw_json=1"
	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return PostRecord{}, err
	}

	// A post endpoint returns two listings: the post itself, then comments.
	var envelopes []listingEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return PostRecord{}, fmt.Errorf("feed crosspost: decode response: %w", err)
	}
	if len(envelopes) == 0 || len(envelopes[0].Data.Children) == 0 {
		return PostRecord{}, fmt.Errorf("feed crosspost: no post at %s", permalink)
	}
	return normalizePost(envelopes[0].Data.Children[0].Data), nil
}

func (c *Client) listingPage(ctx context.Context, collection string, pageSize int, after string) ([]PostRecord, string, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize))
	query.Set("raw_json", "1")
	if after != "" {
		query.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/new?%s", c.cfg.BaseURL, url.PathEscape(collection), query.Encode())

	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, "", err
	}

	var envelope listingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("feed listing: decode page: %w", err)
	}

	records := make([]PostRecord, 0, len(envelope.Data.Children))
	for _, child := range envelope.Data.Children {
		records = append(records, normalizePost(child.Data))
	}
	return records, envelope.Data.After, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("feed request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed request: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request: %s: http %d", endpoint, resp.StatusCode)
	}
	return body, nil
}

// bearer returns a valid access token, performing the OAuth2 handshake when
// the cached one is missing or near expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.expiry) > tokenExpirySlack {
		return c.token, nil
	}

	form := url.Values{}
	if c.creds.Username != "" {
		form.Set("grant_type", "password")
		form.Set("username", c.creds.Username)
		form.Set("password", c.creds.Password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("feed auth: new request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("feed auth: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feed auth: http %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("feed auth: decode grant: %w", err)
	}
	if grant.Error != "" {
		return "", fmt.Errorf("feed auth: %s", grant.Error)
	}
	if grant.AccessToken == "" {
		return "", errors.New("feed auth: empty access token")
	}
	c.token = grant.AccessToken
	c.expiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	return c.token, nil
}

type listingEnvelope struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data rawPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}
