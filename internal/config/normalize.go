package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeed()
	c.normalizeFetch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MetaDir) == "" {
		c.Paths.MetaDir = defaultMetaDir
	}
	if c.Paths.MetaDir, err = expandPath(c.Paths.MetaDir); err != nil {
		return fmt.Errorf("paths.meta_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFeed() {
	c.Feed.BaseURL = strings.TrimRight(strings.TrimSpace(c.Feed.BaseURL), "/")
	if c.Feed.BaseURL == "" {
		c.Feed.BaseURL = defaultFeedBaseURL
	}
	c.Feed.AuthURL = strings.TrimSpace(c.Feed.AuthURL)
	if c.Feed.AuthURL == "" {
		c.Feed.AuthURL = defaultFeedAuthURL
	}
	c.Feed.UserAgent = strings.TrimSpace(c.Feed.UserAgent)
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = defaultFeedUserAgent
	}
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = defaultFeedPageSize
	}
	if c.Feed.Limit <= 0 {
		c.Feed.Limit = defaultFeedLimit
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = defaultConcurrency
	}
	if c.Fetch.RequestTimeout <= 0 {
		c.Fetch.RequestTimeout = defaultRequestTimeout
	}
	if c.Fetch.RetryAttempts <= 0 {
		c.Fetch.RetryAttempts = defaultRetryAttempts
	}
	if c.Fetch.RetryBaseDelay <= 0 {
		c.Fetch.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.Fetch.RetryMaxDelay <= 0 {
		c.Fetch.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.Fetch.CollectionRetries <= 0 {
		c.Fetch.CollectionRetries = defaultCollectionRetries
	}
	if c.Fetch.CollectionBackoff <= 0 {
		c.Fetch.CollectionBackoff = defaultCollectionBackoff
	}
	if c.Fetch.SpoolMemoryLimit <= 0 {
		c.Fetch.SpoolMemoryLimit = defaultSpoolMemoryLimit
	}
	if c.Fetch.LedgerCommitEvery <= 0 {
		c.Fetch.LedgerCommitEvery = defaultLedgerCommitEvery
	}
	if c.Fetch.ProgressEveryPosts <= 0 {
		c.Fetch.ProgressEveryPosts = defaultProgressEveryPosts
	}
	c.Fetch.AllowListURL = strings.TrimSpace(c.Fetch.AllowListURL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
