package config

const (
	defaultDataDir = "~/.local/share/harvester/data"
	defaultTempDir = "~/.local/share/harvester/temp"
	defaultMetaDir = "~/.local/share/harvester/meta"

	defaultFeedBaseURL   = "https://oauth.reddit.com"
	defaultFeedAuthURL   = "https://www.reddit.com/api/v1/access_token"
	defaultFeedUserAgent = "harvester/0.4.0"
	defaultFeedPageSize  = 100
	defaultFeedLimit     = 1000

	defaultConcurrency        = 8
	defaultRequestTimeout     = 30
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 1
	defaultRetryMaxDelay      = 10
	defaultCollectionRetries  = 3
	defaultCollectionBackoff  = 5
	defaultSpoolMemoryLimit   = 512 * 1024
	defaultLedgerCommitEvery  = 50
	defaultProgressEveryPosts = 20

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			TempDir: defaultTempDir,
			MetaDir: defaultMetaDir,
		},
		Feed: Feed{
			BaseURL:   defaultFeedBaseURL,
			AuthURL:   defaultFeedAuthURL,
			UserAgent: defaultFeedUserAgent,
			PageSize:  defaultFeedPageSize,
			Limit:     defaultFeedLimit,
		},
		Fetch: Fetch{
			Concurrency:        defaultConcurrency,
			RequestTimeout:     defaultRequestTimeout,
			RetryAttempts:      defaultRetryAttempts,
			RetryBaseDelay:     defaultRetryBaseDelay,
			RetryMaxDelay:      defaultRetryMaxDelay,
			CollectionRetries:  defaultCollectionRetries,
			CollectionBackoff:  defaultCollectionBackoff,
			SpoolMemoryLimit:   defaultSpoolMemoryLimit,
			LedgerCommitEvery:  defaultLedgerCommitEvery,
			ProgressEveryPosts: defaultProgressEveryPosts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
