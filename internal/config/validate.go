package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return fmt.Errorf("paths.temp_dir is required")
	}
	if strings.TrimSpace(c.Paths.MetaDir) == "" {
		return fmt.Errorf("paths.meta_dir is required")
	}

	for _, endpoint := range []struct {
		name  string
		value string
	}{
		{"feed.base_url", c.Feed.BaseURL},
		{"feed.auth_url", c.Feed.AuthURL},
	} {
		parsed, err := url.Parse(endpoint.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s: %q is not an absolute URL", endpoint.name, endpoint.value)
		}
	}

	if c.Fetch.AllowListURL != "" {
		parsed, err := url.Parse(c.Fetch.AllowListURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("fetch.allow_list_url: %q is not an absolute URL", c.Fetch.AllowListURL)
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}

	if c.Fetch.RetryMaxDelay < c.Fetch.RetryBaseDelay {
		return fmt.Errorf("fetch.retry_max_delay (%d) must be >= fetch.retry_base_delay (%d)",
			c.Fetch.RetryMaxDelay, c.Fetch.RetryBaseDelay)
	}
	return nil
}
