// Package fetch resolves post URLs to per-host fetchers and downloads the
// content behind them into the sink. Fetchers are registered in priority
// order; the allow-list generic fetcher goes last as the fallback.
package fetch
