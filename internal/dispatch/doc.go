// Package dispatch runs collection passes: it enumerates feed posts, skips
// the already processed, fans their URLs out to per-host fetchers under a
// concurrency ceiling, and records terminal outcomes in the ledger.
package dispatch
