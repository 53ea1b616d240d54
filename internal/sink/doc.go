// Package sink persists fetched byte streams as content-addressed files.
//
// Streams are staged through a bounded in-memory spool that spills to the
// temp root, hashed with SHA-256 as they arrive, and written once under
// <hex-digest>.<ext>. Extension inference tries the declared Content-Type
// first and falls back to magic-number sniffing; content that resolves to
// neither is rejected rather than stored untyped.
package sink
