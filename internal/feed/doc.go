// Package feed enumerates posts from the OAuth2-protected feed API and
// normalizes its heterogeneous payloads into PostRecord values.
package feed
