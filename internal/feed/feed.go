package feed

import (
	"fmt"
	"time"
)

// Kind discriminates what a post carries. Exactly one of BodyText,
// SourceURLs, or CrosspostOf is populated for a given kind.
type Kind int

const (
	KindLink Kind = iota
	KindSelfText
	KindGallery
	KindCrosspost
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindSelfText:
		return "selftext"
	case KindGallery:
		return "gallery"
	case KindCrosspost:
		return "crosspost"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PostRecord is the normalized form of one feed post. The client flattens
// the API's heterogeneous payloads (galleries, crossposts, relative URLs)
// into this shape so downstream code never inspects raw payloads.
type PostRecord struct {
	ID          string
	Title       string
	Author      string
	CreatedAt   time.Time
	Score       int
	Kind        Kind
	BodyText    string   // KindSelfText only
	SourceURLs  []string // ordered; KindLink and KindGallery
	Collection  string
	CrosspostOf string // parent permalink; KindCrosspost only
	Permalink   string
}
