package feed

import (
	"sort"
	"strings"
	"time"
)

// selfHost prefixes relative URLs the API occasionally emits for
// broken link posts ("/r/..." instead of an absolute URL).
const selfHost = "https://www.reddit.com"

type rawPost struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Author        string               `json:"author"`
	CreatedUTC    float64              `json:"created_utc"`
	Score         int                  `json:"score"`
	IsSelf        bool                 `json:"is_self"`
	Selftext      string               `json:"selftext"`
	URL           string               `json:"url"`
	Permalink     string               `json:"permalink"`
	Subreddit     string               `json:"subreddit"`
	MediaMetadata map[string]mediaItem `json:"media_metadata"`
	GalleryData   *galleryData         `json:"gallery_data"`
	CrosspostList []crosspostParent    `json:"crosspost_parent_list"`
}

type mediaItem struct {
	Source mediaSource `json:"s"`
}

type mediaSource struct {
	U   string `json:"u"`
	MP4 string `json:"mp4"`
	GIF string `json:"gif"`
}

type galleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type crosspostParent struct {
	Permalink string `json:"permalink"`
}

// normalizePost flattens a raw API payload into a PostRecord, deciding the
// kind by precedence: crosspost, self text, gallery, plain link.
func normalizePost(raw rawPost) PostRecord {
	record := PostRecord{
		ID:         raw.ID,
		Title:      strings.TrimSpace(raw.Title),
		Author:     raw.Author,
		CreatedAt:  time.Unix(int64(raw.CreatedUTC), 0).UTC(),
		Score:      raw.Score,
		Collection: raw.Subreddit,
		Permalink:  raw.Permalink,
	}

	switch {
	case len(raw.CrosspostList) > 0 && raw.CrosspostList[0].Permalink != "":
		record.Kind = KindCrosspost
		record.CrosspostOf = raw.CrosspostList[0].Permalink

	case raw.IsSelf:
		record.Kind = KindSelfText
		record.BodyText = raw.Selftext

	case len(raw.MediaMetadata) > 0:
		record.Kind = KindGallery
		record.SourceURLs = galleryURLs(raw)

	default:
		record.Kind = KindLink
		if url := normalizeLink(raw.URL); url != "" {
			record.SourceURLs = []string{url}
		}
	}
	return record
}

// galleryURLs picks the original-quality URL of every gallery item,
// preferring the gallery's own ordering and falling back to sorted media
// keys when the ordering block is absent.
func galleryURLs(raw rawPost) []string {
	order := make([]string, 0, len(raw.MediaMetadata))
	if raw.GalleryData != nil {
		for _, item := range raw.GalleryData.Items {
			if _, ok := raw.MediaMetadata[item.MediaID]; ok {
				order = append(order, item.MediaID)
			}
		}
	}
	if len(order) == 0 {
		for key := range raw.MediaMetadata {
			order = append(order, key)
		}
		sort.Strings(order)
	}

	urls := make([]string, 0, len(order))
	for _, key := range order {
		source := raw.MediaMetadata[key].Source
		switch {
		case source.U != "":
			urls = append(urls, source.U)
		case source.MP4 != "":
			urls = append(urls, source.MP4)
		case source.GIF != "":
			urls = append(urls, source.GIF)
		}
	}
	return urls
}

func normalizeLink(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if strings.HasPrefix(rawURL, "/r/") {
		return selfHost + rawURL
	}
	return rawURL
}
