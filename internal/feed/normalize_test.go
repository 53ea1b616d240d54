package feed

import (
	"reflect"
	"testing"
)

func TestNormalizeSelfText(t *testing.T) {
	record := normalizePost(rawPost{
		ID:       "s1",
		IsSelf:   true,
		Selftext: "hello world",
	})
	if record.Kind != KindSelfText {
		t.Fatalf("expected selftext kind, got %s", record.Kind)
	}
	if record.BodyText != "hello world" {
		t.Fatalf("unexpected body %q", record.BodyText)
	}
	if len(record.SourceURLs) != 0 || record.CrosspostOf != "" {
		t.Fatal("selftext record must carry only body text")
	}
}

func TestNormalizeGalleryOrder(t *testing.T) {
	record := normalizePost(rawPost{
		ID: "g1",
		MediaMetadata: map[string]mediaItem{
			"zzz": {Source: mediaSource{U: "https://cdn/zzz.jpg"}},
			"aaa": {Source: mediaSource{MP4: "https://cdn/aaa.mp4"}},
		},
		GalleryData: &galleryData{Items: []struct {
			MediaID string `json:"media_id"`
		}{{MediaID: "zzz"}, {MediaID: "aaa"}}},
	})
	if record.Kind != KindGallery {
		t.Fatalf("expected gallery kind, got %s", record.Kind)
	}
	want := []string{"https://cdn/zzz.jpg", "https://cdn/aaa.mp4"}
	if !reflect.DeepEqual(record.SourceURLs, want) {
		t.Fatalf("expected gallery ordering preserved, got %v", record.SourceURLs)
	}
}

func TestNormalizeGalleryWithoutOrdering(t *testing.T) {
	record := normalizePost(rawPost{
		ID: "g2",
		MediaMetadata: map[string]mediaItem{
			"b": {Source: mediaSource{U: "https://cdn/b.jpg"}},
			"a": {Source: mediaSource{U: "https://cdn/a.jpg"}},
		},
	})
	want := []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}
	if !reflect.DeepEqual(record.SourceURLs, want) {
		t.Fatalf("expected sorted fallback ordering, got %v", record.SourceURLs)
	}
}

func TestNormalizeRelativeLink(t *testing.T) {
	record := normalizePost(rawPost{
		ID:  "l1",
		URL: "/r/pics/comments/xyz/broken/",
	})
	if record.Kind != KindLink {
		t.Fatalf("expected link kind, got %s", record.Kind)
	}
	want := "https://www.reddit.com/r/pics/comments/xyz/broken/"
	if len(record.SourceURLs) != 1 || record.SourceURLs[0] != want {
		t.Fatalf("expected absolute rewrite, got %v", record.SourceURLs)
	}
}

func TestNormalizeCrosspostWinsOverSelf(t *testing.T) {
	record := normalizePost(rawPost{
		ID:            "x1",
		IsSelf:        true,
		Selftext:      "ignored",
		CrosspostList: []crosspostParent{{Permalink: "/r/other/comments/p1/orig/"}},
	})
	if record.Kind != KindCrosspost {
		t.Fatalf("expected crosspost kind, got %s", record.Kind)
	}
	if record.CrosspostOf != "/r/other/comments/p1/orig/" {
		t.Fatalf("unexpected parent %q", record.CrosspostOf)
	}
	if record.BodyText != "" {
		t.Fatal("crosspost record must not carry body text")
	}
}
