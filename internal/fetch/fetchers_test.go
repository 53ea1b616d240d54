package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"harvester/internal/env"
	"harvester/internal/sink"
)

// pngHeader is enough of a real PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func testSink(t *testing.T) *sink.Sink {
	t.Helper()
	return sink.New(t.TempDir())
}

func TestGenericInitAndFetch(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer content.Close()

	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# test allow-list\n^127\\.0\\.0\\.1$\n\n^cdn\\.example\\.com$\n")
	}))
	defer list.Close()

	generic := NewGeneric(testClient(t), testSink(t), list.URL)
	if err := generic.Init(context.Background(), env.Env{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(generic.HostPatterns()) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(generic.HostPatterns()))
	}

	result, err := generic.Fetch(context.Background(), content.URL+"/pic", t.TempDir(), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Duplicate || result.Path == "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGenericInitFailsOnEmptyList(t *testing.T) {
	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "\n# nothing here\n")
	}))
	defer list.Close()

	generic := NewGeneric(testClient(t), testSink(t), list.URL)
	if err := generic.Init(context.Background(), env.Env{}); err == nil {
		t.Fatal("expected error for empty allow-list")
	}
}

func TestGenericInitFailsOnUnreachableList(t *testing.T) {
	list := httptest.NewServer(http.NotFoundHandler())
	defer list.Close()

	generic := NewGeneric(testClient(t), testSink(t), list.URL)
	if err := generic.Init(context.Background(), env.Env{}); err == nil {
		t.Fatal("expected error when the allow-list cannot be fetched")
	}
}

func TestTokenFetcherRefreshOnce(t *testing.T) {
	var grants atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		grants.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", grants.Load()),
			"expires_in":   3600,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	contentHits := atomic.Int64{}
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		contentHits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})
	mux.HandleFunc("/gfycats/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"gfyItem": map[string]any{"mp4Url": server.URL + "/media/clip.mp4"},
		})
	})

	fetcher := NewTokenFetcher(testClient(t), testSink(t),
		WithTokenEndpoints(server.URL+"/oauth/token", server.URL+"/gfycats"))
	environ := env.Env{env.GfycatClientID: "id", env.GfycatSecret: "secret"}
	if err := fetcher.Init(context.Background(), environ); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fetcher.Fetch(context.Background(),
				"https://redgifs.com/watch/someclip", t.TempDir(), "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if grants.Load() != 1 {
		t.Fatalf("expected a single token grant, got %d", grants.Load())
	}
	if contentHits.Load() == 0 {
		t.Fatal("expected content downloads")
	}
}

func neverExpires() time.Time {
	return time.Now().Add(24 * time.Hour)
}

func TestTokenFetcherUnparseableURL(t *testing.T) {
	fetcher := NewTokenFetcher(testClient(t), testSink(t))
	fetcher.token = "tok"
	fetcher.expiry = neverExpires()

	_, err := fetcher.Fetch(context.Background(), "https://redgifs.com/", t.TempDir(), "")
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}

func TestClientIDFetcherMetadataPath(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	var sawAuth atomic.Value
	mux.HandleFunc("/3/image/", func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"link": server.URL + "/raw/abc.png"},
		})
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})

	fetcher := NewClientIDFetcher(testClient(t), testSink(t),
		WithClientIDEndpoint(server.URL+"/3/image"))
	if err := fetcher.Init(context.Background(), env.Env{env.ImgurClientID: "cid"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	result, err := fetcher.Fetch(context.Background(), "https://imgur.com/abc", t.TempDir(), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.Path == "" {
		t.Fatal("expected a stored path")
	}
	if got := sawAuth.Load(); got != "Client-ID cid" {
		t.Fatalf("expected Client-ID header, got %v", got)
	}
}

func TestClientIDFetcherDirectLinkSkipsMetadata(t *testing.T) {
	var metaHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/3/image/", func(w http.ResponseWriter, r *http.Request) {
		metaHits.Add(1)
	})
	mux.HandleFunc("/abc.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := NewClientIDFetcher(testClient(t), testSink(t),
		WithClientIDEndpoint(server.URL+"/3/image"))

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/abc.png", t.TempDir(), ""); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if metaHits.Load() != 0 {
		t.Fatal("direct link should not hit the metadata endpoint")
	}
}

func TestContentID(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "https://redgifs.com/watch/HappyOtter", want: "happyotter"},
		{in: "https://gfycat.com/HappyOtter-size_restricted.gif", want: "happyotter"},
		{in: "https://imgur.com/aB3dE", want: "ab3de"},
		{in: "https://redgifs.com/", wantErr: true},
	}
	for _, tc := range cases {
		got, err := contentID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("contentID(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("contentID(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("contentID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
