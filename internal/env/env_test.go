package env

import (
	"strings"
	"testing"
)

type fakeRequirer []string

func (f fakeRequirer) RequiredEnv() []string { return f }

func TestEnsureCollectsAllMissingKeys(t *testing.T) {
	t.Setenv(FeedClientID, "")
	t.Setenv(FeedClientSecret, "")
	t.Setenv(ImgurClientID, "")

	_, err := Ensure(map[string]Requirer{
		"imgur": fakeRequirer{ImgurClientID},
	})
	if err == nil {
		t.Fatal("expected missing environment error")
	}
	if !IsMissing(err) {
		t.Fatalf("expected MissingError, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{"core." + FeedClientID, "core." + FeedClientSecret, "imgur." + ImgurClientID} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestEnsureCapturesValuesAndOptionals(t *testing.T) {
	t.Setenv(FeedClientID, "id")
	t.Setenv(FeedClientSecret, "secret")
	t.Setenv(FeedUsername, "user")
	t.Setenv(FeedPassword, "")

	got, err := Ensure(nil, FeedUsername, FeedPassword)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got.Get(FeedClientID) != "id" {
		t.Fatalf("unexpected client id: %q", got.Get(FeedClientID))
	}
	if !got.Has(FeedUsername) {
		t.Fatal("optional username should be captured")
	}
	if got.Has(FeedPassword) {
		t.Fatal("empty optional password should not be captured")
	}
}

func TestEnsureWhitespaceCountsAsMissing(t *testing.T) {
	t.Setenv(FeedClientID, "   ")
	t.Setenv(FeedClientSecret, "secret")

	_, err := Ensure(nil)
	if err == nil {
		t.Fatal("expected error for whitespace-only value")
	}
}
