package env

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Well-known credential variables. Fetchers and the feed client declare which
// of these they need; nothing reads the process environment directly.
const (
	FeedClientID     = "FEED_CLIENT_ID"
	FeedClientSecret = "FEED_CLIENT_SECRET"
	FeedUsername     = "FEED_USERNAME"
	FeedPassword     = "FEED_PASSWORD"
	ImgurClientID    = "IMGUR_CLIENT_ID"
	GfycatClientID   = "GFYCAT_CLIENT_ID"
	GfycatSecret     = "GFYCAT_CLIENT_SECRET"
)

// Requirement names one credential a component cannot run without.
type Requirement struct {
	Component string
	Key       string
}

// Requirer is implemented by components that need startup credentials.
type Requirer interface {
	RequiredEnv() []string
}

// MissingError reports every absent credential at once so the operator can fix
// them in a single pass.
type MissingError struct {
	Missing []Requirement
}

func (e *MissingError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, req := range e.Missing {
		parts = append(parts, req.Component+"."+req.Key)
	}
	return "missing required environment: " + strings.Join(parts, ", ")
}

// Env holds validated credential values keyed by variable name.
type Env map[string]string

// Get returns the value for key, or empty when unset.
func (e Env) Get(key string) string {
	return e[key]
}

// Has reports whether key is present and non-empty.
func (e Env) Has(key string) bool {
	return strings.TrimSpace(e[key]) != ""
}

// Ensure loads a .env file when present, then collects and validates every
// requirement. Core requirements are always checked; component requirements
// come from the supplied requirers, namespaced by component name for error
// reporting. Optional keys are captured when set but never cause failure.
func Ensure(components map[string]Requirer, optional ...string) (Env, error) {
	// Missing .env is the normal case; values already in the environment win.
	_ = godotenv.Load()

	env := Env{}
	var missing []Requirement

	for _, key := range []string{FeedClientID, FeedClientSecret} {
		if !capture(env, key) {
			missing = append(missing, Requirement{Component: "core", Key: key})
		}
	}
	for _, key := range optional {
		capture(env, key)
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		requirer := components[name]
		if requirer == nil {
			continue
		}
		for _, key := range requirer.RequiredEnv() {
			if !capture(env, key) {
				missing = append(missing, Requirement{Component: name, Key: key})
			}
		}
	}

	if len(missing) > 0 {
		return nil, &MissingError{Missing: missing}
	}
	return env, nil
}

// Describe renders the startup listing of which components found their
// credentials, in the order they were checked.
func Describe(components map[string]Requirer) string {
	var sb strings.Builder
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		requirer := components[name]
		if requirer == nil || len(requirer.RequiredEnv()) == 0 {
			fmt.Fprintf(&sb, "%s: no environment requirements\n", name)
			continue
		}
		for _, key := range requirer.RequiredEnv() {
			state := "ok"
			if strings.TrimSpace(os.Getenv(key)) == "" {
				state = "MISSING"
			}
			fmt.Fprintf(&sb, "%s.%s: %s\n", name, key, state)
		}
	}
	return sb.String()
}

// IsMissing reports whether err is a credential validation failure.
func IsMissing(err error) bool {
	var missingErr *MissingError
	return errors.As(err, &missingErr)
}

func capture(env Env, key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return false
	}
	env[key] = value
	return true
}
