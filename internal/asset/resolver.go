// Package asset maps hymn identifiers to their remote recording and cache key.
package asset

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/glebovdev/hymnal-cli/internal/cache"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
)

// Extension of every remote recording.
const Extension = ".mp3"

// ErrUnresolvable matches every *UnresolvableError.
var ErrUnresolvable = errors.New("hymn has no audio")

// UnresolvableError reports a hymn that cannot be mapped to a recording.
type UnresolvableError struct {
	HymnID int
	Reason string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("hymn %d: %s", e.HymnID, e.Reason)
}

func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}

// Asset is a resolved recording location.
type Asset struct {
	HymnID int
	URL    string
	Key    cache.Key
}

// Lookup provides read-only access to hymn references.
type Lookup interface {
	Ref(id int) (hymn.Ref, bool)
}

// Resolver builds canonical recording locations under a fixed base URL.
type Resolver struct {
	base   *url.URL
	lookup Lookup
}

// NewResolver validates baseURL and returns a Resolver backed by lookup.
func NewResolver(baseURL string, lookup Lookup) (*Resolver, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid audio base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid audio base url %q: scheme must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid audio base url %q: missing host", baseURL)
	}

	return &Resolver{base: base, lookup: lookup}, nil
}

// KeyFor returns the cache key of a hymn's recording.
func KeyFor(hymnID int) cache.Key {
	return cache.Key(hymn.Number(hymnID))
}

// Resolve returns the recording location of hymnID. The remote name is derived
// from the hymn number, never from the display file name.
func (r *Resolver) Resolve(hymnID int) (Asset, error) {
	ref, ok := r.lookup.Ref(hymnID)
	if !ok {
		return Asset{}, &UnresolvableError{HymnID: hymnID, Reason: "not in catalog"}
	}
	if !ref.HasAudio() {
		return Asset{}, &UnresolvableError{HymnID: hymnID, Reason: "no recording available"}
	}

	key := KeyFor(ref.ID)
	return Asset{
		HymnID: ref.ID,
		URL:    r.base.JoinPath(string(key) + Extension).String(),
		Key:    key,
	}, nil
}
