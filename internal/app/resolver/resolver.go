// Package resolver turns a URL or search query into a playable stream.
// Different providers implement different resolution strategies; a
// chain tries them in configured order.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrResolve     = errors.New("could not resolve track")
	ErrUnsupported = errors.New("provider does not support this reference")
)

// Track is the playable result of a resolution.
type Track struct {
	StreamURL string `json:"stream_url"` // URL mpv can play directly
	SourceURL string `json:"source_url"` // the reference the user supplied
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  int    `json:"duration"` // seconds, 0 when unknown
}

// Resolver is the interface for track resolvers. Implementations make
// a single attempt; failure is the caller's signal to skip the track.
type Resolver interface {
	// Resolve turns a URL or free-form query into a playable track.
	Resolve(ctx context.Context, ref string) (*Track, error)
	// Search returns up to limit candidate tracks for the query.
	Search(ctx context.Context, query string, limit int) ([]Track, error)
	// Name returns the provider name (used in config).
	Name() string
}
