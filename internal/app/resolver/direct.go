package resolver

import (
	"context"
	"net/url"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
)

// DirectProviderConfig configures the pass-through provider.
type DirectProviderConfig struct {
	Schemes []string `yaml:"schemes" mapstructure:"schemes"`
}

// DirectProvider accepts references that are already playable stream
// URLs and passes them through untouched. It cannot search.
type DirectProvider struct {
	schemes map[string]bool
}

// NewDirectProvider creates a DirectProvider from provider settings.
func NewDirectProvider(settings map[string]any) (*DirectProvider, error) {
	var cfg DirectProviderConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode direct provider settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Schemes) == 0 {
		cfg.Schemes = []string{"http", "https"}
	}

	schemes := make(map[string]bool, len(cfg.Schemes))
	for _, s := range cfg.Schemes {
		schemes[s] = true
	}
	return &DirectProvider{schemes: schemes}, nil
}

// Name returns the provider name.
func (p *DirectProvider) Name() string {
	return "direct"
}

// Resolve passes a well-formed URL through as its own stream URL.
func (p *DirectProvider) Resolve(_ context.Context, ref string) (*Track, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" || !p.schemes[u.Scheme] {
		return nil, ErrUnsupported
	}

	title := path.Base(u.Path)
	if title == "." || title == "/" {
		title = u.Host
	}

	return &Track{
		StreamURL: ref,
		SourceURL: ref,
		Title:     title,
	}, nil
}

// Search is not supported by the pass-through provider.
func (p *DirectProvider) Search(_ context.Context, _ string, _ int) ([]Track, error) {
	return nil, ErrUnsupported
}
