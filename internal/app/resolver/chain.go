package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/noFlowWater/yukebox-sub000/internal/infra/config"
)

// Chain tries each provider in order until one produces a result.
type Chain struct {
	providers []Resolver
}

// NewChain creates a chain over the given providers.
func NewChain(providers []Resolver) *Chain {
	return &Chain{providers: providers}
}

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	if len(cfg.Resolver.Providers) == 0 {
		return nil, errors.New("no resolver providers configured")
	}

	var providers []Resolver
	for i, pcfg := range cfg.Resolver.Providers {
		var provider Resolver
		var err error
		switch pcfg.Type {
		case "direct":
			provider, err = NewDirectProvider(pcfg.Settings)
		case "ytdlp":
			provider, err = NewYtdlpProvider(pcfg.Settings)
		default:
			return nil, errors.Newf("unsupported resolver provider type: %s (provider index %d)", pcfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}
		providers = append(providers, provider)
		zlog.Info().Msgf("registered resolver provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewChain(providers), nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "chain"
}

// Resolve tries each provider once, in order. Providers that report
// the reference as unsupported are skipped silently; the last real
// failure wins when nothing succeeds.
func (c *Chain) Resolve(ctx context.Context, ref string) (*Track, error) {
	var lastErr error
	for _, p := range c.providers {
		t, err := p.Resolve(ctx, ref)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		zlog.Debug().Msgf("resolver %s failed for %q: %v", p.Name(), ref, err)
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.Wrapf(ErrResolve, "no provider accepted %q", ref)
}

// Search asks the first provider that supports searching.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	var lastErr error
	for _, p := range c.providers {
		tracks, err := p.Search(ctx, query, limit)
		if err == nil {
			return tracks, nil
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.Wrapf(ErrResolve, "no provider can search")
}
