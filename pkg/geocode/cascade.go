package geocode

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isuku/isuku-dispatch/internal/db"
)

// CascadeClient tries geocode providers in order until one matches.
type CascadeClient struct {
	providers        []Provider
	pool             db.Pool
	cacheTTLDays     int
	batchConcurrency int
}

// CascadeOption configures the CascadeClient.
type CascadeOption func(*CascadeClient)

// WithCache stores results in isuku.geocode_cache through pool. A nil pool
// disables caching.
func WithCache(pool db.Pool, ttlDays int) CascadeOption {
	return func(c *CascadeClient) {
		c.pool = pool
		c.cacheTTLDays = ttlDays
	}
}

// WithBatchConcurrency sets the max parallel calls for BatchGeocode.
func WithBatchConcurrency(n int) CascadeOption {
	return func(c *CascadeClient) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

// NewCascadeClient creates a CascadeClient that tries providers in order.
func NewCascadeClient(providers []Provider, opts ...CascadeOption) *CascadeClient {
	c := &CascadeClient{
		providers:        providers,
		batchConcurrency: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode implements Client.
func (c *CascadeClient) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)

	if c.pool != nil {
		if cached, err := c.checkCache(ctx, key); err == nil && cached != nil {
			cached.ID = addr.ID
			return cached, nil
		}
	}

	var lastSource string
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Geocode(ctx, addr)
		if err != nil {
			zap.L().Debug("geocode: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}
		if result == nil {
			continue
		}
		if result.Matched {
			result.ID = addr.ID
			c.remember(ctx, key, result)
			return result, nil
		}
		lastSource = result.Source
	}

	noMatch := &Result{ID: addr.ID, Source: "cascade"}
	if lastSource != "" {
		noMatch.Source = lastSource
	}
	c.remember(ctx, key, noMatch)
	return noMatch, nil
}

// BatchGeocode implements Client by geocoding addresses in parallel.
func (c *CascadeClient) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	results := make([]Result, len(addrs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.batchConcurrency)

	for i, addr := range addrs {
		if addr.ID == "" {
			addr.ID = fmt.Sprintf("%d", i)
		}
		eg.Go(func() error {
			r, err := c.Geocode(gCtx, addr)
			if err != nil || r == nil {
				results[i] = Result{ID: addr.ID, Source: "cascade"}
				return nil //nolint:nilerr // individual geocode failures don't fail the batch
			}
			results[i] = *r
			return nil
		})
	}

	_ = eg.Wait()
	return results, ctx.Err()
}

func (c *CascadeClient) remember(ctx context.Context, key string, r *Result) {
	if c.pool == nil {
		return
	}
	if err := c.storeCache(ctx, key, r); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.Error(err))
	}
}
