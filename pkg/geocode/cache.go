package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// cacheKey returns SHA-256 hex of the case-folded address.
func cacheKey(addr AddressInput) string {
	fold := cases.Fold()
	normalized := fmt.Sprintf("%s|%s|%s",
		fold.String(strings.TrimSpace(addr.Street)),
		fold.String(strings.TrimSpace(addr.City)),
		fold.String(strings.TrimSpace(addr.Country)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache looks up a cached result, respecting the TTL if configured.
// Cached non-matches are returned too so providers are not asked again.
func (c *CascadeClient) checkCache(ctx context.Context, key string) (*Result, error) {
	query := "SELECT latitude, longitude, quality, matched, source FROM isuku.geocode_cache WHERE address_hash = $1"
	if c.cacheTTLDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", c.cacheTTLDays)
	}

	var r Result
	if err := c.pool.QueryRow(ctx, query, key).Scan(&r.Latitude, &r.Longitude, &r.Quality, &r.Matched, &r.Source); err != nil {
		return nil, err
	}

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Matched))
	return &r, nil
}

// storeCache upserts a result (match or non-match) into the cache.
func (c *CascadeClient) storeCache(ctx context.Context, key string, r *Result) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO isuku.geocode_cache (address_hash, latitude, longitude, quality, matched, source, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			source = EXCLUDED.source,
			cached_at = now()`,
		key, r.Latitude, r.Longitude, r.Quality, r.Matched, r.Source,
	)
	return eris.Wrap(err, "geocode: store cache")
}
