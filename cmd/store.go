package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/store"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and brings its schema up to date.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newMatcher(st store.Store, opts ...matching.Option) *matching.Matcher {
	opts = append(opts, matching.WithAutoAssignRadius(cfg.Matching.AutoAssignRadiusKM))
	return matching.New(st, opts...)
}

// newGeocoder builds the fallback geocoder. On Postgres, results are cached
// in isuku.geocode_cache.
func newGeocoder(st store.Store) *geocode.CascadeClient {
	fopts := []geocode.FallbackOption{
		geocode.WithCountry(cfg.Geocode.Country),
		geocode.WithCity(cfg.Geocode.FallbackCity),
	}
	if cfg.Geocode.FallbackLat != 0 || cfg.Geocode.FallbackLon != 0 {
		fopts = append(fopts, geocode.WithCentre(cfg.Geocode.FallbackLat, cfg.Geocode.FallbackLon))
	}
	fallback := geocode.NewFallbackProvider(fopts...)
	var opts []geocode.CascadeOption
	if pg, ok := st.(*store.PostgresStore); ok {
		opts = append(opts, geocode.WithCache(pg.Pool(), cfg.Geocode.CacheTTLDays))
	}
	return geocode.NewCascadeClient([]geocode.Provider{fallback}, opts...)
}
