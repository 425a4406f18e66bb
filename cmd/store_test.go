package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/internal/store"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig("sqlite")
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "test.db")

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestInitStore_Memory(t *testing.T) {
	cfg = testConfig("memory")

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*store.MemoryStore)
	assert.True(t, ok)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig("mysql")

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestInitStore_PostgresRequiresURL(t *testing.T) {
	cfg = testConfig("postgres")

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestNewMatcher_CollectorRadiusOverridesAutoAssignRadius(t *testing.T) {
	cfg = testConfig("memory")
	cfg.Matching.AutoAssignRadiusKM = 1
	st := store.NewMemory()
	ctx := context.Background()

	c := model.NewCollector("Aline", "+250788000002")
	c.ServiceRadiusKM = 50
	c.SetLocation(-1.95, 30.08) // ~2.2 km away
	require.NoError(t, st.CreateCollector(ctx, &c))

	p := model.NewPickupRequest(1, "KN 5 Rd")
	p.SetLocation(-1.95, 30.06)
	require.NoError(t, st.CreatePickup(ctx, &p))

	// The collector's own radius wins over the auto-assign radius.
	ok, err := newMatcher(st).AutoAssignCollector(ctx, &p)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewGeocoder_UsesConfiguredCentre(t *testing.T) {
	cfg = testConfig("memory")
	cfg.Geocode.FallbackLat = -1.95
	cfg.Geocode.FallbackLon = 30.05

	res, err := newGeocoder(store.NewMemory()).Geocode(context.Background(), geocode.AddressInput{Street: "KN 3 Rd"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, -1.95, res.Latitude)
	assert.Equal(t, 30.05, res.Longitude)
}
