package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isuku/isuku-dispatch/internal/store"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

func TestParseSeedFixture_Default(t *testing.T) {
	fx, err := parseSeedFixture(defaultSeedFixture)
	require.NoError(t, err)
	assert.Len(t, fx.Areas, 12)
	assert.Len(t, fx.Collectors, 1)
	assert.Equal(t, "GAS", fx.Areas[0].Code)
}

func TestParseSeedFixture_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "areas: [\n"},
		{"missing code", "areas:\n  - name: Gasabo\n"},
		{"one coordinate", "areas:\n  - code: GAS\n    name: Gasabo\n    latitude: -1.88\n"},
		{"collector without license", "collectors:\n  - name: Coop\n    phone_number: \"+250788000100\"\n"},
		{"collector one coordinate", "collectors:\n  - name: Coop\n    license_number: LIC-COOP-002\n    longitude: 30.06\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeedFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBuildSeedCollectors(t *testing.T) {
	fx, err := parseSeedFixture(defaultSeedFixture)
	require.NoError(t, err)
	gc := geocode.NewCascadeClient([]geocode.Provider{geocode.NewFallbackProvider()})

	cs, err := buildSeedCollectors(context.Background(), fx, 3, gc)
	require.NoError(t, err)
	// 12 areas x 3 plus one explicit collector; Kimironko is geocoded.
	require.Len(t, cs, 37)

	licenses := make(map[string]bool)
	for _, c := range cs {
		assert.True(t, c.HasLocation(), c.Name)
		assert.True(t, c.Available)
		assert.False(t, licenses[c.LicenseNumber], "duplicate license %s", c.LicenseNumber)
		licenses[c.LicenseNumber] = true
	}
	assert.True(t, licenses["LIC-KIM-001"])
	assert.True(t, licenses["LIC-COOP-001"])
	assert.Equal(t, 20.0, cs[len(cs)-1].ServiceRadiusKM)
}

func TestBuildSeedCollectors_SkipsUnplacedAreas(t *testing.T) {
	fx, err := parseSeedFixture([]byte("areas:\n  - code: KLA\n    name: Kampala Central\n    city: Kampala\n    country: Uganda\n"))
	require.NoError(t, err)
	gc := geocode.NewCascadeClient([]geocode.Provider{geocode.NewFallbackProvider()})

	cs, err := buildSeedCollectors(context.Background(), fx, 5, gc)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestAreaCollector_SpreadsAroundCentre(t *testing.T) {
	a := seedArea{Code: "GAS", Name: "Gasabo"}

	first := areaCollector(a, 1, 4, -1.9, 30.1)
	lat, lon := first.Coords()
	assert.InDelta(t, -1.89, lat, 1e-9)
	assert.InDelta(t, 30.1, lon, 1e-9)
	assert.Equal(t, "LIC-GAS-001", first.LicenseNumber)
	assert.Equal(t, "RWA-GAS001", first.VehicleNumber)
	assert.Equal(t, "+250781000001", first.PhoneNumber)

	second := areaCollector(a, 2, 4, -1.9, 30.1)
	lat, lon = second.Coords()
	assert.InDelta(t, -1.9, lat, 1e-9)
	assert.InDelta(t, 30.12, lon, 1e-9)
}

func TestSeedCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg = testConfig("sqlite")
	cfg.Store.SQLitePath = filepath.Join(dir, "seed.db")

	fixture := filepath.Join(dir, "areas.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(`
areas:
  - code: NYR
    name: Nyarugenge
    latitude: -1.95
    longitude: 30.05
`), 0o644))

	seedFile, seedPerArea = fixture, 2
	defer func() { seedFile, seedPerArea = "", 10 }()

	var out bytes.Buffer
	seedCmd.SetOut(&out)
	seedCmd.SetContext(context.Background())
	require.NoError(t, seedCmd.RunE(seedCmd, nil))
	assert.Contains(t, out.String(), "Total processed: 2")

	// Re-seeding updates in place.
	require.NoError(t, seedCmd.RunE(seedCmd, nil))

	st, err := store.NewSQLite(cfg.Store.SQLitePath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	cs, err := st.QueryCollectors(context.Background(), store.CollectorQuery{})
	require.NoError(t, err)
	assert.Len(t, cs, 2)
}
