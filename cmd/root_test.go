package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// testConfig returns a valid configuration for driver.
func testConfig(driver string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: driver},
		Server: config.ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
		Matching: config.MatchingConfig{
			DefaultRadiusKM:    10,
			AutoAssignRadiusKM: 15,
		},
		Geocode: config.GeocodeConfig{
			Country:      "Rwanda",
			FallbackCity: "Kigali",
			FallbackLat:  -1.9441,
			FallbackLon:  30.0619,
		},
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "seed", "nearby", "assign"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "isuku", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestNearbyCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range nearbyCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["collectors"])
	assert.True(t, names["pickups"])
}

func TestNearbyCommand_Flags(t *testing.T) {
	for _, name := range []string{"lat", "lon", "max-distance"} {
		assert.NotNil(t, nearbyCollectorsCmd.Flags().Lookup(name), "nearby collectors should have --%s", name)
		assert.NotNil(t, nearbyPickupsCmd.Flags().Lookup(name), "nearby pickups should have --%s", name)
	}
	assert.NotNil(t, nearbyPickupsCmd.Flags().Lookup("collector"))
}

func TestSeedCommand_Flags(t *testing.T) {
	flag := seedCmd.Flags().Lookup("per-area")
	require.NotNil(t, flag)
	assert.Equal(t, "10", flag.DefValue)
	assert.NotNil(t, seedCmd.Flags().Lookup("file"))
}

func TestAssignCommand_Args(t *testing.T) {
	assert.Error(t, assignCmd.Args(assignCmd, nil))
	assert.NoError(t, assignCmd.Args(assignCmd, []string{"7"}))
	assert.NotNil(t, assignCmd.Flags().Lookup("collector"))
}
