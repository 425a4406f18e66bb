package main

import (
	"context"
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/model"
)

var (
	nearbyLat         float64
	nearbyLon         float64
	nearbyMaxDistance float64
	nearbyCollectorID int64
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Proximity searches",
}

var nearbyCollectorsCmd = &cobra.Command{
	Use:   "collectors",
	Short: "List available collectors whose service area covers a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return eris.New("--lat and --lon are required")
		}
		km, err := searchRadius(nearbyMaxDistance)
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return listNearbyCollectors(cmd.Context(), cmd.OutOrStdout(), newMatcher(st),
			nearbyLat, nearbyLon, km)
	},
}

var nearbyPickupsCmd = &cobra.Command{
	Use:   "pickups",
	Short: "List unassigned pickups near a collector or a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		byPoint := cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon")
		if nearbyCollectorID == 0 && !byPoint {
			return eris.New("either --collector or --lat and --lon are required")
		}
		km, err := searchRadius(nearbyMaxDistance)
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loc := model.NewLocation(nearbyLat, nearbyLon)
		if nearbyCollectorID != 0 {
			c, err := st.GetCollector(cmd.Context(), nearbyCollectorID)
			if err != nil {
				return err
			}
			loc = c.Location
		}
		return listNearbyPickups(cmd.Context(), cmd.OutOrStdout(), newMatcher(st), loc, km)
	},
}

// searchRadius resolves --max-distance. Zero means the configured default.
func searchRadius(flag float64) (float64, error) {
	switch {
	case math.IsNaN(flag) || math.IsInf(flag, 0) || flag < 0:
		return 0, eris.Errorf("--max-distance must be a positive number, got %v", flag)
	case flag > 0:
		return flag, nil
	case cfg.Matching.DefaultRadiusKM > 0:
		return cfg.Matching.DefaultRadiusKM, nil
	}
	return matching.DefaultSearchRadiusKM, nil
}

func listNearbyCollectors(ctx context.Context, w io.Writer, m *matching.Matcher, lat, lon, km float64) error {
	matches, err := m.FindNearbyCollectors(ctx, lat, lon, km)
	if err != nil {
		return err
	}
	return printJSON(w, matches)
}

func listNearbyPickups(ctx context.Context, w io.Writer, m *matching.Matcher, loc model.Location, km float64) error {
	matches, err := m.PickupsNear(ctx, loc, km)
	if err != nil {
		if eris.Is(err, matching.ErrMissingLocation) {
			return eris.New("collector has no location")
		}
		return err
	}
	return printJSON(w, matches)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{nearbyCollectorsCmd, nearbyPickupsCmd} {
		c.Flags().Float64Var(&nearbyLat, "lat", 0, "latitude in decimal degrees")
		c.Flags().Float64Var(&nearbyLon, "lon", 0, "longitude in decimal degrees")
		c.Flags().Float64Var(&nearbyMaxDistance, "max-distance", 0, "search radius in km (default from config)")
	}
	nearbyPickupsCmd.Flags().Int64Var(&nearbyCollectorID, "collector", 0, "search around this collector's location")

	nearbyCmd.AddCommand(nearbyCollectorsCmd, nearbyPickupsCmd)
	rootCmd.AddCommand(nearbyCmd)
}
