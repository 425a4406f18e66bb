package main

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

//go:embed fixtures/areas.yaml
var defaultSeedFixture []byte

// seedSpreadDeg is the base distance, in degrees, between generated
// collectors and their area centre.
const seedSpreadDeg = 0.01

type seedFixture struct {
	Areas      []seedArea      `yaml:"areas"`
	Collectors []seedCollector `yaml:"collectors"`
}

type seedArea struct {
	Code      string   `yaml:"code"`
	Name      string   `yaml:"name"`
	Province  string   `yaml:"province"`
	City      string   `yaml:"city"`
	Country   string   `yaml:"country"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

type seedCollector struct {
	Name            string   `yaml:"name"`
	PhoneNumber     string   `yaml:"phone_number"`
	LicenseNumber   string   `yaml:"license_number"`
	VehicleNumber   string   `yaml:"vehicle_number"`
	Latitude        *float64 `yaml:"latitude"`
	Longitude       *float64 `yaml:"longitude"`
	ServiceRadiusKM float64  `yaml:"service_radius_km"`
}

var (
	seedFile    string
	seedPerArea int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create sample collectors around each service area",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data := defaultSeedFixture
		if seedFile != "" {
			b, err := os.ReadFile(seedFile)
			if err != nil {
				return eris.Wrapf(err, "read seed file %s", seedFile)
			}
			data = b
		}
		fx, err := parseSeedFixture(data)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collectors, err := buildSeedCollectors(ctx, fx, seedPerArea, newGeocoder(st))
		if err != nil {
			return err
		}
		n, err := st.UpsertCollectors(ctx, collectors)
		if err != nil {
			return eris.Wrap(err, "seed collectors")
		}

		zap.L().Info("seeded collectors", zap.Int("built", len(collectors)), zap.Int64("written", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Completed seeding collectors. Total processed: %d\n", n)
		return nil
	},
}

func parseSeedFixture(data []byte) (*seedFixture, error) {
	var fx seedFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, eris.Wrap(err, "parse seed fixture")
	}
	for i, a := range fx.Areas {
		if a.Code == "" || a.Name == "" {
			return nil, eris.Errorf("seed fixture: area %d needs a code and a name", i)
		}
		if (a.Latitude == nil) != (a.Longitude == nil) {
			return nil, eris.Errorf("seed fixture: area %s has only one coordinate", a.Code)
		}
	}
	for i, c := range fx.Collectors {
		if c.LicenseNumber == "" {
			return nil, eris.Errorf("seed fixture: collector %d needs a license_number", i)
		}
		if (c.Latitude == nil) != (c.Longitude == nil) {
			return nil, eris.Errorf("seed fixture: collector %s has only one coordinate", c.LicenseNumber)
		}
	}
	return &fx, nil
}

// buildSeedCollectors generates perArea collectors around every area centre
// plus the fixture's explicit collectors. Areas without coordinates are
// geocoded; areas the geocoder cannot place are skipped.
func buildSeedCollectors(ctx context.Context, fx *seedFixture, perArea int, gc geocode.Client) ([]model.Collector, error) {
	var unlocated []geocode.AddressInput
	for i, a := range fx.Areas {
		if a.Latitude == nil {
			unlocated = append(unlocated, geocode.AddressInput{
				ID:      fmt.Sprint(i),
				Street:  a.Name,
				City:    a.City,
				Country: a.Country,
			})
		}
	}
	placed := make(map[string]geocode.Result)
	if len(unlocated) > 0 {
		results, err := gc.BatchGeocode(ctx, unlocated)
		if err != nil {
			return nil, eris.Wrap(err, "geocode seed areas")
		}
		for _, r := range results {
			if r.Matched {
				placed[r.ID] = r
			}
		}
	}

	var out []model.Collector
	for i, a := range fx.Areas {
		var lat, lon float64
		switch {
		case a.Latitude != nil:
			lat, lon = *a.Latitude, *a.Longitude
		default:
			r, ok := placed[fmt.Sprint(i)]
			if !ok {
				zap.L().Warn("seed area could not be located, skipping", zap.String("area", a.Code))
				continue
			}
			lat, lon = r.Latitude, r.Longitude
		}
		for n := 1; n <= perArea; n++ {
			out = append(out, areaCollector(a, n, perArea, lat, lon))
		}
	}

	for _, sc := range fx.Collectors {
		c := model.NewCollector(sc.Name, sc.PhoneNumber)
		c.LicenseNumber = sc.LicenseNumber
		c.VehicleNumber = sc.VehicleNumber
		if sc.ServiceRadiusKM > 0 {
			c.ServiceRadiusKM = sc.ServiceRadiusKM
		}
		if sc.Latitude != nil && sc.Longitude != nil {
			c.SetLocation(*sc.Latitude, *sc.Longitude)
		}
		out = append(out, c)
	}
	return out, nil
}

// areaCollector places the n-th of total collectors on rings around the
// area centre.
func areaCollector(a seedArea, n, total int, lat, lon float64) model.Collector {
	c := model.NewCollector(
		fmt.Sprintf("Collector %s %d", a.Code, n),
		fmt.Sprintf("+25078%d%06d", n%10, n),
	)
	c.LicenseNumber = fmt.Sprintf("LIC-%s-%03d", a.Code, n)
	c.VehicleNumber = fmt.Sprintf("RWA-%s%03d", a.Code, n)

	angle := 2 * math.Pi * float64(n-1) / float64(total)
	spread := seedSpreadDeg * float64(1+(n-1)%3)
	c.SetLocation(
		math.Round((lat+spread*math.Cos(angle))*1e6)/1e6,
		math.Round((lon+spread*math.Sin(angle))*1e6)/1e6,
	)
	return c
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML fixture of areas and collectors (default: built-in Rwanda districts)")
	seedCmd.Flags().IntVar(&seedPerArea, "per-area", 10, "collectors to generate per area")
	rootCmd.AddCommand(seedCmd)
}
