package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isuku/isuku-dispatch/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCollector(t *testing.T, st Store, name string, lat, lon float64) *model.Collector {
	t.Helper()
	c := model.NewCollector(name, "+250788000000")
	c.SetLocation(lat, lon)
	require.NoError(t, st.CreateCollector(context.Background(), &c))
	return &c
}

func seedPickup(t *testing.T, st Store, lat, lon float64) *model.PickupRequest {
	t.Helper()
	p := model.NewPickupRequest(1, "KG 11 Ave, Kigali")
	p.SetLocation(lat, lon)
	require.NoError(t, st.CreatePickup(context.Background(), &p))
	return &p
}

// --- Collectors ---

func TestSQLite_CollectorRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := model.NewCollector("Jean Bosco", "+250788000001")
	c.LicenseNumber = "LIC-001"
	c.VehicleNumber = "RAB 123 A"
	c.ServiceRadiusKM = 5
	c.SetLocation(-1.9441, 30.0619)
	require.NoError(t, st.CreateCollector(ctx, &c))
	assert.NotZero(t, c.ID)
	assert.WithinDuration(t, time.Now(), c.CreatedAt, 5*time.Second)

	got, err := st.GetCollector(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jean Bosco", got.Name)
	assert.Equal(t, "LIC-001", got.LicenseNumber)
	assert.Equal(t, "RAB 123 A", got.VehicleNumber)
	assert.True(t, got.Available)
	assert.Equal(t, 5.0, got.ServiceRadiusKM)
	require.True(t, got.HasLocation())
	lat, lon := got.Coords()
	assert.InDelta(t, -1.9441, lat, 1e-9)
	assert.InDelta(t, 30.0619, lon, 1e-9)
}

func TestSQLite_CollectorWithoutLocation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := model.NewCollector("Aline", "+250788000002")
	require.NoError(t, st.CreateCollector(ctx, &c))

	got, err := st.GetCollector(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.HasLocation())
	assert.Equal(t, "", got.LicenseNumber)
}

func TestSQLite_GetCollector_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCollector(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SaveCollector(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)
	c.Available = false
	c.ClearLocation()
	require.NoError(t, st.SaveCollector(ctx, c))

	got, err := st.GetCollector(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.False(t, got.HasLocation())

	missing := model.NewCollector("ghost", "+250788000099")
	missing.ID = 999
	assert.True(t, eris.Is(st.SaveCollector(ctx, &missing), ErrNotFound))
}

func TestSQLite_QueryCollectors_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := seedCollector(t, st, "located available", -1.95, 30.06)
	b := seedCollector(t, st, "located busy", -1.95, 30.07)
	b.Available = false
	require.NoError(t, st.SaveCollector(ctx, b))
	unlocated := model.NewCollector("no location", "+250788000003")
	require.NoError(t, st.CreateCollector(ctx, &unlocated))

	all, err := st.QueryCollectors(ctx, CollectorQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := st.QueryCollectors(ctx, CollectorQuery{Available: true, Located: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestSQLite_UpsertCollectors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := model.NewCollector("Jean", "+250788000001")
	first.LicenseNumber = "LIC-001"
	first.SetLocation(-1.95, 30.06)
	unlicensed := model.NewCollector("skip me", "+250788000004")

	n, err := st.UpsertCollectors(ctx, []model.Collector{first, unlicensed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	first.Name = "Jean Bosco"
	first.ServiceRadiusKM = 7
	n, err = st.UpsertCollectors(ctx, []model.Collector{first})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := st.QueryCollectors(ctx, CollectorQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Jean Bosco", all[0].Name)
	assert.Equal(t, 7.0, all[0].ServiceRadiusKM)
}

// --- Pickups ---

func TestSQLite_PickupRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := model.NewPickupRequest(12, "KN 3 Rd, Kigali")
	p.Notes = "blue bins"
	p.QuantityKG = 20
	require.NoError(t, st.CreatePickup(ctx, &p))

	got, err := st.GetPickup(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.HouseholdID)
	assert.Equal(t, "blue bins", got.Notes)
	assert.Equal(t, model.PickupStatusPending, got.Status)
	assert.False(t, got.Assigned())
	assert.False(t, got.HasLocation())

	got.SetLocation(-1.94, 30.06)
	got.Status = model.PickupStatusCancelled
	require.NoError(t, st.SavePickup(ctx, got))

	again, err := st.GetPickup(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PickupStatusCancelled, again.Status)
	assert.True(t, again.HasLocation())
}

func TestSQLite_QueryPickups_OpenUnassignedLocated(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)

	open := seedPickup(t, st, -1.95, 30.06)
	scheduled := seedPickup(t, st, -1.95, 30.06)
	scheduled.Status = model.PickupStatusScheduled
	require.NoError(t, st.SavePickup(ctx, scheduled))

	done := seedPickup(t, st, -1.95, 30.06)
	done.Status = model.PickupStatusCompleted
	require.NoError(t, st.SavePickup(ctx, done))

	taken := seedPickup(t, st, -1.95, 30.06)
	taken.AssignTo(c.ID)
	require.NoError(t, st.SavePickup(ctx, taken))

	unlocated := model.NewPickupRequest(1, "somewhere")
	require.NoError(t, st.CreatePickup(ctx, &unlocated))

	got, err := st.QueryPickups(ctx, PickupQuery{Statuses: model.OpenStatuses, Located: true, Unassigned: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, open.ID, got[0].ID)
	assert.Equal(t, scheduled.ID, got[1].ID)
}

func TestSQLite_QueryPickups_Within(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	near := seedPickup(t, st, -1.95, 30.07)
	seedPickup(t, st, -2.6, 29.74)

	got, err := st.QueryPickups(ctx, PickupQuery{
		Statuses: model.OpenStatuses,
		Within:   &Area{Latitude: -1.95, Longitude: 30.06, RadiusKM: 5},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
}

// --- Claims ---

func TestSQLite_ClaimPickup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)
	p := seedPickup(t, st, -1.95, 30.07)
	dist := 1.11

	a, err := st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: c.ID, DistanceKM: &dist, Method: model.AssignmentMethodAuto})
	require.NoError(t, err)
	assert.Equal(t, p.ID, a.PickupID)

	got, err := st.GetPickup(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CollectorID)
	assert.Equal(t, c.ID, *got.CollectorID)
	assert.Equal(t, model.PickupStatusScheduled, got.Status)

	history, err := st.ListAssignments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, a.ID, history[0].ID)
	assert.Equal(t, model.AssignmentMethodAuto, history[0].Method)
	require.NotNil(t, history[0].DistanceKM)
	assert.Equal(t, 1.11, *history[0].DistanceKM)
}

func TestSQLite_ClaimPickup_AlreadyAssigned(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := seedCollector(t, st, "first", -1.95, 30.06)
	second := seedCollector(t, st, "second", -1.95, 30.06)
	p := seedPickup(t, st, -1.95, 30.06)

	_, err := st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: first.ID, Method: model.AssignmentMethodManual})
	require.NoError(t, err)

	_, err = st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: second.ID, Method: model.AssignmentMethodManual})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPickupAssigned))

	got, err := st.GetPickup(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *got.CollectorID)

	history, err := st.ListAssignments(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSQLite_ClaimPickup_CollectorUnavailable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCollector(t, st, "busy", -1.95, 30.06)
	c.Available = false
	require.NoError(t, st.SaveCollector(ctx, c))
	p := seedPickup(t, st, -1.95, 30.06)

	_, err := st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: c.ID, Method: model.AssignmentMethodAuto})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCollectorUnavailable))

	got, err := st.GetPickup(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Assigned())
	assert.Equal(t, model.PickupStatusPending, got.Status)
}

func TestSQLite_ClaimPickup_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)
	p := seedPickup(t, st, -1.95, 30.06)

	_, err := st.ClaimPickup(ctx, Claim{PickupID: 999, CollectorID: c.ID})
	assert.True(t, eris.Is(err, ErrNotFound))

	_, err = st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: 999})
	assert.True(t, eris.Is(err, ErrNotFound))
}
