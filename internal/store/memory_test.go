package store

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isuku/isuku-dispatch/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func TestMemory_CopiesOnReadAndWrite(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)
	c.SetLocation(0, 0)

	got, err := st.GetCollector(ctx, c.ID)
	require.NoError(t, err)
	lat, _ := got.Coords()
	assert.Equal(t, -1.95, lat)

	*got.Latitude = 10
	again, err := st.GetCollector(ctx, c.ID)
	require.NoError(t, err)
	lat, _ = again.Coords()
	assert.Equal(t, -1.95, lat)
}

func TestMemory_QueryFilters(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	a := seedCollector(t, st, "a", -1.95, 30.06)
	b := seedCollector(t, st, "b", -1.95, 30.06)
	b.Available = false
	require.NoError(t, st.SaveCollector(ctx, b))
	noLoc := model.NewCollector("c", "+250788000003")
	require.NoError(t, st.CreateCollector(ctx, &noLoc))

	got, err := st.QueryCollectors(ctx, CollectorQuery{Available: true, Located: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	open := seedPickup(t, st, -1.95, 30.06)
	done := seedPickup(t, st, -1.95, 30.06)
	done.Status = model.PickupStatusCompleted
	require.NoError(t, st.SavePickup(ctx, done))

	pickups, err := st.QueryPickups(ctx, PickupQuery{Statuses: model.OpenStatuses, Located: true, Unassigned: true})
	require.NoError(t, err)
	require.Len(t, pickups, 1)
	assert.Equal(t, open.ID, pickups[0].ID)
}

func TestMemory_QueryPickups_Within(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	near := seedPickup(t, st, -1.95, 30.07)
	seedPickup(t, st, -2.6, 29.74)
	unlocated := model.NewPickupRequest(1, "somewhere")
	require.NoError(t, st.CreatePickup(ctx, &unlocated))

	got, err := st.QueryPickups(ctx, PickupQuery{Within: &Area{Latitude: -1.95, Longitude: 30.06, RadiusKM: 5}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
}

func TestMemory_DuplicateLicense(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	a := model.NewCollector("a", "+250788000001")
	a.LicenseNumber = "LIC-1"
	require.NoError(t, st.CreateCollector(ctx, &a))

	b := model.NewCollector("b", "+250788000002")
	b.LicenseNumber = "LIC-1"
	assert.Error(t, st.CreateCollector(ctx, &b))
}

func TestMemory_UpsertCollectors(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	c := model.NewCollector("Jean", "+250788000001")
	c.LicenseNumber = "LIC-1"
	n, err := st.UpsertCollectors(ctx, []model.Collector{c, model.NewCollector("skip", "+2507")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c.Name = "Jean Bosco"
	_, err = st.UpsertCollectors(ctx, []model.Collector{c})
	require.NoError(t, err)

	all, err := st.QueryCollectors(ctx, CollectorQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Jean Bosco", all[0].Name)
}

func TestMemory_ClaimPickup_Errors(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	c := seedCollector(t, st, "Eric", -1.95, 30.06)
	p := seedPickup(t, st, -1.95, 30.06)

	_, err := st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: 999})
	assert.True(t, eris.Is(err, ErrNotFound))
	_, err = st.ClaimPickup(ctx, Claim{PickupID: 999, CollectorID: c.ID})
	assert.True(t, eris.Is(err, ErrNotFound))

	c.Available = false
	require.NoError(t, st.SaveCollector(ctx, c))
	_, err = st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: c.ID})
	assert.True(t, eris.Is(err, ErrCollectorUnavailable))

	c.Available = true
	require.NoError(t, st.SaveCollector(ctx, c))
	_, err = st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: c.ID, Method: model.AssignmentMethodManual})
	require.NoError(t, err)
	_, err = st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: c.ID})
	assert.True(t, eris.Is(err, ErrPickupAssigned))
}

func TestMemory_ClaimPickup_Concurrent(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	p := seedPickup(t, st, -1.95, 30.06)
	var collectors []*model.Collector
	for i := 0; i < 8; i++ {
		collectors = append(collectors, seedCollector(t, st, "c", -1.95, 30.06))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, c := range collectors {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := st.ClaimPickup(ctx, Claim{PickupID: p.ID, CollectorID: id, Method: model.AssignmentMethodAuto})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case eris.Is(err, ErrPickupAssigned):
				conflicts++
			}
		}(c.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(collectors)-1, conflicts)

	history, err := st.ListAssignments(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
