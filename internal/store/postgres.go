package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/isuku/isuku-dispatch/internal/db"
	"github.com/isuku/isuku-dispatch/internal/geo"
	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/internal/resilience"
)

// PostgresStore implements Store on Postgres with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to url and returns a PostgresStore owning the pool.
// Transient connection failures are retried with backoff.
func NewPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("db: connect")
	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.Connect(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of it.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgCollectorColumns = `id, name, phone_number, COALESCE(license_number, ''), COALESCE(vehicle_number, ''),
		       is_available, latitude, longitude, service_radius_km, created_at, updated_at`

const pgPickupColumns = `id, household_id, collector_id, address, notes, quantity_kg, status,
		       latitude, longitude, created_at, updated_at`

// QueryCollectors implements Store.
func (s *PostgresStore) QueryCollectors(ctx context.Context, q CollectorQuery) ([]model.Collector, error) {
	var where []string
	if q.Available {
		where = append(where, "is_available")
	}
	if q.Located {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}

	sql := "SELECT " + pgCollectorColumns + " FROM isuku.collectors" + whereClause(where) + " ORDER BY id"
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query collectors")
	}
	defer rows.Close()

	var out []model.Collector
	for rows.Next() {
		c, err := scanCollector(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan collector row")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate collectors")
}

// GetCollector implements Store.
func (s *PostgresStore) GetCollector(ctx context.Context, id int64) (*model.Collector, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgCollectorColumns+" FROM isuku.collectors WHERE id = $1", id)
	c, err := scanCollector(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: collector %d", id)
		}
		return nil, eris.Wrap(err, "postgres: get collector")
	}
	return c, nil
}

// CreateCollector implements Store.
func (s *PostgresStore) CreateCollector(ctx context.Context, c *model.Collector) error {
	point, err := pointParam(c.Location)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO isuku.collectors (name, phone_number, license_number, vehicle_number,
			is_available, latitude, longitude, service_radius_km, geom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ST_GeomFromEWKB($9))
		RETURNING id, created_at, updated_at`,
		c.Name, c.PhoneNumber, nullIfEmpty(c.LicenseNumber), nullIfEmpty(c.VehicleNumber),
		c.Available, c.Latitude, c.Longitude, c.ServiceRadiusKM, point,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return eris.Wrap(err, "postgres: create collector")
}

// SaveCollector implements Store.
func (s *PostgresStore) SaveCollector(ctx context.Context, c *model.Collector) error {
	point, err := pointParam(c.Location)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		UPDATE isuku.collectors SET
			name = $2, phone_number = $3, license_number = $4, vehicle_number = $5,
			is_available = $6, latitude = $7, longitude = $8, service_radius_km = $9,
			geom = ST_GeomFromEWKB($10), updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Name, c.PhoneNumber, nullIfEmpty(c.LicenseNumber), nullIfEmpty(c.VehicleNumber),
		c.Available, c.Latitude, c.Longitude, c.ServiceRadiusKM, point,
	).Scan(&c.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: collector %d", c.ID)
	}
	return eris.Wrap(err, "postgres: save collector")
}

// UpsertCollectors implements Store. Collectors without a license number are
// skipped since it is the conflict key. The geom of every upserted row is
// recomputed from its coordinates.
func (s *PostgresStore) UpsertCollectors(ctx context.Context, cs []model.Collector) (int64, error) {
	rows := make([][]any, 0, len(cs))
	licenses := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.LicenseNumber == "" {
			continue
		}
		rows = append(rows, []any{
			c.LicenseNumber, c.Name, c.PhoneNumber, nullIfEmpty(c.VehicleNumber),
			c.Available, c.Latitude, c.Longitude, c.ServiceRadiusKM,
		})
		licenses = append(licenses, c.LicenseNumber)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "isuku.collectors",
		Columns: []string{
			"license_number", "name", "phone_number", "vehicle_number",
			"is_available", "latitude", "longitude", "service_radius_km",
		},
		ConflictKeys: []string{"license_number"},
		TouchColumn:  "updated_at",
	}, rows)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if _, err := s.pool.Exec(ctx, `
			UPDATE isuku.collectors
			SET geom = CASE WHEN latitude IS NULL OR longitude IS NULL THEN NULL
				ELSE ST_SetSRID(ST_MakePoint(longitude, latitude), 4326) END
			WHERE license_number = ANY($1)`, licenses); err != nil {
			return n, eris.Wrap(err, "postgres: refresh collector geom")
		}
	}
	return n, nil
}

// withinSlack widens ST_DWithin so the PostGIS sphere never drops a point
// that geo.DistanceKM places inside the radius.
const withinSlack = 1.01

// QueryPickups implements Store.
func (s *PostgresStore) QueryPickups(ctx context.Context, q PickupQuery) ([]model.PickupRequest, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Statuses) > 0 {
		args = append(args, statusStrings(q.Statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if q.Located {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}
	if q.Unassigned {
		where = append(where, "collector_id IS NULL")
	}
	if q.Within != nil {
		center, err := geo.PointEWKB(q.Within.Latitude, q.Within.Longitude)
		if err != nil {
			return nil, err
		}
		args = append(args, center, q.Within.RadiusKM*1000*withinSlack)
		where = append(where, fmt.Sprintf(
			"ST_DWithin(geom::geography, ST_GeomFromEWKB($%d)::geography, $%d, false)",
			len(args)-1, len(args)))
	}

	sql := "SELECT " + pgPickupColumns + " FROM isuku.pickup_requests" + whereClause(where) + " ORDER BY id"
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query pickups")
	}
	defer rows.Close()

	var out []model.PickupRequest
	for rows.Next() {
		p, err := scanPickup(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pickup row")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate pickups")
}

// GetPickup implements Store.
func (s *PostgresStore) GetPickup(ctx context.Context, id int64) (*model.PickupRequest, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgPickupColumns+" FROM isuku.pickup_requests WHERE id = $1", id)
	p, err := scanPickup(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: pickup %d", id)
		}
		return nil, eris.Wrap(err, "postgres: get pickup")
	}
	return p, nil
}

// CreatePickup implements Store.
func (s *PostgresStore) CreatePickup(ctx context.Context, p *model.PickupRequest) error {
	if p.Status == "" {
		p.Status = model.PickupStatusPending
	}
	point, err := pointParam(p.Location)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO isuku.pickup_requests (household_id, collector_id, address, notes,
			quantity_kg, status, latitude, longitude, geom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ST_GeomFromEWKB($9))
		RETURNING id, created_at, updated_at`,
		p.HouseholdID, p.CollectorID, p.Address, p.Notes,
		p.QuantityKG, string(p.Status), p.Latitude, p.Longitude, point,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return eris.Wrap(err, "postgres: create pickup")
}

// SavePickup implements Store.
func (s *PostgresStore) SavePickup(ctx context.Context, p *model.PickupRequest) error {
	point, err := pointParam(p.Location)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		UPDATE isuku.pickup_requests SET
			collector_id = $2, address = $3, notes = $4, quantity_kg = $5, status = $6,
			latitude = $7, longitude = $8, geom = ST_GeomFromEWKB($9), updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.CollectorID, p.Address, p.Notes, p.QuantityKG, string(p.Status),
		p.Latitude, p.Longitude, point,
	).Scan(&p.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: pickup %d", p.ID)
	}
	return eris.Wrap(err, "postgres: save pickup")
}

// ClaimPickup implements Store. The collector row is locked FOR UPDATE so a
// concurrent availability change cannot interleave with the claim, and the
// pickup update only applies while collector_id is still NULL.
func (s *PostgresStore) ClaimPickup(ctx context.Context, c Claim) (*model.Assignment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var available bool
	err = tx.QueryRow(ctx,
		`SELECT is_available FROM isuku.collectors WHERE id = $1 FOR UPDATE`, c.CollectorID,
	).Scan(&available)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: collector %d", c.CollectorID)
		}
		return nil, eris.Wrap(err, "postgres: claim: lock collector")
	}
	if !available {
		return nil, eris.Wrapf(ErrCollectorUnavailable, "postgres: collector %d", c.CollectorID)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE isuku.pickup_requests
		SET collector_id = $2, status = $3, updated_at = now()
		WHERE id = $1 AND collector_id IS NULL`,
		c.PickupID, c.CollectorID, string(model.PickupStatusScheduled),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim: update pickup")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM isuku.pickup_requests WHERE id = $1)`, c.PickupID,
		).Scan(&exists); err != nil {
			return nil, eris.Wrap(err, "postgres: claim: check pickup")
		}
		if !exists {
			return nil, eris.Wrapf(ErrNotFound, "postgres: pickup %d", c.PickupID)
		}
		return nil, eris.Wrapf(ErrPickupAssigned, "postgres: pickup %d", c.PickupID)
	}

	a := newAssignment(c)
	if _, err := tx.Exec(ctx, `
		INSERT INTO isuku.pickup_assignments (id, pickup_id, collector_id, distance_km, method, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID.String(), a.PickupID, a.CollectorID, a.DistanceKM, string(a.Method), a.AssignedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: claim: record assignment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: claim: commit")
	}
	return a, nil
}

// ListAssignments implements Store.
func (s *PostgresStore) ListAssignments(ctx context.Context, pickupID int64) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, pickup_id, collector_id, distance_km, method, assigned_at
		FROM isuku.pickup_assignments
		WHERE pickup_id = $1
		ORDER BY assigned_at, id`, pickupID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assignments")
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var (
			a      model.Assignment
			id     string
			method string
		)
		if err := rows.Scan(&id, &a.PickupID, &a.CollectorID, &a.DistanceKM, &method, &a.AssignedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment row")
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse assignment id %q", id)
		}
		a.Method = model.AssignmentMethod(method)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assignments")
}

func scanCollector(row pgx.Row) (*model.Collector, error) {
	var c model.Collector
	err := row.Scan(
		&c.ID, &c.Name, &c.PhoneNumber, &c.LicenseNumber, &c.VehicleNumber,
		&c.Available, &c.Latitude, &c.Longitude, &c.ServiceRadiusKM,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanPickup(row pgx.Row) (*model.PickupRequest, error) {
	var (
		p      model.PickupRequest
		status string
	)
	err := row.Scan(
		&p.ID, &p.HouseholdID, &p.CollectorID, &p.Address, &p.Notes, &p.QuantityKG, &status,
		&p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.PickupStatus(status)
	return &p, nil
}

// pointParam returns the EWKB geometry for l, or nil when l is unset.
func pointParam(l model.Location) ([]byte, error) {
	if !l.HasLocation() {
		return nil, nil
	}
	lat, lon := l.Coords()
	return geo.PointEWKB(lat, lon)
}

func newAssignment(c Claim) *model.Assignment {
	return &model.Assignment{
		ID:          uuid.New(),
		PickupID:    c.PickupID,
		CollectorID: c.CollectorID,
		DistanceKM:  c.DistanceKM,
		Method:      c.Method,
		AssignedAt:  time.Now().UTC(),
	}
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
