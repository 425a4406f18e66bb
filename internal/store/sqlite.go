package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/isuku/isuku-dispatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS collectors (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	phone_number      TEXT NOT NULL,
	license_number    TEXT UNIQUE,
	vehicle_number    TEXT,
	is_available      INTEGER NOT NULL DEFAULT 1,
	latitude          REAL,
	longitude         REAL,
	service_radius_km REAL NOT NULL DEFAULT 10.0,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE TABLE IF NOT EXISTS pickup_requests (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	household_id INTEGER NOT NULL,
	collector_id INTEGER REFERENCES collectors(id),
	address      TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	quantity_kg  REAL NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'Pending',
	latitude     REAL,
	longitude    REAL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE TABLE IF NOT EXISTS pickup_assignments (
	id           TEXT PRIMARY KEY,
	pickup_id    INTEGER NOT NULL REFERENCES pickup_requests(id),
	collector_id INTEGER NOT NULL REFERENCES collectors(id),
	distance_km  REAL,
	method       TEXT NOT NULL,
	assigned_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_collectors_available ON collectors(is_available);
CREATE INDEX IF NOT EXISTS idx_pickups_status ON pickup_requests(status);
CREATE INDEX IF NOT EXISTS idx_pickups_collector ON pickup_requests(collector_id);
CREATE INDEX IF NOT EXISTS idx_assignments_pickup ON pickup_assignments(pickup_id, assigned_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteCollectorColumns = `id, name, phone_number, COALESCE(license_number, ''), COALESCE(vehicle_number, ''),
	is_available, latitude, longitude, service_radius_km, created_at, updated_at`

const sqlitePickupColumns = `id, household_id, collector_id, address, notes, quantity_kg, status,
	latitude, longitude, created_at, updated_at`

func (s *SQLiteStore) QueryCollectors(ctx context.Context, q CollectorQuery) ([]model.Collector, error) {
	var where []string
	if q.Available {
		where = append(where, "is_available = 1")
	}
	if q.Located {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteCollectorColumns+" FROM collectors"+whereClause(where)+" ORDER BY id")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query collectors")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Collector
	for rows.Next() {
		c, err := scanSQLiteCollector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate collectors")
}

func (s *SQLiteStore) GetCollector(ctx context.Context, id int64) (*model.Collector, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteCollectorColumns+" FROM collectors WHERE id = ?", id)
	c, err := scanSQLiteCollector(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: collector %d", id)
	}
	return c, err
}

func (s *SQLiteStore) CreateCollector(ctx context.Context, c *model.Collector) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collectors (name, phone_number, license_number, vehicle_number, is_available,
			latitude, longitude, service_radius_km, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.PhoneNumber, nullIfEmpty(c.LicenseNumber), nullIfEmpty(c.VehicleNumber), c.Available,
		c.Latitude, c.Longitude, c.ServiceRadiusKM, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert collector")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: collector id")
	}
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
	return nil
}

func (s *SQLiteStore) SaveCollector(ctx context.Context, c *model.Collector) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE collectors SET name = ?, phone_number = ?, license_number = ?, vehicle_number = ?,
			is_available = ?, latitude = ?, longitude = ?, service_radius_km = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.PhoneNumber, nullIfEmpty(c.LicenseNumber), nullIfEmpty(c.VehicleNumber),
		c.Available, c.Latitude, c.Longitude, c.ServiceRadiusKM, now, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update collector %d", c.ID)
	}
	if err := checkRowsAffected(res, "collector", c.ID); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) UpsertCollectors(ctx context.Context, cs []model.Collector) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO collectors (license_number, name, phone_number, vehicle_number, is_available,
			latitude, longitude, service_radius_km, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (license_number) DO UPDATE SET
			name = excluded.name,
			phone_number = excluded.phone_number,
			vehicle_number = excluded.vehicle_number,
			is_available = excluded.is_available,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			service_radius_km = excluded.service_radius_km,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, c := range cs {
		if c.LicenseNumber == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx,
			c.LicenseNumber, c.Name, c.PhoneNumber, nullIfEmpty(c.VehicleNumber), c.Available,
			c.Latitude, c.Longitude, c.ServiceRadiusKM, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert collector %s", c.LicenseNumber)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: commit")
	}
	return total, nil
}

func (s *SQLiteStore) QueryPickups(ctx context.Context, q PickupQuery) ([]model.PickupRequest, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if q.Located {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}
	if q.Unassigned {
		where = append(where, "collector_id IS NULL")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqlitePickupColumns+" FROM pickup_requests"+whereClause(where)+" ORDER BY id", args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query pickups")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PickupRequest
	for rows.Next() {
		p, err := scanSQLitePickup(rows)
		if err != nil {
			return nil, err
		}
		if q.Within != nil && !q.Within.Contains(p.Location) {
			continue
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pickups")
}

func (s *SQLiteStore) GetPickup(ctx context.Context, id int64) (*model.PickupRequest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqlitePickupColumns+" FROM pickup_requests WHERE id = ?", id)
	p, err := scanSQLitePickup(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: pickup %d", id)
	}
	return p, err
}

func (s *SQLiteStore) CreatePickup(ctx context.Context, p *model.PickupRequest) error {
	if p.Status == "" {
		p.Status = model.PickupStatusPending
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pickup_requests (household_id, collector_id, address, notes, quantity_kg, status,
			latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.HouseholdID, p.CollectorID, p.Address, p.Notes, p.QuantityKG, string(p.Status),
		p.Latitude, p.Longitude, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert pickup")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: pickup id")
	}
	p.ID, p.CreatedAt, p.UpdatedAt = id, now, now
	return nil
}

func (s *SQLiteStore) SavePickup(ctx context.Context, p *model.PickupRequest) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE pickup_requests SET collector_id = ?, address = ?, notes = ?, quantity_kg = ?,
			status = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?`,
		p.CollectorID, p.Address, p.Notes, p.QuantityKG, string(p.Status),
		p.Latitude, p.Longitude, now, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pickup %d", p.ID)
	}
	if err := checkRowsAffected(res, "pickup", p.ID); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// ClaimPickup implements Store. The guarded UPDATE is the first statement of
// the transaction so the write lock is taken before anything is read.
func (s *SQLiteStore) ClaimPickup(ctx context.Context, c Claim) (*model.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	a := newAssignment(c)
	res, err := tx.ExecContext(ctx, `
		UPDATE pickup_requests SET collector_id = ?, status = ?, updated_at = ?
		WHERE id = ? AND collector_id IS NULL
		  AND EXISTS (SELECT 1 FROM collectors WHERE id = ? AND is_available = 1)`,
		c.CollectorID, string(model.PickupStatusScheduled), a.AssignedAt, c.PickupID, c.CollectorID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim: update pickup")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim: rows affected")
	}
	if n == 0 {
		return nil, s.claimConflict(ctx, tx, c)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pickup_assignments (id, pickup_id, collector_id, distance_km, method, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.PickupID, a.CollectorID, a.DistanceKM, string(a.Method), a.AssignedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim: record assignment")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim: commit")
	}
	return a, nil
}

// claimConflict explains why the guarded UPDATE in ClaimPickup matched nothing.
func (s *SQLiteStore) claimConflict(ctx context.Context, tx *sql.Tx, c Claim) error {
	var available bool
	err := tx.QueryRowContext(ctx, `SELECT is_available FROM collectors WHERE id = ?`, c.CollectorID).Scan(&available)
	if eris.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: collector %d", c.CollectorID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: claim: check collector")
	}
	if !available {
		return eris.Wrapf(ErrCollectorUnavailable, "sqlite: collector %d", c.CollectorID)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pickup_requests WHERE id = ?)`, c.PickupID,
	).Scan(&exists); err != nil {
		return eris.Wrap(err, "sqlite: claim: check pickup")
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "sqlite: pickup %d", c.PickupID)
	}
	return eris.Wrapf(ErrPickupAssigned, "sqlite: pickup %d", c.PickupID)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, pickupID int64) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pickup_id, collector_id, distance_km, method, assigned_at
		FROM pickup_assignments WHERE pickup_id = ? ORDER BY assigned_at, id`, pickupID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Assignment
	for rows.Next() {
		var (
			a      model.Assignment
			id     string
			method string
		)
		if err := rows.Scan(&id, &a.PickupID, &a.CollectorID, &a.DistanceKM, &method, &a.AssignedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse assignment id %q", id)
		}
		a.Method = model.AssignmentMethod(method)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assignments")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCollector(row scannable) (*model.Collector, error) {
	var c model.Collector
	err := row.Scan(
		&c.ID, &c.Name, &c.PhoneNumber, &c.LicenseNumber, &c.VehicleNumber,
		&c.Available, &c.Latitude, &c.Longitude, &c.ServiceRadiusKM,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan collector")
	}
	return &c, nil
}

func scanSQLitePickup(row scannable) (*model.PickupRequest, error) {
	var (
		p      model.PickupRequest
		status string
	)
	err := row.Scan(
		&p.ID, &p.HouseholdID, &p.CollectorID, &p.Address, &p.Notes, &p.QuantityKG, &status,
		&p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pickup")
	}
	p.Status = model.PickupStatus(status)
	return &p, nil
}
