package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/isuku/isuku-dispatch/internal/model"
)

// MemoryStore is an in-process Store for tests and local runs. Records are
// copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int64
	collectors  map[int64]model.Collector
	pickups     map[int64]model.PickupRequest
	assignments map[int64][]model.Assignment
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		collectors:  make(map[int64]model.Collector),
		pickups:     make(map[int64]model.PickupRequest),
		assignments: make(map[int64][]model.Assignment),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) QueryCollectors(_ context.Context, q CollectorQuery) ([]model.Collector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Collector
	for _, c := range s.collectors {
		if q.Available && !c.Available {
			continue
		}
		if q.Located && !c.HasLocation() {
			continue
		}
		out = append(out, copyCollector(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetCollector(_ context.Context, id int64) (*model.Collector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collectors[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: collector %d", id)
	}
	c = copyCollector(c)
	return &c, nil
}

func (s *MemoryStore) CreateCollector(_ context.Context, c *model.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.LicenseNumber != "" && s.licenseTaken(c.LicenseNumber, 0) {
		return eris.Errorf("memory: license number %q already registered", c.LicenseNumber)
	}
	s.nextID++
	now := time.Now().UTC()
	c.ID, c.CreatedAt, c.UpdatedAt = s.nextID, now, now
	s.collectors[c.ID] = copyCollector(*c)
	return nil
}

func (s *MemoryStore) SaveCollector(_ context.Context, c *model.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.collectors[c.ID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: collector %d", c.ID)
	}
	if c.LicenseNumber != "" && s.licenseTaken(c.LicenseNumber, c.ID) {
		return eris.Errorf("memory: license number %q already registered", c.LicenseNumber)
	}
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.collectors[c.ID] = copyCollector(*c)
	return nil
}

func (s *MemoryStore) UpsertCollectors(_ context.Context, cs []model.Collector) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byLicense := make(map[string]int64, len(s.collectors))
	for id, c := range s.collectors {
		if c.LicenseNumber != "" {
			byLicense[c.LicenseNumber] = id
		}
	}

	now := time.Now().UTC()
	var n int64
	for _, c := range cs {
		if c.LicenseNumber == "" {
			continue
		}
		if id, ok := byLicense[c.LicenseNumber]; ok {
			c.ID = id
			c.CreatedAt = s.collectors[id].CreatedAt
		} else {
			s.nextID++
			c.ID = s.nextID
			c.CreatedAt = now
			byLicense[c.LicenseNumber] = c.ID
		}
		c.UpdatedAt = now
		s.collectors[c.ID] = copyCollector(c)
		n++
	}
	return n, nil
}

func (s *MemoryStore) QueryPickups(_ context.Context, q PickupQuery) ([]model.PickupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PickupRequest
	for _, p := range s.pickups {
		if len(q.Statuses) > 0 && !hasStatus(q.Statuses, p.Status) {
			continue
		}
		if q.Located && !p.HasLocation() {
			continue
		}
		if q.Unassigned && p.Assigned() {
			continue
		}
		if q.Within != nil && !q.Within.Contains(p.Location) {
			continue
		}
		out = append(out, copyPickup(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetPickup(_ context.Context, id int64) (*model.PickupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pickups[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: pickup %d", id)
	}
	p = copyPickup(p)
	return &p, nil
}

func (s *MemoryStore) CreatePickup(_ context.Context, p *model.PickupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == "" {
		p.Status = model.PickupStatusPending
	}
	s.nextID++
	now := time.Now().UTC()
	p.ID, p.CreatedAt, p.UpdatedAt = s.nextID, now, now
	s.pickups[p.ID] = copyPickup(*p)
	return nil
}

func (s *MemoryStore) SavePickup(_ context.Context, p *model.PickupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.pickups[p.ID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: pickup %d", p.ID)
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.pickups[p.ID] = copyPickup(*p)
	return nil
}

// ClaimPickup implements Store. The whole check-and-set runs under s.mu.
func (s *MemoryStore) ClaimPickup(_ context.Context, c Claim) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collector, ok := s.collectors[c.CollectorID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: collector %d", c.CollectorID)
	}
	if !collector.Available {
		return nil, eris.Wrapf(ErrCollectorUnavailable, "memory: collector %d", c.CollectorID)
	}
	p, ok := s.pickups[c.PickupID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: pickup %d", c.PickupID)
	}
	if p.Assigned() {
		return nil, eris.Wrapf(ErrPickupAssigned, "memory: pickup %d", c.PickupID)
	}

	a := newAssignment(c)
	p.AssignTo(c.CollectorID)
	p.UpdatedAt = a.AssignedAt
	s.pickups[p.ID] = p
	s.assignments[p.ID] = append(s.assignments[p.ID], *a)
	return a, nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, pickupID int64) ([]model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.Assignment(nil), s.assignments[pickupID]...), nil
}

func (s *MemoryStore) licenseTaken(license string, exceptID int64) bool {
	for id, c := range s.collectors {
		if id != exceptID && c.LicenseNumber == license {
			return true
		}
	}
	return false
}

func hasStatus(statuses []model.PickupStatus, s model.PickupStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func copyLocation(l model.Location) model.Location {
	if !l.HasLocation() {
		return model.Location{}
	}
	return model.NewLocation(l.Coords())
}

func copyCollector(c model.Collector) model.Collector {
	c.Location = copyLocation(c.Location)
	return c
}

func copyPickup(p model.PickupRequest) model.PickupRequest {
	p.Location = copyLocation(p.Location)
	if p.CollectorID != nil {
		id := *p.CollectorID
		p.CollectorID = &id
	}
	return p
}
