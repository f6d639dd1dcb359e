package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for tests and the memory storage backend.
type MemoryStore struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]Doctor
	patterns map[uuid.UUID]SessionPattern
	deleted  map[uuid.UUID]bool
	holidays map[uuid.UUID]Holiday
	policies map[uuid.UUID]BookingPolicy // uuid.Nil holds the global default
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors:  make(map[uuid.UUID]Doctor),
		patterns: make(map[uuid.UUID]SessionPattern),
		deleted:  make(map[uuid.UUID]bool),
		holidays: make(map[uuid.UUID]Holiday),
		policies: make(map[uuid.UUID]BookingPolicy),
	}
}

func (s *MemoryStore) AddDoctor(d Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = d
}

func (s *MemoryStore) Doctor(_ context.Context, id uuid.UUID) (Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}
	return d, nil
}

func (s *MemoryStore) ListDoctorPatterns(_ context.Context, doctorID uuid.UUID) ([]SessionPattern, error) {
	return s.listPatterns(func(p SessionPattern) bool { return p.DoctorID == doctorID }), nil
}

func (s *MemoryStore) ListClinicPatterns(_ context.Context, clinicID uuid.UUID) ([]SessionPattern, error) {
	return s.listPatterns(func(p SessionPattern) bool { return p.ClinicID == clinicID }), nil
}

func (s *MemoryStore) listPatterns(keep func(SessionPattern) bool) []SessionPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []SessionPattern{}
	for id, p := range s.patterns {
		if s.deleted[id] || !keep(p) {
			continue
		}
		out = append(out, clonePattern(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetPattern(_ context.Context, id uuid.UUID) (SessionPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok || s.deleted[id] {
		return SessionPattern{}, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return clonePattern(p), nil
}

func (s *MemoryStore) CreatePattern(_ context.Context, p SessionPattern) (SessionPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	s.patterns[p.ID] = clonePattern(p)
	return p, nil
}

func (s *MemoryStore) UpdatePattern(_ context.Context, p SessionPattern) (SessionPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.patterns[p.ID]
	if !ok || s.deleted[p.ID] {
		return SessionPattern{}, fmt.Errorf("pattern %s: %w", p.ID, ErrNotFound)
	}
	if cur.Version != p.Version {
		return SessionPattern{}, fmt.Errorf("pattern %s at version %d: %w", p.ID, cur.Version, ErrVersionConflict)
	}
	p.Version = cur.Version + 1
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.patterns[p.ID] = clonePattern(p)
	return p, nil
}

func (s *MemoryStore) DeletePattern(_ context.Context, id uuid.UUID, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.patterns[id]
	if !ok || s.deleted[id] {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	if cur.Version != version {
		return fmt.Errorf("pattern %s at version %d: %w", id, cur.Version, ErrVersionConflict)
	}
	s.deleted[id] = true
	return nil
}

func (s *MemoryStore) ListHolidays(_ context.Context, clinicID uuid.UUID, from, to Date) ([]Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Holiday{}
	for _, h := range s.holidays {
		if h.ClinicID != clinicID || h.Date.Before(from) || h.Date.After(to) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) GetHoliday(_ context.Context, id uuid.UUID) (Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holidays[id]
	if !ok {
		return Holiday{}, fmt.Errorf("holiday %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func (s *MemoryStore) CreateHoliday(_ context.Context, h Holiday) (Holiday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.holidays {
		if cur.ClinicID == h.ClinicID && cur.Date == h.Date && sameDoctor(cur.DoctorID, h.DoctorID) {
			return Holiday{}, invalid(fmt.Sprintf("holiday on %s already exists", h.Date))
		}
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now().UTC()
	s.holidays[h.ID] = h
	return h, nil
}

func (s *MemoryStore) DeleteHoliday(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, ErrNotFound)
	}
	delete(s.holidays, id)
	return nil
}

func (s *MemoryStore) GetPolicy(_ context.Context, clinicID *uuid.UUID) (BookingPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyKey(clinicID)]
	if !ok {
		return BookingPolicy{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PutPolicy(_ context.Context, p BookingPolicy) (BookingPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := policyKey(p.ClinicID)
	cur, exists := s.policies[key]
	switch {
	case !exists && p.Version != 0:
		return BookingPolicy{}, fmt.Errorf("policy: %w", ErrNotFound)
	case exists && cur.Version != p.Version:
		return BookingPolicy{}, fmt.Errorf("policy at version %d: %w", cur.Version, ErrVersionConflict)
	}
	if p.ClinicID != nil {
		id := *p.ClinicID
		p.ClinicID = &id
	}
	if exists {
		p.ID = cur.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.policies[key] = p
	return p, nil
}

func policyKey(clinicID *uuid.UUID) uuid.UUID {
	if clinicID == nil {
		return uuid.Nil
	}
	return *clinicID
}

func sameDoctor(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func clonePattern(p SessionPattern) SessionPattern {
	p.DaysOfWeek = append([]time.Weekday(nil), p.DaysOfWeek...)
	if p.Morning != nil {
		w := *p.Morning
		p.Morning = &w
	}
	if p.Evening != nil {
		w := *p.Evening
		p.Evening = &w
	}
	return p
}
