package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type slotKey struct {
	clinicID uuid.UUID
	doctorID uuid.UUID
	date     availability.Date
	start    availability.TimeOfDay
}

func keyOf(a Appointment) slotKey {
	return slotKey{clinicID: a.ClinicID, doctorID: a.DoctorID, date: a.Date, start: a.SlotStart}
}

// MemoryRepository keeps appointments in process. The active map plays the
// role of the partial unique index: one non-cancelled appointment per slot.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	active       map[slotKey]uuid.UUID
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
		active:       make(map[slotKey]uuid.UUID),
	}
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) InsertBooked(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(a)
	if _, taken := r.active[key]; taken {
		return nil, ErrSlotTaken
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.Status = StatusBooked
	a.CreatedAt, a.UpdatedAt = now, now
	r.appointments[a.ID] = a
	r.active[key] = a.ID
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, errStatusChanged
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	r.appointments[id] = a
	if !to.HoldsSlot() {
		delete(r.active, keyOf(a))
	}
	return &a, nil
}

func (r *MemoryRepository) ListActive(_ context.Context, doctorID uuid.UUID, from, to availability.Date) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []Appointment{}
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || !a.Status.HoldsSlot() || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].SlotStart < result[j].SlotStart
	})
	return result, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].SlotStart > all[j].SlotStart
	})

	result := []Appointment{}
	for i := offset; i < len(all) && len(result) < limit; i++ {
		result = append(result, all[i])
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}
