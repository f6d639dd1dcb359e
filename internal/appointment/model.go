package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Status string

const (
	// StatusRequested is never stored; Reserve inserts straight into booked.
	StatusRequested Status = "requested"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	// StatusNoShow is terminal and, unlike cancelled, keeps holding the slot.
	StatusNoShow    Status = "no-show"
)

var transitions = map[Status][]Status{
	StatusRequested: {StatusBooked, StatusCancelled},
	StatusBooked:    {StatusCancelled, StatusCompleted, StatusNoShow},
}

// CanTransition reports whether the status machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal statuses have no outgoing transition.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// HoldsSlot reports whether an appointment in this status occupies its slot.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled
}

type Patient struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the reservation record. It is never deleted; cancelling only
// changes its status.
type Appointment struct {
	ID        uuid.UUID              `json:"id"`
	ClinicID  uuid.UUID              `json:"clinic_id"`
	DoctorID  uuid.UUID              `json:"doctor_id"`
	PatientID uuid.UUID              `json:"patient_id"`
	Date      availability.Date      `json:"date"`
	SlotStart availability.TimeOfDay `json:"slot_start"`
	SlotEnd   availability.TimeOfDay `json:"slot_end"`
	Status    Status                 `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StartsAt is the slot start as an instant in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.SlotStart, loc)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
