package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken means another non-cancelled appointment already holds the slot.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrSlotInvalid means the slot is no longer legal under the current pattern, holidays or policy.
	ErrSlotInvalid             = errors.New("slot is not bookable")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// errStatusChanged is returned by UpdateStatus when the row is not in the expected status.
	errStatusChanged = errors.New("appointment status changed concurrently")
)

// Repository contains all DB interactions needed by the ledger and service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// InsertBooked stores a as booked. It fails with ErrSlotTaken when a
	// non-cancelled appointment already holds the slot; the check and the
	// insert are one atomic step.
	InsertBooked(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// ListActive returns non-cancelled appointments of a doctor in [from, to].
	ListActive(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
