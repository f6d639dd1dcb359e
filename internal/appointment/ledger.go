package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

var statusEvents = map[Status]string{
	StatusCancelled: EventAppointmentCancelled,
	StatusCompleted: EventAppointmentCompleted,
	StatusNoShow:    EventAppointmentNoShow,
}

// SlotInvalidError carries why a slot failed re-validation. It unwraps to ErrSlotInvalid.
type SlotInvalidError struct {
	Reason string
}

func (e *SlotInvalidError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSlotInvalid, e.Reason)
}

func (e *SlotInvalidError) Unwrap() error {
	return ErrSlotInvalid
}

// Ledger is the only component that decides a slot is taken. Reserve
// re-validates against the current configuration and then relies on the
// repository's atomic insert-or-fail; nothing is locked.
type Ledger struct {
	repo    Repository
	planner *availability.Planner
	cache   availability.Cache
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLedger builds a ledger. cache may be nil.
func NewLedger(repo Repository, planner *availability.Planner, cache availability.Cache, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:    repo,
		planner: planner,
		cache:   cache,
		logger:  logger.With().Str("component", "booking_ledger").Logger(),
		now:     time.Now,
	}
}

func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Reserve books slotStart on date for patientID. It returns ErrSlotInvalid
// (as *SlotInvalidError) when the slot is not bookable right now and
// ErrSlotTaken when another reservation holds it.
func (l *Ledger) Reserve(ctx context.Context, doctor availability.Doctor, date availability.Date, slotStart availability.TimeOfDay, patientID uuid.UUID) (*Appointment, error) {
	plan, err := l.planner.Plan(ctx, doctor, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	slot, ok, err := plan.Lookup(slotStart, l.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &SlotInvalidError{Reason: rejectReason(plan, slotStart)}
	}

	req := Appointment{
		ID:        uuid.New(),
		ClinicID:  doctor.ClinicID,
		DoctorID:  doctor.ID,
		PatientID: patientID,
		Date:      date,
		SlotStart: slot.Start,
		SlotEnd:   slot.End,
		Status:    StatusBooked,
	}

	booked, err := l.repo.InsertBooked(ctx, req)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	l.invalidate(ctx, *booked)
	l.logEvent(ctx, booked.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  booked.DoctorID.String(),
		"patient_id": booked.PatientID.String(),
		"date":       booked.Date.String(),
		"slot_start": booked.SlotStart.String(),
	})
	return booked, nil
}

func rejectReason(plan availability.DayPlan, start availability.TimeOfDay) string {
	switch {
	case plan.Holiday != nil:
		return "date is a holiday"
	case plan.Pattern == nil:
		return "doctor has no session on this weekday"
	}
	for _, s := range availability.GenerateSlots(*plan.Pattern) {
		if s.Start == start {
			return "slot is outside the booking window"
		}
	}
	return "time is not a slot start in the doctor's session"
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := l.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

// Cancel frees the slot. Cancelling a cancelled appointment returns it unchanged.
func (l *Ledger) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.transition(ctx, id, StatusCancelled, nil)
}

func (l *Ledger) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.transition(ctx, id, StatusCompleted, nil)
}

// MarkNoShow is allowed once the slot has started in loc. The slot stays held.
func (l *Ledger) MarkNoShow(ctx context.Context, id uuid.UUID, loc *time.Location) (*Appointment, error) {
	return l.transition(ctx, id, StatusNoShow, func(a Appointment) error {
		if l.now().Before(a.StartsAt(loc)) {
			return fmt.Errorf("%w: slot has not started yet", ErrInvalidStatusTransition)
		}
		return nil
	})
}

// transition applies one status change with a compare-and-set on the current
// status. A lost race is re-read once so idempotent cancels still succeed.
func (l *Ledger) transition(ctx context.Context, id uuid.UUID, to Status, guard func(Appointment) error) (*Appointment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status == to && to == StatusCancelled {
			return cur, nil
		}
		if !CanTransition(cur.Status, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, cur.Status, to)
		}
		if guard != nil {
			if err := guard(*cur); err != nil {
				return nil, err
			}
		}

		updated, err := l.repo.UpdateAppointmentStatus(ctx, id, cur.Status, to)
		if errors.Is(err, errStatusChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment: %w", err)
		}

		if !to.HoldsSlot() {
			l.invalidate(ctx, *updated)
		}
		l.logEvent(ctx, updated.ID, statusEvents[to], map[string]any{"from": string(cur.Status)})
		return updated, nil
	}
	return nil, fmt.Errorf("%w: appointment %s keeps changing", ErrInvalidStatusTransition, id)
}

// ListForDoctorDate returns the non-cancelled reservations of a doctor on date.
func (l *Ledger) ListForDoctorDate(ctx context.Context, doctorID uuid.UUID, date availability.Date) ([]Appointment, error) {
	return l.repo.ListActive(ctx, doctorID, date, date)
}

// Occupied feeds the slot computer with held slot starts per date.
func (l *Ledger) Occupied(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) (map[availability.Date][]availability.TimeOfDay, error) {
	active, err := l.repo.ListActive(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[availability.Date][]availability.TimeOfDay)
	for _, a := range active {
		out[a.Date] = append(out[a.Date], a.SlotStart)
	}
	return out, nil
}

func (l *Ledger) invalidate(ctx context.Context, a Appointment) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateDay(ctx, a.DoctorID, a.Date); err != nil {
		l.logger.Warn().Err(err).
			Str("doctor_id", a.DoctorID.String()).
			Str("date", a.Date.String()).
			Msg("availability cache invalidation failed")
	}
}

func (l *Ledger) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := l.repo.InsertEvent(ctx, ev); err != nil {
		l.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
