package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

// Notifier is the external notification dispatcher. It is called once per
// booking and never awaited by the caller.
type Notifier interface {
	Notify(ctx context.Context, a Appointment) error
}

// BookingRequest is a createAppointment call.
type BookingRequest struct {
	DoctorID  uuid.UUID              `json:"doctor_id"`
	PatientID uuid.UUID              `json:"patient_id"`
	Date      availability.Date      `json:"date"`
	SlotStart availability.TimeOfDay `json:"slot_start"`
}

// Deps are the collaborators of Service. Metrics may be nil.
type Deps struct {
	Repo      Repository
	Ledger    *Ledger
	Computer  *availability.Computer
	Directory availability.Directory
	Notifier  Notifier
	Metrics   *metrics.BookingMetrics
	Logger    zerolog.Logger
}

type Service struct {
	repo      Repository
	ledger    *Ledger
	computer  *availability.Computer
	directory availability.Directory
	notifier  Notifier
	metrics   *metrics.BookingMetrics
	logger    zerolog.Logger
	tracer    trace.Tracer
	cfg       config.Config

	notifications sync.WaitGroup
}

func NewService(deps Deps, cfg config.Config) *Service {
	return &Service{
		repo:      deps.Repo,
		ledger:    deps.Ledger,
		computer:  deps.Computer,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "appointment_service").Logger(),
		tracer:    otel.Tracer("clinic.internal.appointment"),
		cfg:       cfg,
	}
}

// doctorInScope resolves the doctor and applies the tenant check before any
// availability or reservation logic runs.
func (s *Service) doctorInScope(ctx context.Context, caller auth.Context, doctorID uuid.UUID) (availability.Doctor, error) {
	doctor, err := s.directory.Doctor(ctx, doctorID)
	if err != nil {
		return availability.Doctor{}, err
	}
	if err := caller.RequireClinic(doctor.ClinicID); err != nil {
		return availability.Doctor{}, err
	}
	return doctor, nil
}

// GetAvailability returns per-date slot lists for [from, to], both inclusive.
func (s *Service) GetAvailability(ctx context.Context, caller auth.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.DayAvailability, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", doctorID.String()),
		attribute.String("clinic.from", from.String()),
		attribute.String("clinic.to", to.String()),
	)

	started := time.Now()
	days, err := s.getAvailability(ctx, caller, doctorID, from, to)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.ObserveAvailability(status, time.Since(started).Seconds())
	return days, err
}

func (s *Service) getAvailability(ctx context.Context, caller auth.Context, doctorID uuid.UUID, from, to availability.Date) ([]availability.DayAvailability, error) {
	doctor, err := s.doctorInScope(ctx, caller, doctorID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, &availability.ValidationError{Problems: []string{"from and to must be dates with from <= to"}}
	}
	if days := from.DaysUntil(to) + 1; days > s.cfg.MaxRangeDays {
		return nil, &availability.ValidationError{Problems: []string{
			fmt.Sprintf("range of %d days exceeds the limit of %d", days, s.cfg.MaxRangeDays),
		}}
	}
	return s.computer.Range(ctx, doctor, from, to)
}

// CreateAppointment commits a booking. ErrSlotTaken and ErrSlotInvalid are
// returned as-is; callers must re-fetch availability and never retry blindly.
func (s *Service) CreateAppointment(ctx context.Context, caller auth.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", req.DoctorID.String()),
		attribute.String("clinic.date", req.Date.String()),
		attribute.String("clinic.slot_start", req.SlotStart.String()),
	)

	appt, err := s.createAppointment(ctx, caller, req)
	s.metrics.ObserveReservation(reservationOutcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date.String()).
		Str("slot_start", appt.SlotStart.String()).
		Msg("appointment booked")
	s.dispatch(ctx, *appt)
	return appt, nil
}

func (s *Service) createAppointment(ctx context.Context, caller auth.Context, req BookingRequest) (*Appointment, error) {
	doctor, err := s.doctorInScope(ctx, caller, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if caller.Role == auth.RolePatient && caller.UserID != req.PatientID.String() {
		return nil, fmt.Errorf("%w: patients may only book for themselves", auth.ErrForbidden)
	}
	if req.Date.IsZero() {
		return nil, &availability.ValidationError{Problems: []string{"date is required"}}
	}

	// Validate patient exists in the doctor's clinic
	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.ClinicID != doctor.ClinicID {
		return nil, ErrPatientNotFound
	}

	return s.ledger.Reserve(ctx, doctor, req.Date, req.SlotStart, req.PatientID)
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrSlotInvalid):
		return "slot_invalid"
	case errors.Is(err, auth.ErrTenantViolation), errors.Is(err, auth.ErrForbidden),
		errors.Is(err, availability.ErrValidation), errors.Is(err, availability.ErrDoctorNotFound),
		errors.Is(err, ErrPatientNotFound):
		return "rejected"
	}
	return "error"
}

// dispatch hands the booking to the notifier on its own goroutine with a
// bounded timeout. One attempt; failures are logged and counted.
func (s *Service) dispatch(ctx context.Context, appt Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()

		err := s.notifier.Notify(nctx, appt)
		s.metrics.ObserveNotification(err == nil)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("booking notification failed")
		}
	}()
}

// WaitNotifications blocks until in-flight notifications finish or ctx ends.
func (s *Service) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifications.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// appointmentInScope loads an appointment the caller may see. Patients only see their own.
func (s *Service) appointmentInScope(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireClinic(appt.ClinicID); err != nil {
		return nil, err
	}
	if caller.Role == auth.RolePatient && caller.UserID != appt.PatientID.String() {
		return nil, auth.ErrForbidden
	}
	return appt, nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointmentInScope(ctx, caller, id)
}

// CancelAppointment is idempotent for already cancelled appointments.
func (s *Service) CancelAppointment(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()))

	if _, err := s.appointmentInScope(ctx, caller, id); err != nil {
		span.RecordError(err)
		return nil, err
	}
	appt, err := s.ledger.Cancel(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	return appt, nil
}

// CompleteAppointment marks a booked visit as done. Staff only.
func (s *Service) CompleteAppointment(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	cur, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireStaff(cur.ClinicID); err != nil {
		return nil, err
	}
	appt, err := s.ledger.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCompleted))
	return appt, nil
}

// MarkNoShow records that the patient did not attend. Staff only, after the slot started.
func (s *Service) MarkNoShow(ctx context.Context, caller auth.Context, id uuid.UUID) (*Appointment, error) {
	cur, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireStaff(cur.ClinicID); err != nil {
		return nil, err
	}
	doctor, err := s.directory.Doctor(ctx, cur.DoctorID)
	if err != nil {
		return nil, err
	}
	appt, err := s.ledger.MarkNoShow(ctx, id, doctor.Loc())
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusNoShow))
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, caller auth.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := caller.RequireClinic(patient.ClinicID); err != nil {
		return nil, err
	}
	if caller.Role == auth.RolePatient && caller.UserID != patientID.String() {
		return nil, auth.ErrForbidden
	}

	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}
