package appointment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Appointment
	err   error
	block chan struct{}
}

func (n *recordingNotifier) Notify(ctx context.Context, a Appointment) error {
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type serviceFixture struct {
	*fixture
	svc      *Service
	notifier *recordingNotifier
	registry *prometheus.Registry
	staff    auth.Context
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := newFixture(t)
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	svc := NewService(Deps{
		Repo:      f.repo,
		Ledger:    f.ledger,
		Computer:  f.computer,
		Directory: f.store,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    zerolog.Nop(),
	}, config.Config{MaxRangeDays: 31, NotifyTimeout: time.Second})

	return &serviceFixture{
		fixture:  f,
		svc:      svc,
		notifier: notifier,
		registry: reg,
		staff:    auth.Context{UserID: "desk-1", Role: auth.RoleReceptionist, ClinicID: f.doctor.ClinicID},
	}
}

func (sf *serviceFixture) book(t *testing.T, start availability.TimeOfDay) *Appointment {
	t.Helper()
	appt, err := sf.svc.CreateAppointment(context.Background(), sf.staff, BookingRequest{
		DoctorID:  sf.doctor.ID,
		PatientID: sf.patient.ID,
		Date:      wednesday,
		SlotStart: start,
	})
	require.NoError(t, err)
	return appt
}

func assertCounter(t *testing.T, reg *prometheus.Registry, name, label string, values map[string]int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# HELP " + name + " " + helpText[name] + "\n# TYPE " + name + " counter\n")
	for _, k := range []string{"booked", "failed", "rejected", "sent", "slot_invalid", "slot_taken"} {
		if n, ok := values[k]; ok {
			b.WriteString(name + "{" + label + "=\"" + k + "\"} " + strconv.Itoa(n) + "\n")
		}
	}
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(b.String()), name))
}

var helpText = map[string]string{
	"clinic_booking_reservations_total": "Reservation attempts by outcome (booked, slot_taken, slot_invalid, rejected, error)",
	"clinic_notify_dispatch_total":      "Booking notification dispatch attempts",
}

func waitNotifications(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitNotifications(ctx))
}

func TestGetAvailabilityReturnsEveryDateInRange(t *testing.T) {
	sf := newServiceFixture(t)
	sf.book(t, availability.Clock(9, 0))

	days, err := sf.svc.GetAvailability(context.Background(), sf.staff, sf.doctor.ID, wednesday, wednesday.AddDays(2))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, wednesday, days[0].Date)
	require.Len(t, days[0].Slots, 6)
	assert.False(t, days[0].Slots[0].Available)
	assert.True(t, days[1].Slots[0].Available)
}

func TestGetAvailabilityValidation(t *testing.T) {
	sf := newServiceFixture(t)
	ctx := context.Background()

	_, err := sf.svc.GetAvailability(ctx, sf.staff, sf.doctor.ID, wednesday, wednesday.AddDays(-1))
	assert.ErrorIs(t, err, availability.ErrValidation)

	_, err = sf.svc.GetAvailability(ctx, sf.staff, sf.doctor.ID, wednesday, wednesday.AddDays(31))
	assert.ErrorIs(t, err, availability.ErrValidation)

	_, err = sf.svc.GetAvailability(ctx, sf.staff, uuid.New(), wednesday, wednesday)
	assert.ErrorIs(t, err, availability.ErrDoctorNotFound)
}

func TestTenantIsolation(t *testing.T) {
	sf := newServiceFixture(t)
	ctx := context.Background()
	appt := sf.book(t, availability.Clock(9, 0))

	outsider := auth.Context{UserID: "desk-9", Role: auth.RoleReceptionist, ClinicID: uuid.New()}

	_, err := sf.svc.GetAvailability(ctx, outsider, sf.doctor.ID, wednesday, wednesday)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)

	_, err = sf.svc.CreateAppointment(ctx, outsider, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: sf.patient.ID, Date: wednesday, SlotStart: availability.Clock(9, 30),
	})
	assert.ErrorIs(t, err, auth.ErrTenantViolation)

	_, err = sf.svc.GetAppointment(ctx, outsider, appt.ID)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)
	_, err = sf.svc.CancelAppointment(ctx, outsider, appt.ID)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)
	_, err = sf.svc.ListAppointmentsByPatient(ctx, outsider, sf.patient.ID, 0, 0)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)

	// nothing about the outsider's attempt reached the ledger
	active, err := sf.ledger.ListForDoctorDate(ctx, sf.doctor.ID, wednesday)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	admin := auth.Context{UserID: "root", Role: auth.RoleAdmin}
	got, err := sf.svc.GetAppointment(ctx, admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
}

func TestCreateAppointmentPatientRules(t *testing.T) {
	sf := newServiceFixture(t)
	ctx := context.Background()

	other := Patient{ID: uuid.New(), ClinicID: sf.doctor.ClinicID, Name: "Other"}
	sf.repo.AddPatient(other)
	self := auth.Context{UserID: sf.patient.ID.String(), Role: auth.RolePatient, ClinicID: sf.doctor.ClinicID}

	_, err := sf.svc.CreateAppointment(ctx, self, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: other.ID, Date: wednesday, SlotStart: availability.Clock(9, 0),
	})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	appt, err := sf.svc.CreateAppointment(ctx, self, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: sf.patient.ID, Date: wednesday, SlotStart: availability.Clock(9, 0),
	})
	require.NoError(t, err)

	// patients see their own bookings only
	_, err = sf.svc.GetAppointment(ctx, auth.Context{UserID: other.ID.String(), Role: auth.RolePatient, ClinicID: sf.doctor.ClinicID}, appt.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	foreign := Patient{ID: uuid.New(), ClinicID: uuid.New(), Name: "Elsewhere"}
	sf.repo.AddPatient(foreign)
	_, err = sf.svc.CreateAppointment(ctx, sf.staff, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: foreign.ID, Date: wednesday, SlotStart: availability.Clock(9, 30),
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = sf.svc.CreateAppointment(ctx, sf.staff, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: uuid.New(), Date: wednesday, SlotStart: availability.Clock(9, 30),
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateAppointmentNotifiesOnce(t *testing.T) {
	sf := newServiceFixture(t)
	appt := sf.book(t, availability.Clock(10, 0))

	waitNotifications(t, sf.svc)
	require.Equal(t, 1, sf.notifier.count())
	assert.Equal(t, appt.ID, sf.notifier.calls[0].ID)
	assertCounter(t, sf.registry, "clinic_booking_reservations_total", "outcome", map[string]int{"booked": 1})
}

func TestNotificationFailureDoesNotAffectBooking(t *testing.T) {
	sf := newServiceFixture(t)
	sf.notifier.err = errors.New("smtp relay down")

	appt := sf.book(t, availability.Clock(10, 0))
	waitNotifications(t, sf.svc)

	stored, err := sf.svc.GetAppointment(context.Background(), sf.staff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, stored.Status)
	assertCounter(t, sf.registry, "clinic_notify_dispatch_total", "status", map[string]int{"failed": 1})
}

func TestCreateAppointmentDoesNotWaitForNotifier(t *testing.T) {
	sf := newServiceFixture(t)
	sf.notifier.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		sf.book(t, availability.Clock(10, 0))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("booking waited on the notifier")
	}
	close(sf.notifier.block)
	waitNotifications(t, sf.svc)
	assert.Equal(t, 1, sf.notifier.count())
}

func TestDoubleBookingReportsSlotTaken(t *testing.T) {
	sf := newServiceFixture(t)
	sf.book(t, availability.Clock(10, 0))

	_, err := sf.svc.CreateAppointment(context.Background(), sf.staff, BookingRequest{
		DoctorID: sf.doctor.ID, PatientID: sf.patient.ID, Date: wednesday, SlotStart: availability.Clock(10, 0),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assertCounter(t, sf.registry, "clinic_booking_reservations_total", "outcome", map[string]int{"booked": 1, "slot_taken": 1})

	waitNotifications(t, sf.svc)
	assert.Equal(t, 1, sf.notifier.count())
}

func TestStaffOnlyTransitions(t *testing.T) {
	sf := newServiceFixture(t)
	ctx := context.Background()
	appt := sf.book(t, availability.Clock(9, 0))
	patient := auth.Context{UserID: sf.patient.ID.String(), Role: auth.RolePatient, ClinicID: sf.doctor.ClinicID}

	_, err := sf.svc.CompleteAppointment(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = sf.svc.MarkNoShow(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	*sf.clock = time.Date(2026, time.March, 4, 9, 15, 0, 0, time.UTC)
	marked, err := sf.svc.MarkNoShow(ctx, sf.staff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)
}

func TestPatientCanCancelOwnAppointment(t *testing.T) {
	sf := newServiceFixture(t)
	ctx := context.Background()
	appt := sf.book(t, availability.Clock(9, 0))
	patient := auth.Context{UserID: sf.patient.ID.String(), Role: auth.RolePatient, ClinicID: sf.doctor.ClinicID}

	cancelled, err := sf.svc.CancelAppointment(ctx, patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = sf.svc.CancelAppointment(ctx, patient, appt.ID)
	require.NoError(t, err)

	list, err := sf.svc.ListAppointmentsByPatient(ctx, patient, sf.patient.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusCancelled, list[0].Status)
}
