package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

var appointmentCols = []string{
	"id", "clinic_id", "doctor_id", "patient_id", "appointment_date", "slot_start", "slot_end",
	"status", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func sampleAppointment() Appointment {
	return Appointment{
		ID:        uuid.New(),
		ClinicID:  uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Date:      wednesday,
		SlotStart: availability.Clock(9, 30),
		SlotEnd:   availability.Clock(10, 0),
	}
}

func appointmentRow(a Appointment, status Status) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(appointmentCols).AddRow(
		a.ID, a.ClinicID, a.DoctorID, a.PatientID, a.Date.UTC(),
		toPgTime(a.SlotStart), toPgTime(a.SlotEnd), status, now, now,
	)
}

func TestPgInsertBooked(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.ClinicID, a.DoctorID, a.PatientID, a.Date.UTC(), toPgTime(a.SlotStart), toPgTime(a.SlotEnd)).
		WillReturnRows(appointmentRow(a, StatusBooked))

	got, err := repo.InsertBooked(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, got.Status)
	assert.Equal(t, wednesday, got.Date)
	assert.Equal(t, availability.Clock(9, 30), got.SlotStart)
	assert.Equal(t, availability.Clock(10, 0), got.SlotEnd)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertBookedMapsActiveSlotViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	insertArgs := []any{a.ID, a.ClinicID, a.DoctorID, a.PatientID, a.Date.UTC(), toPgTime(a.SlotStart), toPgTime(a.SlotEnd)}
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(insertArgs...).
		WillReturnError(&pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: activeSlotIndex})

	_, err := repo.InsertBooked(context.Background(), a)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// other unique violations are not slot conflicts
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(insertArgs...).
		WillReturnError(&pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: "appointments_pkey"})

	_, err = repo.InsertBooked(context.Background(), a)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotTaken))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusCompareAndSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(a.ID, StatusCancelled, StatusBooked).
		WillReturnRows(appointmentRow(a, StatusCancelled))

	got, err := repo.UpdateAppointmentStatus(context.Background(), a.ID, StatusBooked, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(a.ID, StatusCancelled, StatusBooked).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.UpdateAppointmentStatus(context.Background(), a.ID, StatusBooked, StatusCancelled)
	assert.ErrorIs(t, err, errStatusChanged)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListActive(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	b := a
	b.ID = uuid.New()
	b.SlotStart, b.SlotEnd = availability.Clock(10, 0), availability.Clock(10, 30)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(appointmentCols).
		AddRow(a.ID, a.ClinicID, a.DoctorID, a.PatientID, a.Date.UTC(), toPgTime(a.SlotStart), toPgTime(a.SlotEnd), StatusBooked, now, now).
		AddRow(b.ID, b.ClinicID, b.DoctorID, b.PatientID, b.Date.UTC(), toPgTime(b.SlotStart), toPgTime(b.SlotEnd), StatusCompleted, now, now)

	mock.ExpectQuery("FROM appointments").
		WithArgs(a.DoctorID, wednesday.UTC(), wednesday.UTC()).
		WillReturnRows(rows)

	list, err := repo.ListActive(context.Background(), a.DoctorID, wednesday, wednesday)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, availability.Clock(10, 0), list[1].SlotStart)
	assert.Equal(t, StatusCompleted, list[1].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetPatientNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM patients").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetPatientByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTransientErrorsAreClassified(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments").WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: "40001"})

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, db.ErrTransient)
	assert.NoError(t, mock.ExpectationsWereMet())
}
