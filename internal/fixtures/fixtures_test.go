package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func TestGenerateIsDeterministic(t *testing.T) {
	opts := Options{Seed: 42, Clinics: 2, DoctorsPerClinic: 3, PatientsPerClinic: 5}

	a := Generate(opts)
	b := Generate(opts)
	assert.Equal(t, a, b)

	assert.Len(t, a.Clinics, 2)
	assert.Len(t, a.Doctors, 6)
	assert.Len(t, a.Patients, 10)
	assert.Len(t, a.Patterns, 12)

	c := Generate(Options{Seed: 7, Clinics: 2, DoctorsPerClinic: 3, PatientsPerClinic: 5})
	assert.NotEqual(t, a.Clinics[0].ID, c.Clinics[0].ID)
}

func TestGeneratedPatternsAreValid(t *testing.T) {
	ds := Generate(Options{Seed: 1, Clinics: 3, DoctorsPerClinic: 4})

	covered := make(map[uuid.UUID]map[time.Weekday]bool)
	for _, p := range ds.Patterns {
		require.NoError(t, availability.ValidatePattern(p))
		days := covered[p.DoctorID]
		if days == nil {
			days = make(map[time.Weekday]bool)
			covered[p.DoctorID] = days
		}
		for _, d := range p.DaysOfWeek {
			assert.False(t, days[d], "doctor %s has two patterns on %s", p.DoctorID, d)
			days[d] = true
		}
	}
	assert.Len(t, covered, 12)
}

func TestLoadMemory(t *testing.T) {
	ctx := context.Background()
	ds := Generate(Options{Seed: 3, Clinics: 1, DoctorsPerClinic: 2, PatientsPerClinic: 2})
	store := availability.NewMemoryStore()
	repo := appointment.NewMemoryRepository()

	require.NoError(t, LoadMemory(ctx, ds, store, repo))

	doctor, err := store.Doctor(ctx, ds.Doctors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ds.Clinics[0].ID, doctor.ClinicID)
	assert.Equal(t, ds.Clinics[0].Timezone, doctor.Loc().String())

	patterns, err := store.ListDoctorPatterns(ctx, ds.Doctors[0].ID)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	patient, err := repo.GetPatientByID(ctx, ds.Patients[1].ID)
	require.NoError(t, err)
	assert.Equal(t, ds.Patients[1].Name, patient.Name)
}

func TestLoadMemoryRejectsUnknownTimezone(t *testing.T) {
	ds := Dataset{Clinics: []Clinic{{ID: uuid.New(), Timezone: "Mars/Olympus"}}}
	err := LoadMemory(context.Background(), ds, availability.NewMemoryStore(), appointment.NewMemoryRepository())
	assert.Error(t, err)
}

func TestWritePostgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ds := Generate(Options{Seed: 9, Clinics: 1, DoctorsPerClinic: 1, PatientsPerClinic: 1})
	clinic, doctor, patient := ds.Clinics[0], ds.Doctors[0], ds.Patients[0]
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO clinics").
		WithArgs(clinic.ID, clinic.Name, clinic.Timezone).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO doctors").
		WithArgs(doctor.ID, clinic.ID, doctor.Name, doctor.Specialty).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, p := range ds.Patterns {
		rows := pgxmock.NewRows([]string{
			"id", "clinic_id", "doctor_id", "days_of_week", "morning_start", "morning_end",
			"evening_start", "evening_end", "slot_duration_minutes", "version", "created_at", "updated_at",
		}).AddRow(p.ID, clinic.ID, doctor.ID, []int16{1}, pgtype.Time{}, pgtype.Time{}, pgtype.Time{}, pgtype.Time{}, p.SlotDurationMinutes, 1, now, now)
		mock.ExpectQuery("INSERT INTO session_patterns").
			WithArgs(p.ID, clinic.ID, doctor.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), p.SlotDurationMinutes).
			WillReturnRows(rows)
	}
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs(patient.ID, clinic.ID, patient.Name, patient.Email).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, WritePostgres(context.Background(), mock, ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePostgresRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ds := Generate(Options{Seed: 9, Clinics: 1})
	clinic := ds.Clinics[0]

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO clinics").
		WithArgs(clinic.ID, clinic.Name, clinic.Timezone).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = WritePostgres(context.Background(), mock, ds)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
