// Package fixtures generates realistic clinics, doctors, patients and weekly
// schedules for local runs, load simulations and seeding.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Clinic struct {
	ID       uuid.UUID
	Name     string
	Timezone string
}

type Doctor struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Specialty string
}

type Dataset struct {
	Clinics  []Clinic
	Doctors  []Doctor
	Patients []appointment.Patient
	Patterns []availability.SessionPattern
}

type Options struct {
	// Seed makes the dataset reproducible; 0 picks a random seed.
	Seed              uint64
	Clinics           int
	DoctorsPerClinic  int
	PatientsPerClinic int
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var timezones = []string{"UTC", "Europe/London", "Asia/Kolkata", "America/New_York"}

// weekly templates; each doctor gets one pair so no weekday is covered twice
var templates = [][2]availability.SessionPattern{
	{
		{
			DaysOfWeek:          []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			Morning:             &availability.Window{Start: availability.Clock(9, 0), End: availability.Clock(12, 0)},
			Evening:             &availability.Window{Start: availability.Clock(17, 0), End: availability.Clock(19, 0)},
			SlotDurationMinutes: 30,
		},
		{
			DaysOfWeek:          []time.Weekday{time.Tuesday, time.Thursday},
			Morning:             &availability.Window{Start: availability.Clock(10, 0), End: availability.Clock(13, 0)},
			SlotDurationMinutes: 20,
		},
	},
	{
		{
			DaysOfWeek:          []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday},
			Morning:             &availability.Window{Start: availability.Clock(8, 30), End: availability.Clock(12, 30)},
			SlotDurationMinutes: 15,
		},
		{
			DaysOfWeek:          []time.Weekday{time.Saturday},
			Morning:             &availability.Window{Start: availability.Clock(9, 0), End: availability.Clock(11, 0)},
			SlotDurationMinutes: 30,
		},
	},
}

func Generate(opts Options) Dataset {
	f := gofakeit.New(opts.Seed)
	newID := func() uuid.UUID {
		id, err := uuid.Parse(f.UUID())
		if err != nil {
			return uuid.New()
		}
		return id
	}

	var ds Dataset
	for c := 0; c < opts.Clinics; c++ {
		clinic := Clinic{
			ID:       newID(),
			Name:     f.Company() + " Clinic",
			Timezone: timezones[f.Number(0, len(timezones)-1)],
		}
		ds.Clinics = append(ds.Clinics, clinic)

		for d := 0; d < opts.DoctorsPerClinic; d++ {
			doctor := Doctor{
				ID:        newID(),
				ClinicID:  clinic.ID,
				Name:      "Dr. " + f.Name(),
				Specialty: specialties[f.Number(0, len(specialties)-1)],
			}
			ds.Doctors = append(ds.Doctors, doctor)

			for _, tpl := range templates[f.Number(0, len(templates)-1)] {
				p := tpl
				p.ID = newID()
				p.ClinicID = clinic.ID
				p.DoctorID = doctor.ID
				ds.Patterns = append(ds.Patterns, p)
			}
		}

		for p := 0; p < opts.PatientsPerClinic; p++ {
			email := f.Email()
			ds.Patients = append(ds.Patients, appointment.Patient{
				ID:       newID(),
				ClinicID: clinic.ID,
				Name:     f.Name(),
				Email:    &email,
			})
		}
	}
	return ds
}

// LoadMemory installs the dataset into the in-process stores.
func LoadMemory(ctx context.Context, ds Dataset, store *availability.MemoryStore, repo *appointment.MemoryRepository) error {
	locations := make(map[uuid.UUID]*time.Location, len(ds.Clinics))
	for _, c := range ds.Clinics {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("clinic %s timezone: %w", c.ID, err)
		}
		locations[c.ID] = loc
	}
	for _, d := range ds.Doctors {
		store.AddDoctor(availability.Doctor{ID: d.ID, ClinicID: d.ClinicID, Location: locations[d.ClinicID]})
	}
	for _, p := range ds.Patterns {
		if _, err := store.CreatePattern(ctx, p); err != nil {
			return fmt.Errorf("pattern for doctor %s: %w", p.DoctorID, err)
		}
	}
	for _, p := range ds.Patients {
		repo.AddPatient(p)
	}
	return nil
}

// Beginner is satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const patientBatchSize = 500

// WritePostgres inserts the dataset. Clinics, doctors and patterns go in one
// transaction; patients are written in batches.
func WritePostgres(ctx context.Context, pool Beginner, ds Dataset) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range ds.Clinics {
		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, c.ID, c.Name, c.Timezone)
		if err != nil {
			return fmt.Errorf("insert clinic: %w", err)
		}
	}
	for _, d := range ds.Doctors {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, clinic_id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, d.ID, d.ClinicID, d.Name, d.Specialty)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}
	patterns := availability.NewPgStore(tx)
	for _, p := range ds.Patterns {
		if _, err := patterns.CreatePattern(ctx, p); err != nil {
			return fmt.Errorf("insert pattern: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for offset := 0; offset < len(ds.Patients); offset += patientBatchSize {
		end := min(offset+patientBatchSize, len(ds.Patients))
		if err := writePatients(ctx, pool, ds.Patients[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

func writePatients(ctx context.Context, pool Beginner, batch []appointment.Patient) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, clinic_id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, p.ID, p.ClinicID, p.Name, p.Email)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
	}
	return tx.Commit(ctx)
}
