package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

// activeSlotIndex is the partial unique index that makes double booking impossible.
const activeSlotIndex = "appointments_active_slot_key"

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

const microsPerMinute = int64(time.Minute / time.Microsecond)

func toPgTime(t availability.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func fromPgTime(t pgtype.Time) availability.TimeOfDay {
	return availability.TimeOfDay(t.Microseconds / microsPerMinute)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, db.Classify("scan patient", err)
	}

	p.Email = email
	return &p, nil
}

const appointmentColumns = `id, clinic_id, doctor_id, patient_id, appointment_date, slot_start, slot_end,
	status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.DoctorID,
		&a.PatientID,
		&date,
		&start,
		&end,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = availability.DateOf(date)
	a.SlotStart = fromPgTime(start)
	a.SlotEnd = fromPgTime(end)
	return &a, nil
}

func (r *PgRepository) queryAppointments(ctx context.Context, op, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(op, err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, db.Classify(op, err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, err)
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, clinic_id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, db.Classify("get appointment", err)
	}
	return a, err
}

func (r *PgRepository) InsertBooked(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, clinic_id, doctor_id, patient_id, appointment_date, slot_start, slot_end,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'booked', now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.ClinicID, a.DoctorID, a.PatientID, a.Date.UTC(), toPgTime(a.SlotStart), toPgTime(a.SlotEnd))

	created, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotIndex) {
			return nil, ErrSlotTaken
		}
		return nil, db.Classify("insert appointment", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, errStatusChanged
		}
		return nil, db.Classify("update appointment status", err)
	}
	return a, nil
}

func (r *PgRepository) ListActive(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) ([]Appointment, error) {
	return r.queryAppointments(ctx, "list active appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
		ORDER BY appointment_date, slot_start
	`, doctorID, from.UTC(), to.UTC())
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.queryAppointments(ctx, "list patient appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, slot_start DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
