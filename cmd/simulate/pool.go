package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Doctor struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

// Target is one bookable slot that workers compete for.
type Target struct {
	ClinicID uuid.UUID
	DoctorID uuid.UUID
	Date     availability.Date
	Start    availability.TimeOfDay
}

type booking struct {
	ID     uuid.UUID
	Target Target
}

type DataPool struct {
	Doctors  []Doctor
	Patients map[uuid.UUID][]uuid.UUID // by clinic
	Targets  []Target

	mu       sync.RWMutex
	bookings []booking // appointments created by the run
}

func (dp *DataPool) PatientCount() int {
	n := 0
	for _, ids := range dp.Patients {
		n += len(ids)
	}
	return n
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, client *apiClient, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Patients: make(map[uuid.UUID][]uuid.UUID)}

	rows, err := pool.Query(ctx, `
		SELECT id, clinic_id FROM doctors ORDER BY id LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.ClinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, clinic_id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id, clinicID uuid.UUID
		if err := rows.Scan(&id, &clinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients[clinicID] = append(dataPool.Patients[clinicID], id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	from := availability.DateOf(time.Now().UTC())
	to := from.AddDays(cfg.Days - 1)
	for _, d := range dataPool.Doctors {
		if len(dataPool.Patients[d.ClinicID]) == 0 {
			continue
		}
		resp, err := client.Availability(ctx, d, from, to)
		if err != nil {
			return nil, err
		}
		for _, day := range resp.Days {
			for _, slot := range day.Slots {
				if slot.Available {
					dataPool.Targets = append(dataPool.Targets, Target{
						ClinicID: d.ClinicID,
						DoctorID: d.ID,
						Date:     day.Date,
						Start:    slot.Start,
					})
				}
			}
		}
	}

	rand.Shuffle(len(dataPool.Targets), func(i, j int) {
		dataPool.Targets[i], dataPool.Targets[j] = dataPool.Targets[j], dataPool.Targets[i]
	})
	if cfg.SlotLimit > 0 && len(dataPool.Targets) > cfg.SlotLimit {
		dataPool.Targets = dataPool.Targets[:cfg.SlotLimit]
	}

	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no open slots in the next %d days", cfg.Days)
	}
	return dataPool, nil
}

// findDoubleBookings lists slots holding more than one active appointment.
func findDoubleBookings(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT doctor_id, appointment_date::text, slot_start::text, count(*)
		FROM appointments
		WHERE status <> 'cancelled'
		GROUP BY doctor_id, appointment_date, slot_start
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var doctorID uuid.UUID
		var date, start string
		var n int64
		if err := rows.Scan(&doctorID, &date, &start, &n); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("doctor=%s date=%s start=%s active=%d", doctorID, date, start, n))
	}
	return out, rows.Err()
}
