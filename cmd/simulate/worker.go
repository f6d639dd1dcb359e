package main

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Metrics struct {
	Booking  OperationMetrics
	Cancel   OperationMetrics
	ReadByID OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *apiClient
	logger  zerolog.Logger
	metrics Metrics

	// holders tracks which appointment the simulator saw win each slot.
	mu         sync.Mutex
	holders    map[Target]uuid.UUID
	cancelling map[Target]bool
	duplicates int
	staleSlots int64
}

func (s *Simulator) Run() {
	s.holders = make(map[Target]uuid.UUID)
	s.cancelling = make(map[Target]bool)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

// DuplicateWinners counts bookings accepted for a slot that the simulator
// already held.
func (s *Simulator) DuplicateWinners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patients := s.pool.Patients[target.ClinicID]
	if len(patients) == 0 {
		return
	}
	patientID := patients[rng.Intn(len(patients))]

	start := time.Now()
	res, err := s.client.Book(ctx, target, patientID)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	switch {
	case err != nil:
		s.logger.Debug().Err(err).Msg("booking request failed")
	case res.Status == http.StatusCreated:
		success = true
		s.recordWinner(target, res.ID)
		s.pool.AddBooking(booking{ID: res.ID, Target: target})
	case res.Status == http.StatusConflict:
		conflict = true
		if res.Code == "slot_invalid" {
			s.mu.Lock()
			s.staleSlots++
			s.mu.Unlock()
		}
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) recordWinner(target Target, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, held := s.holders[target]; held && !s.cancelling[target] {
		s.duplicates++
		s.logger.Error().
			Str("doctor_id", target.DoctorID.String()).
			Str("date", target.Date.String()).
			Str("slot_start", target.Start.String()).
			Str("held_by", prev.String()).
			Str("accepted", id.String()).
			Msg("slot accepted a second active booking")
	}
	s.holders[target] = id
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.holders[b.Target] != b.ID {
		s.mu.Unlock()
		return
	}
	// a rebooking may be accepted before the cancel response arrives
	s.cancelling[b.Target] = true
	s.mu.Unlock()

	start := time.Now()
	status, err := s.client.Cancel(ctx, b.Target.ClinicID, b.ID)
	latency := time.Since(start)

	s.mu.Lock()
	delete(s.cancelling, b.Target)
	if err == nil && status == http.StatusOK && s.holders[b.Target] == b.ID {
		delete(s.holders, b.Target)
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.client.Get(ctx, b.Target.ClinicID, b.ID)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}
