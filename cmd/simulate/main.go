// Command simulate drives a running api-server with concurrent booking
// traffic aimed at a small set of slots and checks that no slot ever ends up
// with more than one active appointment.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	// SlotLimit bounds the contended slot set; fewer slots means more races.
	SlotLimit   int
	Days        int
	JWTSecret   string
	PostgresDSN string
}

func main() {
	base, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "dev")
		bootLogger.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(base.LogLevel, base.Env).With().Str("component", "simulator").Logger()

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	client := newAPIClient(cfg)
	dataPool, err := loadDataPool(ctx, pgPool, client, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("doctors", len(dataPool.Doctors)).
		Int("patients", dataPool.PatientCount()).
		Int("slots", len(dataPool.Targets)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: client,
		logger: logger,
	}
	sim.Run()

	doubleBooked, err := findDoubleBookings(context.Background(), pgPool)
	if err != nil {
		logger.Error().Err(err).Msg("verify slots")
	}
	sim.PrintReport(doubleBooked)

	if len(doubleBooked) > 0 || sim.DuplicateWinners() > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 32),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 10),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 50),
		Days:         getInt("SIM_DAYS", 7),
		JWTSecret:    base.JWTSecret,
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
