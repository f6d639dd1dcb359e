package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/fixtures"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

// demo data for STORAGE_BACKEND=memory
var memoryFixtures = fixtures.Options{Seed: 1, Clinics: 2, DoctorsPerClinic: 3, PatientsPerClinic: 20}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "dev")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageBackend).
		Str("notify", cfg.NotifyBackend).
		Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store     availability.Store
		repo      appointment.Repository
		directory availability.Directory
		pgPinger  api.Pinger
	)

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		pgStore := availability.NewPgStore(pgPool)
		store, directory = pgStore, pgStore
		repo = appointment.NewPgRepository(pgPool)
		pgPinger = pgPool
	default:
		memStore := availability.NewMemoryStore()
		memRepo := appointment.NewMemoryRepository()
		ds := fixtures.Generate(memoryFixtures)
		if err := fixtures.LoadMemory(rootCtx, ds, memStore, memRepo); err != nil {
			logger.Fatal().Err(err).Msg("load demo data")
		}
		logDemoData(logger, ds)
		store, directory, repo = memStore, memStore, memRepo
	}

	var (
		rdb   *redis.Client
		cache availability.Cache
	)
	if cfg.RedisEnabled {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		if cfg.CacheTTL > 0 {
			cache = redisclient.NewAvailabilityCache(rdb, cfg.CacheTTL)
		}
	}

	notifier, notifierCloser, err := notify.New(cfg, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier setup error")
	}
	defer func() {
		if err := notifierCloser.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing notifier")
		}
	}()

	planner := availability.NewPlanner(store, store, store)
	ledger := appointment.NewLedger(repo, planner, cache, logger)
	computer := availability.NewComputer(planner, ledger, cache, logger)

	appointments := appointment.NewService(appointment.Deps{
		Repo:      repo,
		Ledger:    ledger,
		Computer:  computer,
		Directory: directory,
		Notifier:  notifier,
		Metrics:   metrics.NewBookingMetrics(prometheus.DefaultRegisterer),
		Logger:    logger,
	}, cfg)
	schedules := availability.NewService(store, cache, logger)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Schedules:    schedules,
		Health:       api.NewHealthHandler(pgPinger, rdb, cfg.Env, version),
		Auth: api.AuthConfig{
			JWTSecret:    cfg.JWTSecret,
			TrustHeaders: cfg.IsDev() && cfg.JWTSecret == "",
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := appointments.WaitNotifications(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("notifications still in flight at shutdown")
	}

	logger.Info().Msg("api-server stopped")
}

func logDemoData(logger zerolog.Logger, ds fixtures.Dataset) {
	for _, d := range ds.Doctors {
		logger.Info().
			Str("clinic_id", d.ClinicID.String()).
			Str("doctor_id", d.ID.String()).
			Str("doctor", d.Name).
			Msg("demo doctor")
	}
	if len(ds.Patients) > 0 {
		p := ds.Patients[0]
		logger.Info().
			Str("clinic_id", p.ClinicID.String()).
			Str("patient_id", p.ID.String()).
			Msg("demo patient")
	}
}
