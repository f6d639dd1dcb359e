// Command clinicctl runs operator tasks against the scheduling database:
// schema migrations, demo data and bulk schedule imports.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "dev")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("component", "clinicctl").Logger()

	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operator tooling for the clinic scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd(cfg, logger))
	rootCmd.AddCommand(seedCmd(cfg, logger))
	rootCmd.AddCommand(importScheduleCmd(cfg, logger))

	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

var errMissingDSN = errors.New("POSTGRES_DSN is required")

// connect opens the pool used by the data commands.
func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
}

func requireDSN(cfg config.Config) error {
	if cfg.PostgresDSN == "" {
		return errMissingDSN
	}
	return nil
}
