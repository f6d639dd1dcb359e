package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/migrations"
)

func migrateCmd(cfg config.Config, logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	// withMigrator opens the migrator for one subcommand and always closes it.
	withMigrator := func(run func(m *db.Migrator) error) error {
		if err := requireDSN(cfg); err != nil {
			return err
		}
		m, err := db.NewMigrator(cfg.PostgresDSN, migrations.FS)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.Warn().Err(err).Msg("close migrator")
			}
		}()
		return run(m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return logVersion(m, logger, "migrations applied")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				logger.Info().Msg("migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				return logVersion(m, logger, "schema version")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				return logVersion(m, logger, "schema version forced")
			})
		},
	})

	return cmd
}

func logVersion(m *db.Migrator, logger zerolog.Logger, msg string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg(msg)
	return nil
}
