package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func importScheduleCmd(cfg config.Config, logger zerolog.Logger) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-schedule <file.yaml>",
		Short: "Create session patterns, holidays and the booking policy of one clinic from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := availability.ParseSchedule(f)
			if err != nil {
				return err
			}

			if err := requireDSN(cfg); err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			// cached availability of the clinic must be dropped after the import
			var cache availability.Cache
			if cfg.RedisEnabled && cfg.CacheTTL > 0 && !dryRun {
				rdb, err := redisclient.NewRedisClient(cmd.Context(), cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
				if err != nil {
					return err
				}
				defer rdb.Close()
				cache = redisclient.NewAvailabilityCache(rdb, cfg.CacheTTL)
			}

			svc := availability.NewService(availability.NewPgStore(pool), cache, logger)
			operator := auth.Context{UserID: "clinicctl", Role: auth.RoleAdmin}

			res, err := svc.Import(cmd.Context(), operator, doc, dryRun)
			if err != nil {
				return err
			}
			for _, p := range res.Problems {
				logger.Warn().Str("problem", p).Msg("entry not imported")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "patterns created: %d\nholidays created: %d\nholidays skipped: %d\npolicy version: %d\nproblems: %d\n",
				res.PatternsCreated, res.HolidaysCreated, res.HolidaysSkipped, res.PolicyVersion, len(res.Problems))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the document without writing")
	return cmd
}
