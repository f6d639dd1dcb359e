package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/fixtures"
)

func seedCmd(cfg config.Config, logger zerolog.Logger) *cobra.Command {
	var opts fixtures.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated clinics, doctors, patients and weekly schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDSN(cfg); err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			ds := fixtures.Generate(opts)
			logger.Info().
				Int("clinics", len(ds.Clinics)).
				Int("doctors", len(ds.Doctors)).
				Int("patients", len(ds.Patients)).
				Int("patterns", len(ds.Patterns)).
				Msg("seeding")

			if err := fixtures.WritePostgres(cmd.Context(), pool, ds); err != nil {
				return err
			}
			for _, c := range ds.Clinics {
				logger.Info().Str("clinic_id", c.ID.String()).Str("name", c.Name).Str("timezone", c.Timezone).Msg("seeded clinic")
			}
			logger.Info().Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed; 0 picks one")
	cmd.Flags().IntVar(&opts.Clinics, "clinics", 5, "number of clinics")
	cmd.Flags().IntVar(&opts.DoctorsPerClinic, "doctors", 20, "doctors per clinic")
	cmd.Flags().IntVar(&opts.PatientsPerClinic, "patients", 1800, "patients per clinic")
	return cmd
}
