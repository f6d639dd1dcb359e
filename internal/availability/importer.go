package availability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

// ScheduleDocument is a bulk schedule definition for one clinic, as written by
// clinic operators in YAML.
type ScheduleDocument struct {
	ClinicID uuid.UUID      `yaml:"clinic_id"`
	Patterns []PatternEntry `yaml:"patterns"`
	Holidays []HolidayEntry `yaml:"holidays"`
	Policy   *PolicyEntry   `yaml:"policy"`
}

type PatternEntry struct {
	DoctorID            uuid.UUID      `yaml:"doctor_id"`
	DaysOfWeek          []time.Weekday `yaml:"days_of_week"`
	Morning             *Window        `yaml:"morning"`
	Evening             *Window        `yaml:"evening"`
	SlotDurationMinutes int            `yaml:"slot_duration_minutes"`
}

type HolidayEntry struct {
	Date     Date       `yaml:"date"`
	DoctorID *uuid.UUID `yaml:"doctor_id"`
	Reason   string     `yaml:"reason"`
}

type PolicyEntry struct {
	BookingOpenBeforeDays   int  `yaml:"booking_open_before_days"`
	BookingCloseBeforeHours int  `yaml:"booking_close_before_hours"`
	AllowSameDay            bool `yaml:"allow_same_day"`
}

// ImportResult counts what an import did. Problems holds per-entry failures;
// a failing entry does not stop the rest.
type ImportResult struct {
	PatternsCreated int
	HolidaysCreated int
	HolidaysSkipped int
	PolicyVersion   int
	Problems        []string
}

// ParseSchedule decodes a YAML schedule document. Unknown keys are rejected.
func ParseSchedule(r io.Reader) (ScheduleDocument, error) {
	var doc ScheduleDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return ScheduleDocument{}, fmt.Errorf("decode schedule: %w", err)
	}
	if doc.ClinicID == uuid.Nil {
		return ScheduleDocument{}, invalid("clinic_id is required")
	}
	return doc, nil
}

// Import applies doc through the same validated paths as the admin API.
// With dryRun set, entries are only validated.
func (s *Service) Import(ctx context.Context, caller auth.Context, doc ScheduleDocument, dryRun bool) (ImportResult, error) {
	if err := caller.RequireConfigure(doc.ClinicID); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for i, e := range doc.Patterns {
		p := SessionPattern{
			ClinicID:            doc.ClinicID,
			DoctorID:            e.DoctorID,
			DaysOfWeek:          e.DaysOfWeek,
			Morning:             e.Morning,
			Evening:             e.Evening,
			SlotDurationMinutes: e.SlotDurationMinutes,
		}
		if dryRun {
			if err := ValidatePattern(p); err != nil {
				res.Problems = append(res.Problems, fmt.Sprintf("patterns[%d]: %v", i, err))
			}
			continue
		}
		if _, err := s.CreatePattern(ctx, caller, p); err != nil {
			if !errors.Is(err, ErrValidation) {
				return res, fmt.Errorf("patterns[%d]: %w", i, err)
			}
			res.Problems = append(res.Problems, fmt.Sprintf("patterns[%d]: %v", i, err))
			continue
		}
		res.PatternsCreated++
	}

	for i, e := range doc.Holidays {
		h := Holiday{ClinicID: doc.ClinicID, DoctorID: e.DoctorID, Date: e.Date, Reason: e.Reason}
		if dryRun {
			if err := ValidateHoliday(h); err != nil {
				res.Problems = append(res.Problems, fmt.Sprintf("holidays[%d]: %v", i, err))
			}
			continue
		}
		if _, err := s.CreateHoliday(ctx, caller, h); err != nil {
			if !errors.Is(err, ErrValidation) {
				return res, fmt.Errorf("holidays[%d]: %w", i, err)
			}
			// an existing holiday on the same date is not a failure for re-runs
			res.HolidaysSkipped++
			res.Problems = append(res.Problems, fmt.Sprintf("holidays[%d]: %v", i, err))
			continue
		}
		res.HolidaysCreated++
	}

	if doc.Policy != nil {
		p := BookingPolicy{
			BookingOpenBeforeDays:   doc.Policy.BookingOpenBeforeDays,
			BookingCloseBeforeHours: doc.Policy.BookingCloseBeforeHours,
			AllowSameDay:            doc.Policy.AllowSameDay,
		}
		if dryRun {
			if err := ValidatePolicy(p); err != nil {
				res.Problems = append(res.Problems, fmt.Sprintf("policy: %v", err))
			}
		} else if err := s.importPolicy(ctx, caller, doc.ClinicID, p, &res); err != nil {
			return res, err
		}
	}

	s.logger.Info().
		Str("clinic_id", doc.ClinicID.String()).
		Int("patterns", res.PatternsCreated).
		Int("holidays", res.HolidaysCreated).
		Int("problems", len(res.Problems)).
		Bool("dry_run", dryRun).
		Msg("schedule import finished")
	return res, nil
}

func (s *Service) importPolicy(ctx context.Context, caller auth.Context, clinicID uuid.UUID, p BookingPolicy, res *ImportResult) error {
	current, err := s.store.GetPolicy(ctx, &clinicID)
	switch {
	case err == nil:
		p.Version = current.Version
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("load clinic policy: %w", err)
	}
	saved, err := s.PutClinicPolicy(ctx, caller, clinicID, p)
	if errors.Is(err, ErrValidation) {
		res.Problems = append(res.Problems, fmt.Sprintf("policy: %v", err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	res.PolicyVersion = saved.Version
	return nil
}
