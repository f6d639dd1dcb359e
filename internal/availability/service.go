package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

// Service is the admin surface over patterns, holidays and policies. Every
// write is validated, scoped to the caller's clinic and never touches appointments.
type Service struct {
	store  Store
	cache  Cache
	logger zerolog.Logger
}

// NewService builds the admin service. cache may be nil.
func NewService(store Store, cache Cache, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "schedule_admin").Logger(),
	}
}

// Session patterns

func (s *Service) ListPatterns(ctx context.Context, caller auth.Context, clinicID uuid.UUID) ([]SessionPattern, error) {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return nil, err
	}
	return s.store.ListClinicPatterns(ctx, clinicID)
}

func (s *Service) CreatePattern(ctx context.Context, caller auth.Context, p SessionPattern) (SessionPattern, error) {
	if err := caller.RequireConfigure(p.ClinicID); err != nil {
		return SessionPattern{}, err
	}
	if err := ValidatePattern(p); err != nil {
		return SessionPattern{}, err
	}
	if err := s.checkDoctor(ctx, p.ClinicID, p.DoctorID); err != nil {
		return SessionPattern{}, err
	}
	p.ID = uuid.Nil
	if err := s.checkExclusiveDays(ctx, p); err != nil {
		return SessionPattern{}, err
	}

	created, err := s.store.CreatePattern(ctx, p)
	if err != nil {
		return SessionPattern{}, fmt.Errorf("create pattern: %w", err)
	}
	s.invalidate(ctx, p.ClinicID)
	s.logger.Info().
		Str("pattern_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Msg("session pattern created")
	return created, nil
}

// UpdatePattern replaces the days, windows and slot length of an existing
// pattern. p.Version must be the version the caller read.
func (s *Service) UpdatePattern(ctx context.Context, caller auth.Context, p SessionPattern) (SessionPattern, error) {
	if err := caller.RequireConfigure(p.ClinicID); err != nil {
		return SessionPattern{}, err
	}
	existing, err := s.store.GetPattern(ctx, p.ID)
	if err != nil {
		return SessionPattern{}, err
	}
	if existing.ClinicID != p.ClinicID {
		return SessionPattern{}, fmt.Errorf("pattern %s: %w", p.ID, ErrNotFound)
	}
	p.DoctorID = existing.DoctorID
	if err := ValidatePattern(p); err != nil {
		return SessionPattern{}, err
	}
	if err := s.checkExclusiveDays(ctx, p); err != nil {
		return SessionPattern{}, err
	}

	updated, err := s.store.UpdatePattern(ctx, p)
	if err != nil {
		return SessionPattern{}, fmt.Errorf("update pattern: %w", err)
	}
	s.invalidate(ctx, p.ClinicID)
	return updated, nil
}

func (s *Service) DeletePattern(ctx context.Context, caller auth.Context, clinicID, id uuid.UUID, version int) error {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return err
	}
	existing, err := s.store.GetPattern(ctx, id)
	if err != nil {
		return err
	}
	if existing.ClinicID != clinicID {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	if err := s.store.DeletePattern(ctx, id, version); err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	s.invalidate(ctx, clinicID)
	return nil
}

// checkExclusiveDays keeps the pattern for any weekday unique per doctor.
func (s *Service) checkExclusiveDays(ctx context.Context, p SessionPattern) error {
	others, err := s.store.ListDoctorPatterns(ctx, p.DoctorID)
	if err != nil {
		return fmt.Errorf("load doctor patterns: %w", err)
	}
	for _, o := range others {
		if o.ID == p.ID {
			continue
		}
		for _, day := range p.DaysOfWeek {
			if o.CoversWeekday(day) {
				return invalid(fmt.Sprintf("%s is already covered by pattern %s", day, o.ID))
			}
		}
	}
	return nil
}

func (s *Service) checkDoctor(ctx context.Context, clinicID, doctorID uuid.UUID) error {
	doctor, err := s.store.Doctor(ctx, doctorID)
	if errors.Is(err, ErrDoctorNotFound) {
		return invalid(fmt.Sprintf("doctor %s does not exist", doctorID))
	}
	if err != nil {
		return err
	}
	if doctor.ClinicID != clinicID {
		return invalid(fmt.Sprintf("doctor %s does not belong to clinic %s", doctorID, clinicID))
	}
	return nil
}

// Holidays

func (s *Service) ListHolidays(ctx context.Context, caller auth.Context, clinicID uuid.UUID, from, to Date) ([]Holiday, error) {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, invalid(fmt.Sprintf("range end %s is before start %s", to, from))
	}
	return s.store.ListHolidays(ctx, clinicID, from, to)
}

func (s *Service) CreateHoliday(ctx context.Context, caller auth.Context, h Holiday) (Holiday, error) {
	if err := caller.RequireConfigure(h.ClinicID); err != nil {
		return Holiday{}, err
	}
	if err := ValidateHoliday(h); err != nil {
		return Holiday{}, err
	}
	if h.DoctorID != nil {
		if err := s.checkDoctor(ctx, h.ClinicID, *h.DoctorID); err != nil {
			return Holiday{}, err
		}
	}
	h.ID = uuid.Nil

	created, err := s.store.CreateHoliday(ctx, h)
	if err != nil {
		return Holiday{}, fmt.Errorf("create holiday: %w", err)
	}
	s.invalidate(ctx, h.ClinicID)
	s.logger.Info().
		Str("holiday_id", created.ID.String()).
		Str("date", created.Date.String()).
		Msg("holiday created")
	return created, nil
}

func (s *Service) DeleteHoliday(ctx context.Context, caller auth.Context, clinicID, id uuid.UUID) error {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return err
	}
	existing, err := s.store.GetHoliday(ctx, id)
	if err != nil {
		return err
	}
	if existing.ClinicID != clinicID {
		return fmt.Errorf("holiday %s: %w", id, ErrNotFound)
	}
	if err := s.store.DeleteHoliday(ctx, id); err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	s.invalidate(ctx, clinicID)
	return nil
}

// Booking policies

// EffectivePolicy returns the policy currently governing the clinic.
func (s *Service) EffectivePolicy(ctx context.Context, caller auth.Context, clinicID uuid.UUID) (EffectivePolicy, error) {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return EffectivePolicy{}, err
	}
	return ResolvePolicy(ctx, s.store, clinicID)
}

// PutClinicPolicy creates (Version 0) or updates the clinic's own policy.
func (s *Service) PutClinicPolicy(ctx context.Context, caller auth.Context, clinicID uuid.UUID, p BookingPolicy) (BookingPolicy, error) {
	if err := caller.RequireConfigure(clinicID); err != nil {
		return BookingPolicy{}, err
	}
	p.ClinicID = &clinicID
	return s.putPolicy(ctx, clinicID, p)
}

// GlobalPolicy returns the global default, or the fallback constants when none is stored.
func (s *Service) GlobalPolicy(ctx context.Context, caller auth.Context) (EffectivePolicy, error) {
	if !caller.IsGlobalAdmin() {
		return EffectivePolicy{}, auth.ErrForbidden
	}
	p, err := s.store.GetPolicy(ctx, nil)
	if errors.Is(err, ErrNotFound) {
		return EffectivePolicy{BookingPolicy: FallbackPolicy(), Source: PolicyFromFallback}, nil
	}
	if err != nil {
		return EffectivePolicy{}, err
	}
	return EffectivePolicy{BookingPolicy: p, Source: PolicyFromGlobal}, nil
}

func (s *Service) PutGlobalPolicy(ctx context.Context, caller auth.Context, p BookingPolicy) (BookingPolicy, error) {
	if !caller.IsGlobalAdmin() {
		return BookingPolicy{}, auth.ErrForbidden
	}
	p.ClinicID = nil
	return s.putPolicy(ctx, uuid.Nil, p)
}

func (s *Service) putPolicy(ctx context.Context, scope uuid.UUID, p BookingPolicy) (BookingPolicy, error) {
	if err := ValidatePolicy(p); err != nil {
		return BookingPolicy{}, err
	}
	saved, err := s.store.PutPolicy(ctx, p)
	if err != nil {
		return BookingPolicy{}, fmt.Errorf("put policy: %w", err)
	}
	s.invalidate(ctx, scope)
	s.logger.Info().
		Str("scope", scopeName(scope)).
		Int("version", saved.Version).
		Msg("booking policy saved")
	return saved, nil
}

// invalidate drops cached availability of a clinic; uuid.Nil drops every clinic.
func (s *Service) invalidate(ctx context.Context, clinicID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateClinic(ctx, clinicID); err != nil {
		s.logger.Warn().Err(err).Str("scope", scopeName(clinicID)).Msg("availability cache invalidation failed")
	}
}

func scopeName(clinicID uuid.UUID) string {
	if clinicID == uuid.Nil {
		return "global"
	}
	return clinicID.String()
}
