package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Used when neither the clinic nor the global default has a policy row.
const (
	FallbackOpenBeforeDays   = 30
	FallbackCloseBeforeHours = 0
	FallbackAllowSameDay     = true
)

type PolicySource string

const (
	PolicyFromClinic   PolicySource = "clinic"
	PolicyFromGlobal   PolicySource = "global"
	PolicyFromFallback PolicySource = "fallback"
)

// EffectivePolicy is the policy that governs a clinic right now and where it came from.
type EffectivePolicy struct {
	BookingPolicy
	Source PolicySource `json:"source"`
}

func FallbackPolicy() BookingPolicy {
	return BookingPolicy{
		BookingOpenBeforeDays:   FallbackOpenBeforeDays,
		BookingCloseBeforeHours: FallbackCloseBeforeHours,
		AllowSameDay:            FallbackAllowSameDay,
	}
}

// ResolvePolicy picks the clinic record, then the global default, then the fallback constants.
func ResolvePolicy(ctx context.Context, store PolicyStore, clinicID uuid.UUID) (EffectivePolicy, error) {
	p, err := store.GetPolicy(ctx, &clinicID)
	switch {
	case err == nil:
		return EffectivePolicy{BookingPolicy: p, Source: PolicyFromClinic}, nil
	case !errors.Is(err, ErrNotFound):
		return EffectivePolicy{}, fmt.Errorf("load clinic policy: %w", err)
	}

	p, err = store.GetPolicy(ctx, nil)
	switch {
	case err == nil:
		return EffectivePolicy{BookingPolicy: p, Source: PolicyFromGlobal}, nil
	case !errors.Is(err, ErrNotFound):
		return EffectivePolicy{}, fmt.Errorf("load global policy: %w", err)
	}

	return EffectivePolicy{BookingPolicy: FallbackPolicy(), Source: PolicyFromFallback}, nil
}

// Window bounds for a slot at start on date, evaluated at now in the clinic's location.
// The open bound counts calendar days; the close bound is an exact duration.
func (p BookingPolicy) permits(date Date, start time.Time, now time.Time) bool {
	today := DateOf(now)
	if date.Before(today) {
		return false
	}
	if date == today {
		if !p.AllowSameDay || !start.After(now) {
			return false
		}
	}
	if today.DaysUntil(date) > p.BookingOpenBeforeDays {
		return false
	}
	closeAt := now.Add(time.Duration(p.BookingCloseBeforeHours) * time.Hour)
	return !start.Before(closeAt)
}
