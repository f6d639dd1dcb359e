package availability

import (
	"context"

	"github.com/google/uuid"
)

// PatternStore holds session patterns. Listing returns active (not deleted) patterns only.
type PatternStore interface {
	ListDoctorPatterns(ctx context.Context, doctorID uuid.UUID) ([]SessionPattern, error)
	ListClinicPatterns(ctx context.Context, clinicID uuid.UUID) ([]SessionPattern, error)
	GetPattern(ctx context.Context, id uuid.UUID) (SessionPattern, error)
	CreatePattern(ctx context.Context, p SessionPattern) (SessionPattern, error)
	// UpdatePattern writes p if the stored version equals p.Version, bumping it.
	UpdatePattern(ctx context.Context, p SessionPattern) (SessionPattern, error)
	DeletePattern(ctx context.Context, id uuid.UUID, version int) error
}

// HolidayStore is the exception calendar.
type HolidayStore interface {
	// ListHolidays returns clinic-wide and doctor-specific holidays of the clinic in [from, to].
	ListHolidays(ctx context.Context, clinicID uuid.UUID, from, to Date) ([]Holiday, error)
	GetHoliday(ctx context.Context, id uuid.UUID) (Holiday, error)
	CreateHoliday(ctx context.Context, h Holiday) (Holiday, error)
	DeleteHoliday(ctx context.Context, id uuid.UUID) error
}

// PolicyStore keeps at most one policy per clinic plus one global default (nil clinic).
type PolicyStore interface {
	GetPolicy(ctx context.Context, clinicID *uuid.UUID) (BookingPolicy, error)
	// PutPolicy creates the record when p.Version is 0, otherwise updates it under version check.
	PutPolicy(ctx context.Context, p BookingPolicy) (BookingPolicy, error)
}

// Directory resolves doctors to the projection scheduling needs.
type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (Doctor, error)
}

// Store is everything the scheduling configuration needs from persistence.
type Store interface {
	PatternStore
	HolidayStore
	PolicyStore
	Directory
}

// Occupancy reports slot starts held by non-cancelled appointments.
type Occupancy interface {
	Occupied(ctx context.Context, doctorID uuid.UUID, from, to Date) (map[Date][]TimeOfDay, error)
}

// Cache stores computed day availability. Get returns a token that Put must be
// given so an entry computed before an invalidation is never served afterwards.
type Cache interface {
	Get(ctx context.Context, clinicID, doctorID uuid.UUID, date Date) (slots []Slot, token string, hit bool, err error)
	Put(ctx context.Context, token string, slots []Slot) error
	InvalidateDay(ctx context.Context, doctorID uuid.UUID, date Date) error
	// InvalidateClinic with uuid.Nil invalidates every clinic.
	InvalidateClinic(ctx context.Context, clinicID uuid.UUID) error
}
