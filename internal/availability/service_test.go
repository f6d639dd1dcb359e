package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type adminFixture struct {
	svc    *Service
	store  *MemoryStore
	cache  *fakeCache
	doctor Doctor
	admin  auth.Context
}

func newAdminFixture(t *testing.T) adminFixture {
	t.Helper()
	store := NewMemoryStore()
	d := testDoctor()
	store.AddDoctor(d)
	cache := newFakeCache()
	return adminFixture{
		svc:    NewService(store, cache, zerolog.Nop()),
		store:  store,
		cache:  cache,
		doctor: d,
		admin:  auth.Context{UserID: "ca-1", Role: auth.RoleClinicAdmin, ClinicID: d.ClinicID},
	}
}

func TestCreatePatternScoping(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	p := morningPattern(f.doctor)

	_, err := f.svc.CreatePattern(ctx, auth.Context{Role: auth.RoleReceptionist, ClinicID: f.doctor.ClinicID}, p)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.CreatePattern(ctx, auth.Context{Role: auth.RoleClinicAdmin, ClinicID: uuid.New()}, p)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)

	created, err := f.svc.CreatePattern(ctx, auth.Context{Role: auth.RoleAdmin}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, []uuid.UUID{f.doctor.ClinicID}, f.cache.invalidated)
}

func TestCreatePatternRejectsDoctorOfAnotherClinic(t *testing.T) {
	f := newAdminFixture(t)
	stranger := testDoctor()
	f.store.AddDoctor(stranger)

	p := morningPattern(stranger)
	p.ClinicID = f.doctor.ClinicID

	_, err := f.svc.CreatePattern(context.Background(), f.admin, p)
	assert.ErrorIs(t, err, ErrValidation)

	p.DoctorID = uuid.New()
	_, err = f.svc.CreatePattern(context.Background(), f.admin, p)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreatePatternRejectsSharedWeekday(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	weekdays := morningPattern(f.doctor)
	weekdays.DaysOfWeek = []time.Weekday{time.Monday, time.Tuesday}
	_, err := f.svc.CreatePattern(ctx, f.admin, weekdays)
	require.NoError(t, err)

	clash := morningPattern(f.doctor)
	clash.DaysOfWeek = []time.Weekday{time.Tuesday, time.Wednesday}
	_, err = f.svc.CreatePattern(ctx, f.admin, clash)
	assert.ErrorIs(t, err, ErrValidation)

	clash.DaysOfWeek = []time.Weekday{time.Wednesday}
	_, err = f.svc.CreatePattern(ctx, f.admin, clash)
	assert.NoError(t, err)
}

func TestUpdatePatternVersioning(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreatePattern(ctx, f.admin, morningPattern(f.doctor))
	require.NoError(t, err)

	edit := created
	edit.SlotDurationMinutes = 15
	updated, err := f.svc.UpdatePattern(ctx, f.admin, edit)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 15, updated.SlotDurationMinutes)

	// a second writer still holding version 1 loses
	stale := created
	stale.SlotDurationMinutes = 45
	_, err = f.svc.UpdatePattern(ctx, f.admin, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// an update may not move the pattern to another doctor
	moved := updated
	moved.DoctorID = uuid.New()
	again, err := f.svc.UpdatePattern(ctx, f.admin, moved)
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, again.DoctorID)
}

func TestUpdatePatternOtherClinicIsNotFound(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreatePattern(ctx, f.admin, morningPattern(f.doctor))
	require.NoError(t, err)

	other := uuid.New()
	created.ClinicID = other
	_, err = f.svc.UpdatePattern(ctx, auth.Context{Role: auth.RoleClinicAdmin, ClinicID: other}, created)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePatternIsSoft(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreatePattern(ctx, f.admin, morningPattern(f.doctor))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeletePattern(ctx, f.admin, f.doctor.ClinicID, created.ID, 7), ErrVersionConflict)
	require.NoError(t, f.svc.DeletePattern(ctx, f.admin, f.doctor.ClinicID, created.ID, created.Version))

	list, err := f.svc.ListPatterns(ctx, f.admin, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Empty(t, list)

	// the weekday is free again
	_, err = f.svc.CreatePattern(ctx, f.admin, morningPattern(f.doctor))
	assert.NoError(t, err)
}

func TestHolidayLifecycle(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	date := NewDate(2026, time.December, 25)

	h, err := f.svc.CreateHoliday(ctx, f.admin, Holiday{ClinicID: f.doctor.ClinicID, Date: date, Reason: "christmas"})
	require.NoError(t, err)

	_, err = f.svc.CreateHoliday(ctx, f.admin, Holiday{ClinicID: f.doctor.ClinicID, Date: date})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateHoliday(ctx, f.admin, Holiday{ClinicID: f.doctor.ClinicID, DoctorID: &f.doctor.ID, Date: date})
	assert.NoError(t, err)

	list, err := f.svc.ListHolidays(ctx, f.admin, f.doctor.ClinicID, date.AddDays(-1), date.AddDays(1))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.svc.DeleteHoliday(ctx, f.admin, f.doctor.ClinicID, h.ID))
	assert.ErrorIs(t, f.svc.DeleteHoliday(ctx, f.admin, f.doctor.ClinicID, h.ID), ErrNotFound)
}

func TestPolicyResolutionOrder(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	global := auth.Context{Role: auth.RoleAdmin}

	eff, err := f.svc.EffectivePolicy(ctx, f.admin, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Equal(t, PolicyFromFallback, eff.Source)
	assert.Equal(t, FallbackOpenBeforeDays, eff.BookingOpenBeforeDays)

	_, err = f.svc.PutGlobalPolicy(ctx, f.admin, BookingPolicy{BookingOpenBeforeDays: 14})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.PutGlobalPolicy(ctx, global, BookingPolicy{BookingOpenBeforeDays: 14, AllowSameDay: true})
	require.NoError(t, err)
	eff, err = f.svc.EffectivePolicy(ctx, f.admin, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Equal(t, PolicyFromGlobal, eff.Source)
	assert.Equal(t, 14, eff.BookingOpenBeforeDays)

	saved, err := f.svc.PutClinicPolicy(ctx, f.admin, f.doctor.ClinicID, BookingPolicy{BookingOpenBeforeDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	eff, err = f.svc.EffectivePolicy(ctx, f.admin, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Equal(t, PolicyFromClinic, eff.Source)
	assert.Equal(t, 7, eff.BookingOpenBeforeDays)

	// creating again without the current version conflicts
	_, err = f.svc.PutClinicPolicy(ctx, f.admin, f.doctor.ClinicID, BookingPolicy{BookingOpenBeforeDays: 3})
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = f.svc.PutClinicPolicy(ctx, f.admin, f.doctor.ClinicID, BookingPolicy{BookingOpenBeforeDays: -3, Version: 1})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Contains(t, f.cache.invalidated, uuid.Nil)
}

func TestGlobalPolicyRequiresAdmin(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.GlobalPolicy(context.Background(), f.admin)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	eff, err := f.svc.GlobalPolicy(context.Background(), auth.Context{Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, PolicyFromFallback, eff.Source)
}
