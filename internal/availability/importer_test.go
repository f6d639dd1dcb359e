package availability

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

func scheduleYAML(clinicID, doctorID uuid.UUID) string {
	return fmt.Sprintf(`
clinic_id: %s
patterns:
  - doctor_id: %s
    days_of_week: [1, 2, 3]
    morning: {start: "09:00", end: "12:00"}
    evening: {start: "17:00", end: "19:30"}
    slot_duration_minutes: 30
  - doctor_id: %s
    days_of_week: [3, 4]
    morning: {start: "08:00", end: "10:00"}
    slot_duration_minutes: 15
holidays:
  - date: 2026-12-25
    reason: Christmas
  - date: 2026-12-31
    doctor_id: %s
policy:
  booking_open_before_days: 14
  booking_close_before_hours: 2
  allow_same_day: false
`, clinicID, doctorID, doctorID, doctorID)
}

func TestParseSchedule(t *testing.T) {
	clinic, doctor := uuid.New(), uuid.New()
	doc, err := ParseSchedule(strings.NewReader(scheduleYAML(clinic, doctor)))
	require.NoError(t, err)

	assert.Equal(t, clinic, doc.ClinicID)
	require.Len(t, doc.Patterns, 2)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}, doc.Patterns[0].DaysOfWeek)
	require.NotNil(t, doc.Patterns[0].Evening)
	assert.Equal(t, Clock(19, 30), doc.Patterns[0].Evening.End)
	assert.Nil(t, doc.Patterns[1].Evening)

	require.Len(t, doc.Holidays, 2)
	assert.Equal(t, NewDate(2026, time.December, 25), doc.Holidays[0].Date)
	assert.Nil(t, doc.Holidays[0].DoctorID)
	require.NotNil(t, doc.Holidays[1].DoctorID)
	assert.Equal(t, doctor, *doc.Holidays[1].DoctorID)

	require.NotNil(t, doc.Policy)
	assert.Equal(t, 14, doc.Policy.BookingOpenBeforeDays)
}

func TestParseScheduleRejectsBadInput(t *testing.T) {
	_, err := ParseSchedule(strings.NewReader("patterns: []\n"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseSchedule(strings.NewReader(fmt.Sprintf("clinic_id: %s\nsurprise: true\n", uuid.New())))
	assert.Error(t, err)

	_, err = ParseSchedule(strings.NewReader(fmt.Sprintf("clinic_id: %s\nholidays:\n  - date: christmas\n", uuid.New())))
	assert.Error(t, err)
}

func TestImportAppliesDocument(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	doc, err := ParseSchedule(strings.NewReader(scheduleYAML(f.doctor.ClinicID, f.doctor.ID)))
	require.NoError(t, err)

	res, err := f.svc.Import(ctx, f.admin, doc, false)
	require.NoError(t, err)

	// the second pattern shares Wednesday with the first
	assert.Equal(t, 1, res.PatternsCreated)
	require.Len(t, res.Problems, 1)
	assert.Contains(t, res.Problems[0], "patterns[1]")
	assert.Equal(t, 2, res.HolidaysCreated)
	assert.Equal(t, 1, res.PolicyVersion)

	policy, err := f.svc.EffectivePolicy(ctx, f.admin, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Equal(t, PolicyFromClinic, policy.Source)
	assert.False(t, policy.AllowSameDay)

	// re-running skips existing holidays and updates the policy in place
	doc.Patterns = nil
	res, err = f.svc.Import(ctx, f.admin, doc, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.HolidaysCreated)
	assert.Equal(t, 2, res.HolidaysSkipped)
	assert.Equal(t, 2, res.PolicyVersion)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	doc, err := ParseSchedule(strings.NewReader(scheduleYAML(f.doctor.ClinicID, f.doctor.ID)))
	require.NoError(t, err)
	doc.Patterns[0].SlotDurationMinutes = 0

	res, err := f.svc.Import(ctx, f.admin, doc, true)
	require.NoError(t, err)
	require.Len(t, res.Problems, 1)
	assert.Contains(t, res.Problems[0], "patterns[0]")

	patterns, err := f.store.ListClinicPatterns(ctx, f.doctor.ClinicID)
	require.NoError(t, err)
	assert.Empty(t, patterns)
	_, err = f.store.GetPolicy(ctx, &f.doctor.ClinicID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportRequiresConfigureCapability(t *testing.T) {
	f := newAdminFixture(t)
	doc := ScheduleDocument{ClinicID: f.doctor.ClinicID}

	_, err := f.svc.Import(context.Background(), auth.Context{UserID: "r", Role: auth.RoleReceptionist, ClinicID: f.doctor.ClinicID}, doc, false)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.Import(context.Background(), auth.Context{UserID: "ca", Role: auth.RoleClinicAdmin, ClinicID: uuid.New()}, doc, false)
	assert.ErrorIs(t, err, auth.ErrTenantViolation)
}
