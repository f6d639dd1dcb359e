package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireClinic(t *testing.T) {
	clinicA := uuid.New()
	clinicB := uuid.New()

	tests := []struct {
		name   string
		caller Context
		target uuid.UUID
		want   error
	}{
		{"same clinic", Context{Role: RoleReceptionist, ClinicID: clinicA}, clinicA, nil},
		{"other clinic", Context{Role: RoleReceptionist, ClinicID: clinicA}, clinicB, ErrTenantViolation},
		{"clinic admin other clinic", Context{Role: RoleClinicAdmin, ClinicID: clinicA}, clinicB, ErrTenantViolation},
		{"global admin crosses clinics", Context{Role: RoleAdmin, ClinicID: clinicA}, clinicB, nil},
		{"unbound caller", Context{Role: RolePatient}, clinicA, ErrTenantViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.caller.RequireClinic(tt.target)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequireConfigure(t *testing.T) {
	clinic := uuid.New()

	assert.NoError(t, Context{Role: RoleAdmin}.RequireConfigure(clinic))
	assert.NoError(t, Context{Role: RoleClinicAdmin, ClinicID: clinic}.RequireConfigure(clinic))
	assert.ErrorIs(t, Context{Role: RoleReceptionist, ClinicID: clinic}.RequireConfigure(clinic), ErrForbidden)
	assert.ErrorIs(t, Context{Role: RoleClinicAdmin, ClinicID: uuid.New()}.RequireConfigure(clinic), ErrTenantViolation)
}

func TestRequireStaff(t *testing.T) {
	clinic := uuid.New()

	assert.NoError(t, Context{Role: RoleDoctor, ClinicID: clinic}.RequireStaff(clinic))
	assert.ErrorIs(t, Context{Role: RolePatient, ClinicID: clinic}.RequireStaff(clinic), ErrForbidden)
}

func TestContextRoundTrip(t *testing.T) {
	caller := Context{UserID: "u-1", Role: RoleClinicAdmin, ClinicID: uuid.New()}
	ctx := WithContext(context.Background(), caller)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, caller, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
