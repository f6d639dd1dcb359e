package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTenantViolation = errors.New("caller is not scoped to this clinic")
	ErrForbidden       = errors.New("caller lacks the required capability")
	ErrUnauthenticated = errors.New("no authenticated caller")
)

type Role string

const (
	// RoleAdmin is the global-admin capability: it may act across clinics.
	RoleAdmin        Role = "admin"
	RoleClinicAdmin  Role = "clinic_admin"
	RoleReceptionist Role = "receptionist"
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClinicAdmin, RoleReceptionist, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Context is the already-authenticated caller, resolved once per request and
// passed explicitly into the services.
type Context struct {
	UserID   string
	Role     Role
	ClinicID uuid.UUID
}

func (c Context) IsGlobalAdmin() bool {
	return c.Role == RoleAdmin
}

// IsStaff reports whether the caller works for a clinic rather than being a patient.
func (c Context) IsStaff() bool {
	switch c.Role {
	case RoleAdmin, RoleClinicAdmin, RoleReceptionist, RoleDoctor:
		return true
	}
	return false
}

// RequireClinic rejects callers bound to a different clinic.
func (c Context) RequireClinic(clinicID uuid.UUID) error {
	if c.IsGlobalAdmin() {
		return nil
	}
	if c.ClinicID == uuid.Nil || c.ClinicID != clinicID {
		return ErrTenantViolation
	}
	return nil
}

// RequireConfigure allows schedule configuration writes for admins and the
// clinic's own clinic admins.
func (c Context) RequireConfigure(clinicID uuid.UUID) error {
	if c.IsGlobalAdmin() {
		return nil
	}
	if c.Role != RoleClinicAdmin {
		return ErrForbidden
	}
	return c.RequireClinic(clinicID)
}

func (c Context) RequireStaff(clinicID uuid.UUID) error {
	if !c.IsStaff() {
		return ErrForbidden
	}
	return c.RequireClinic(clinicID)
}

type ctxKey string

const callerKey ctxKey = "clinic.caller"

func WithContext(ctx context.Context, caller Context) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func FromContext(ctx context.Context) (Context, bool) {
	caller, ok := ctx.Value(callerKey).(Context)
	return caller, ok
}
