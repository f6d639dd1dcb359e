package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps service errors onto status codes. Conflict bodies
// tell the client to re-fetch availability before trying again.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, auth.ErrTenantViolation):
		writeError(w, http.StatusForbidden, "tenant_violation", err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot was booked by someone else; re-fetch availability")
	case errors.Is(err, appointment.ErrSlotInvalid):
		writeError(w, http.StatusConflict, "slot_invalid", err.Error()+"; re-fetch availability")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, availability.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", err.Error())

	case errors.Is(err, availability.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())

	case errors.Is(err, availability.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, availability.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, db.ErrTransient):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("transient store failure")
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary storage failure, retry shortly")

	default:
		// includes availability.ErrInvalidPattern: stored configuration is broken
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
