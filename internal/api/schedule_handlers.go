package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const defaultHolidayHorizonDays = 365

// clinicRequest resolves the caller and the {clinicID} path parameter.
func clinicRequest(w http.ResponseWriter, r *http.Request) (auth.Context, uuid.UUID, bool) {
	caller, err := callerFrom(r)
	if err != nil {
		writeServiceError(w, r, err)
		return auth.Context{}, uuid.Nil, false
	}
	clinicID, ok := uuidParam(w, r, "clinicID")
	if !ok {
		return auth.Context{}, uuid.Nil, false
	}
	return caller, clinicID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func (p PatternRequest) pattern(clinicID uuid.UUID) availability.SessionPattern {
	return availability.SessionPattern{
		ClinicID:            clinicID,
		DoctorID:            p.DoctorID,
		DaysOfWeek:          p.DaysOfWeek,
		Morning:             p.Morning,
		Evening:             p.Evening,
		SlotDurationMinutes: p.SlotDurationMinutes,
		Version:             p.Version,
	}
}

func listPatternsHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		patterns, err := svc.ListPatterns(r.Context(), caller, clinicID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patterns)
	}
}

func createPatternHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		var req PatternRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := svc.CreatePattern(r.Context(), caller, req.pattern(clinicID))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updatePatternHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req PatternRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p := req.pattern(clinicID)
		p.ID = id
		updated, err := svc.UpdatePattern(r.Context(), caller, p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deletePatternHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		version, err := strconv.Atoi(r.URL.Query().Get("version"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_version", "version query parameter is required")
			return
		}
		if err := svc.DeletePattern(r.Context(), caller, clinicID, id, version); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listHolidaysHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		from := availability.DateOf(time.Now().UTC())
		if raw := q.Get("from"); raw != "" {
			d, err := availability.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be a YYYY-MM-DD date")
				return
			}
			from = d
		}
		to := from.AddDays(defaultHolidayHorizonDays)
		if raw := q.Get("to"); raw != "" {
			d, err := availability.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be a YYYY-MM-DD date")
				return
			}
			to = d
		}

		holidays, err := svc.ListHolidays(r.Context(), caller, clinicID, from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, holidays)
	}
}

func createHolidayHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		var req HolidayRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := svc.CreateHoliday(r.Context(), caller, availability.Holiday{
			ClinicID: clinicID,
			DoctorID: req.DoctorID,
			Date:     req.Date,
			Reason:   req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func deleteHolidayHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteHoliday(r.Context(), caller, clinicID, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getClinicPolicyHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		policy, err := svc.EffectivePolicy(r.Context(), caller, clinicID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	}
}

func putClinicPolicyHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, clinicID, ok := clinicRequest(w, r)
		if !ok {
			return
		}
		var req PolicyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		saved, err := svc.PutClinicPolicy(r.Context(), caller, clinicID, req.policy())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func getGlobalPolicyHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		policy, err := svc.GlobalPolicy(r.Context(), caller)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	}
}

func putGlobalPolicyHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		var req PolicyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		saved, err := svc.PutGlobalPolicy(r.Context(), caller, req.policy())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}
