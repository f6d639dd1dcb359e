package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		q := r.URL.Query()
		from, err := availability.ParseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be a YYYY-MM-DD date")
			return
		}
		to := from
		if raw := q.Get("to"); raw != "" {
			if to, err = availability.ParseDate(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be a YYYY-MM-DD date")
				return
			}
		}

		days, err := svc.GetAvailability(r.Context(), caller, doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{DoctorID: doctorID, From: from, To: to, Days: days})
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := availability.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be a YYYY-MM-DD date")
			return
		}
		start, err := availability.ParseTimeOfDay(req.SlotStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be HH:MM")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), caller, appointment.BookingRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      date,
			SlotStart: start,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// appointmentAction adapts the single-appointment operations that share the
// same request shape.
func appointmentAction(do func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := do(r, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		caller, err := callerFrom(r)
		if err != nil {
			return nil, err
		}
		return svc.GetAppointment(r.Context(), caller, id)
	})
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		caller, err := callerFrom(r)
		if err != nil {
			return nil, err
		}
		return svc.CancelAppointment(r.Context(), caller, id)
	})
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		caller, err := callerFrom(r)
		if err != nil {
			return nil, err
		}
		return svc.CompleteAppointment(r.Context(), caller, id)
	})
}

func noShowHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		caller, err := callerFrom(r)
		if err != nil {
			return nil, err
		}
		return svc.MarkNoShow(r.Context(), caller, id)
	})
}

func listPatientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		patientID, ok := uuidParam(w, r, "patientID")
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListAppointmentsByPatient(r.Context(), caller, patientID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
