package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	SlotStart string `json:"slot_start"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	SlotStart string    `json:"slot_start"`
	SlotEnd   string    `json:"slot_end"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		ClinicID:  a.ClinicID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date.String(),
		SlotStart: a.SlotStart.String(),
		SlotEnd:   a.SlotEnd.String(),
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID                      `json:"doctor_id"`
	From     availability.Date              `json:"from"`
	To       availability.Date              `json:"to"`
	Days     []availability.DayAvailability `json:"days"`
}

type PatternRequest struct {
	DoctorID            uuid.UUID            `json:"doctor_id"`
	DaysOfWeek          []time.Weekday       `json:"days_of_week"`
	Morning             *availability.Window `json:"morning,omitempty"`
	Evening             *availability.Window `json:"evening,omitempty"`
	SlotDurationMinutes int                  `json:"slot_duration_minutes"`
	Version             int                  `json:"version"`
}

type HolidayRequest struct {
	DoctorID *uuid.UUID        `json:"doctor_id,omitempty"`
	Date     availability.Date `json:"date"`
	Reason   string            `json:"reason"`
}

type PolicyRequest struct {
	BookingOpenBeforeDays   int  `json:"booking_open_before_days"`
	BookingCloseBeforeHours int  `json:"booking_close_before_hours"`
	AllowSameDay            bool `json:"allow_same_day"`
	Version                 int  `json:"version"`
}

func (p PolicyRequest) policy() availability.BookingPolicy {
	return availability.BookingPolicy{
		BookingOpenBeforeDays:   p.BookingOpenBeforeDays,
		BookingCloseBeforeHours: p.BookingCloseBeforeHours,
		AllowSameDay:            p.AllowSameDay,
		Version:                 p.Version,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
