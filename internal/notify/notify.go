package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Message is the payload handed to the downstream notification service.
type Message struct {
	Event         string             `json:"event"`
	AppointmentID string             `json:"appointment_id"`
	ClinicID      string             `json:"clinic_id"`
	DoctorID      string             `json:"doctor_id"`
	PatientID     string             `json:"patient_id"`
	Date          string             `json:"date"`
	SlotStart     string             `json:"slot_start"`
	SlotEnd       string             `json:"slot_end"`
	Status        appointment.Status `json:"status"`
	SentAt        time.Time          `json:"sent_at"`
}

func NewMessage(a appointment.Appointment) Message {
	return Message{
		Event:         appointment.EventAppointmentBooked,
		AppointmentID: a.ID.String(),
		ClinicID:      a.ClinicID.String(),
		DoctorID:      a.DoctorID.String(),
		PatientID:     a.PatientID.String(),
		Date:          a.Date.String(),
		SlotStart:     a.SlotStart.String(),
		SlotEnd:       a.SlotEnd.String(),
		Status:        a.Status,
		SentAt:        time.Now().UTC(),
	}
}

func encode(a appointment.Appointment) ([]byte, error) {
	body, err := json.Marshal(NewMessage(a))
	if err != nil {
		return nil, fmt.Errorf("notify: marshal message: %w", err)
	}
	return body, nil
}

// LogNotifier writes the booking to the structured log. Used in dev and when
// no broker is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, a appointment.Appointment) error {
	n.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("date", a.Date.String()).
		Str("slot_start", a.SlotStart.String()).
		Msg("booking notification")
	return nil
}
