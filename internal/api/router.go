package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Schedules    *availability.Service
	Health       *HealthHandler
	Auth         AuthConfig
	Logger       zerolog.Logger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		// Availability and appointment endpoints
		r.Get("/doctors/{doctorID}/availability", availabilityHandler(cfg.Appointments))
		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/no-show", noShowHandler(cfg.Appointments))
		r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Appointments))

		// Schedule configuration endpoints
		r.Route("/clinics/{clinicID}", func(r chi.Router) {
			r.Get("/session-patterns", listPatternsHandler(cfg.Schedules))
			r.Post("/session-patterns", createPatternHandler(cfg.Schedules))
			r.Put("/session-patterns/{id}", updatePatternHandler(cfg.Schedules))
			r.Delete("/session-patterns/{id}", deletePatternHandler(cfg.Schedules))

			r.Get("/holidays", listHolidaysHandler(cfg.Schedules))
			r.Post("/holidays", createHolidayHandler(cfg.Schedules))
			r.Delete("/holidays/{id}", deleteHolidayHandler(cfg.Schedules))

			r.Get("/booking-policy", getClinicPolicyHandler(cfg.Schedules))
			r.Put("/booking-policy", putClinicPolicyHandler(cfg.Schedules))
		})
		r.Get("/booking-policies/default", getGlobalPolicyHandler(cfg.Schedules))
		r.Put("/booking-policies/default", putGlobalPolicyHandler(cfg.Schedules))
	})

	return r
}
