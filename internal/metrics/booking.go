package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability and booking flows.
type BookingMetrics struct {
	reservationsTotal   *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	notificationsTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome (booked, slot_taken, slot_invalid, rejected, error)",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions applied",
		}, []string{"to"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "request_duration_seconds",
			Help:      "Latency of availability computations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Booking notification dispatch attempts",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.transitionsTotal, m.availabilityLatency, m.notificationsTotal)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *BookingMetrics) ObserveAvailability(status string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(status).Observe(seconds)
}

func (m *BookingMetrics) ObserveNotification(ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.notificationsTotal.WithLabelValues(status).Inc()
}
