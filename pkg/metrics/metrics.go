// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration of the operator API.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TicketsCreatedTotal tracks created tickets by routed category.
	TicketsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Total tickets created",
		},
		[]string{"category", "urgent"},
	)

	// TicketTransitionsTotal tracks accepted status transitions.
	TicketTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transitions_total",
			Help: "Accepted ticket status transitions",
		},
		[]string{"from", "to"},
	)

	// TicketRejectionsTotal tracks rejected lifecycle mutations.
	TicketRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_rejections_total",
			Help: "Rejected ticket mutations",
		},
		[]string{"operation", "reason"},
	)

	// NotificationsTotal tracks best-effort outbound deliveries per outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// DialogsActive tracks currently bridged operator/citizen dialogs.
	DialogsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialogs_active",
			Help: "Number of active operator dialogs",
		},
	)

	// InboundEventsTotal tracks chat events by the mode that handled them.
	InboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_events_total",
			Help: "Inbound chat events by resolved handler",
		},
		[]string{"handler"},
	)

	// EventsPublishedTotal tracks ticket events sent to the event bus.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_events_published_total",
			Help: "Ticket events published by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTicketCreated records a created ticket.
func RecordTicketCreated(category string, urgent bool) {
	if category == "" {
		category = "none"
	}
	TicketsCreatedTotal.WithLabelValues(category, strconv.FormatBool(urgent)).Inc()
}

// RecordNotification records the outcome of one outbound send.
func RecordNotification(kind string, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordPublish records the outcome of one event bus publish.
func RecordPublish(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EventsPublishedTotal.WithLabelValues(backend, outcome).Inc()
}
