package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub connection metrics
var (
	// ConnectionsCurrent tracks live hub connections across all users
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_hub_connections_current",
			Help: "Current number of registered hub connections",
		},
	)

	// ConnectionsRejected tracks upgrades refused before registration, by reason
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_hub_connections_rejected_total",
			Help: "Hub connection attempts rejected before registration, by reason",
		},
		[]string{"reason"},
	)

	// InvocationsTotal tracks inbound hub method calls
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_hub_invocations_total",
			Help: "Total hub method invocations by method",
		},
		[]string{"method"},
	)
)

// Delivery metrics
var (
	// NotificationsTotal tracks notifications queued for delivery, by event name
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_hub_notifications_total",
			Help: "Total notifications queued for delivery by event",
		},
		[]string{"event"},
	)

	// DroppedMessagesTotal tracks notifications dropped because a connection queue was full or closed
	DroppedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_hub_dropped_messages_total",
			Help: "Total notifications dropped because the recipient queue was full or closed",
		},
	)
)

// Arbitration metrics
var (
	// TransfersTotal tracks transfer attempts by result (success/not_found)
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_hub_transfers_total",
			Help: "Total playback transfers by result",
		},
		[]string{"result"},
	)

	// TakeoversTotal tracks unconditional takeovers
	TakeoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_hub_takeovers_total",
			Help: "Total playback takeovers",
		},
	)

	// AuditEventsDropped tracks audit events discarded because the recorder buffer was full
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_hub_audit_events_dropped_total",
			Help: "Audit events dropped because the recorder buffer was full",
		},
	)
)
