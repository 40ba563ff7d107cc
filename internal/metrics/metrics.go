package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons reported on RejectedIntents.
const (
	ReasonPermission   = "permission"
	ReasonLocked       = "locked"
	ReasonDocumentType = "document_type"
	ReasonDocumentSize = "document_size"
	ReasonInvalid      = "invalid"
	ReasonRateLimited  = "rate_limited"
	ReasonNotJoined    = "not_joined"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classboard_connections_active",
		Help: "Open WebSocket connections, joined or not",
	})

	ChannelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classboard_channels_active",
		Help: "Channels with at least one participant",
	})

	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classboard_joins_total",
		Help: "Successful joins by role",
	}, []string{"role"})

	Leaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classboard_leaves_total",
		Help: "Leaves by cause (explicit, disconnect, replaced)",
	}, []string{"cause"})

	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classboard_events_relayed_total",
		Help: "Inbound intents accepted by event name",
	}, []string{"event"})

	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classboard_frames_delivered_total",
		Help: "Frames queued to peer connections",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classboard_frames_dropped_total",
		Help: "Frames not delivered by reason (slow_consumer, closed, hub_full)",
	}, []string{"reason"})

	RejectedIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classboard_rejected_intents_total",
		Help: "Intents refused by the relay by reason",
	}, []string{"reason"})

	UntrustedTeacherIntents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classboard_untrusted_teacher_intents_total",
		Help: "Teacher-only intents accepted in permissive mode from a non-teacher connection",
	})

	DocumentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classboard_document_bytes",
		Help:    "Size of shared documents",
		Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
	})

	HubQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classboard_hub_queue_depth",
		Help: "Inbound frames waiting for the hub (last observed)",
	})
)
