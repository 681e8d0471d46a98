// Package metrics exposes Prometheus collectors for the chat service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Filter outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeBypassed = "bypassed"
)

// Send results.
const (
	SendDelivered = "delivered"
	SendBlocked   = "blocked"
	SendRejected  = "rejected"
	SendFailed    = "failed"
)

var (
	FilterDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentchat_filter_decisions_total",
			Help: "Content filter evaluations by outcome.",
		},
		[]string{"outcome"},
	)

	FilterPatterns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentchat_filter_patterns_total",
			Help: "Pattern labels matched by the content filter.",
		},
		[]string{"pattern"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentchat_messages_sent_total",
			Help: "Send attempts by result.",
		},
		[]string{"result"},
	)

	OpenControllers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talentchat_open_controllers",
			Help: "Chat controllers currently holding an open channel.",
		},
	)

	UnreadFanoutSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talentchat_unread_fanout_seconds",
			Help:    "Duration of total unread channel computations.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModerationAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentchat_moderation_alerts_total",
			Help: "Moderator alerts by delivery result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(FilterDecisions)
	prometheus.MustRegister(FilterPatterns)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(OpenControllers)
	prometheus.MustRegister(UnreadFanoutSeconds)
	prometheus.MustRegister(ModerationAlerts)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
