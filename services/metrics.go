package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	usernamesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nickwatch_usernames_saved_total",
			Help: "Username upserts by category, platform and status",
		},
		[]string{"category", "platform", "status"},
	)

	broadcastSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nickwatch_broadcast_sends_total",
			Help: "Broadcast sends by outcome",
		},
		[]string{"result"},
	)

	notifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nickwatch_notify_failures_total",
			Help: "New-data notifications that failed",
		},
	)
)
