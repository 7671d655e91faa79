// Package metrics registers Central's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsDispatched counts build/cleanup jobs handed to workers.
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catapult",
		Subsystem: "central",
		Name:      "jobs_dispatched_total",
		Help:      "Jobs dispatched to workers, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// WorkerUp reflects the last health probe result per zone.
	WorkerUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "catapult",
		Subsystem: "central",
		Name:      "worker_up",
		Help:      "1 if the worker's last health check succeeded, else 0.",
	}, []string{"zone"})

	// WebhookEventsReceived counts inbound GitHub webhook deliveries.
	WebhookEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catapult",
		Subsystem: "central",
		Name:      "webhook_events_total",
		Help:      "GitHub webhook deliveries received, by event type.",
	}, []string{"event_type"})
)
