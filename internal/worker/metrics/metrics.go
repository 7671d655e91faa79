// Package metrics registers Worker's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal counts completed builds by outcome.
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catapult",
		Subsystem: "worker",
		Name:      "builds_total",
		Help:      "Builds run by this worker, by outcome.",
	}, []string{"outcome"})

	// BuildDurationSeconds observes wall-clock build time.
	BuildDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catapult",
		Subsystem: "worker",
		Name:      "build_duration_seconds",
		Help:      "Time to clone, build, and publish a site.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
	}, []string{"site_type"})

	// ActiveBuilds reflects builds currently in flight.
	ActiveBuilds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "catapult",
		Subsystem: "worker",
		Name:      "active_builds",
		Help:      "Builds currently running on this worker.",
	})

	// RouteInstallFailures counts RouteProgrammer/TunnelProgrammer errors.
	RouteInstallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catapult",
		Subsystem: "worker",
		Name:      "route_install_failures_total",
		Help:      "Failed route or tunnel installs, by target.",
	}, []string{"target"})
)
