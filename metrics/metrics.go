// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics exposes Prometheus counters, gauges, and histograms for
// the Lifecycle Engine's admission/polling ticks and scheduler adapter calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts successful scheduler submissions, by cluster.
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbatchman_jobs_submitted_total",
			Help: "Total number of jobs successfully submitted to a scheduler",
		},
		[]string{"cluster", "scheduler"},
	)

	// JobsTerminal counts jobs reaching a terminal status, by cluster and status.
	JobsTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbatchman_jobs_terminal_total",
			Help: "Total number of jobs reaching a terminal status",
		},
		[]string{"cluster", "status"},
	)

	// QueueDepth is the number of jobs per cluster and state; the admission
	// tick sets the virtualqueue state to the jobs waiting at the start of
	// its pass.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sbatchman_queue_depth",
			Help: "Number of jobs in a given state, per cluster",
		},
		[]string{"cluster", "state"},
	)

	// AdmissionTickDuration times one AdmissionTick pass across all clusters.
	AdmissionTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbatchman_admission_tick_duration_seconds",
			Help:    "Duration of one admission tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PollingTickDuration times one PollingTick pass across all non-terminal jobs.
	PollingTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbatchman_polling_tick_duration_seconds",
			Help:    "Duration of one polling tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AdapterCallDuration times individual scheduler adapter calls.
	AdapterCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sbatchman_adapter_call_duration_seconds",
			Help:    "Duration of a scheduler adapter call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheduler", "operation"},
	)

	// AdapterErrors counts failed scheduler adapter calls.
	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbatchman_adapter_errors_total",
			Help: "Total number of failed scheduler adapter calls",
		},
		[]string{"scheduler", "operation"},
	)
)
