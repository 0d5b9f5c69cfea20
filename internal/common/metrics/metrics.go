// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProposalsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigflow_proposals_submitted_total",
			Help: "Proposal submissions by outcome code",
		},
		[]string{"outcome"},
	)

	HireAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigflow_hire_attempts_total",
			Help: "Hire attempts by outcome code",
		},
		[]string{"outcome"},
	)

	HireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigflow_hire_duration_seconds",
			Help:    "Duration of the hiring transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigflow_notifications_total",
			Help: "Hire outcome events by sink and result",
		},
		[]string{"sink", "result"},
	)

	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gigflow_live_subscriptions",
			Help: "Number of open real-time subscriptions in this instance",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)

// Outcome is the label used for a successful operation.
const Outcome = "ok"
