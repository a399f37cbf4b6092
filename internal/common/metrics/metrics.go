// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_scan_cycles_total",
			Help: "Total number of scan cycles by outcome (completed, skipped, failed)",
		},
		[]string{"outcome"},
	)

	MessagesExamined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailbox_messages_examined_total",
			Help: "Total number of inbox messages examined by the scanner",
		},
	)

	MessagesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_messages_matched_total",
			Help: "Total number of messages matched to a correspondence link, by strategy",
		},
		[]string{"strategy"},
	)

	AttachmentsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachments_saved_total",
			Help: "Total number of attachment captures by outcome (saved, degraded)",
		},
		[]string{"outcome"},
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by queue and outcome (enqueued, duplicate)",
		},
		[]string{"queue", "outcome"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed by queue",
		},
		[]string{"queue"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of job failures by queue and error code",
		},
		[]string{"queue", "error_code"},
	)

	JobsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead list after exhausting retries",
		},
		[]string{"queue"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "queue_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"queue"},
	)
)
