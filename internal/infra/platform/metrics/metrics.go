package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_saved_total",
			Help: "Submission save attempts by kind, driver and result",
		},
		[]string{"kind", "driver", "result"}, // result: success | failure
	)

	SubmissionWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submission_write_duration_seconds",
			Help:    "Duration of submission writes including lazy store provisioning",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "driver"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_persistence_failures_total",
			Help: "Failures reported by the submission persistence layer",
		},
		[]string{"operation", "driver"},
	)

	RetentionSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_retention_sweeps_total",
			Help: "Retention sweeps attempted",
		},
		[]string{"driver", "result"},
	)

	RetentionPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_retention_purged_total",
			Help: "Rows hard-deleted by retention sweeps",
		},
		[]string{"driver", "table"},
	)
)

// RecordSave records one save attempt.
func RecordSave(kind, driver string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	SubmissionsSaved.WithLabelValues(kind, driver, result).Inc()
	SubmissionWriteDuration.WithLabelValues(kind, driver).Observe(duration.Seconds())
}

// RecordSweep records a sweep outcome and the rows purged per table.
func RecordSweep(driver string, newsletter, contact, embedRequests int64, err error) {
	if err != nil {
		RetentionSweeps.WithLabelValues(driver, "failure").Inc()
	} else {
		RetentionSweeps.WithLabelValues(driver, "success").Inc()
	}
	RetentionPurged.WithLabelValues(driver, "newsletter_submissions").Add(float64(newsletter))
	RetentionPurged.WithLabelValues(driver, "contact_submissions").Add(float64(contact))
	RetentionPurged.WithLabelValues(driver, "embed_request_submissions").Add(float64(embedRequests))
}
