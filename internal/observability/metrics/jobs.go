package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonLocked           = "locked"
	JobReasonConflict         = "conflict"
	JobReasonUndefinedState   = "undefined_state"
	JobReasonUnknown          = "unknown"
)

// JobMetrics captures scheduler job health.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

func NewJobMetrics(registerer prometheus.Registerer) (*JobMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allotment_scheduler_job_runs_total",
		Help: "Scheduler job runs by name.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allotment_scheduler_job_duration_seconds",
		Help:    "Scheduler job latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allotment_scheduler_job_errors_total",
		Help: "Scheduler job errors by low-cardinality reason.",
	}, []string{"job", "reason"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allotment_scheduler_job_skipped_total",
		Help: "Scheduler runs skipped because another replica holds the lock.",
	}, []string{"job"})

	var err error
	if runs, err = registerCounterVec(registerer, runs); err != nil {
		return nil, err
	}
	if duration, err = registerHistogramVec(registerer, duration); err != nil {
		return nil, err
	}
	if jobErrors, err = registerCounterVec(registerer, jobErrors); err != nil {
		return nil, err
	}
	if skipped, err = registerCounterVec(registerer, skipped); err != nil {
		return nil, err
	}

	return &JobMetrics{runs: runs, duration: duration, errors: jobErrors, skipped: skipped}, nil
}

func (m *JobMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveDuration(job string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *JobMetrics) IncSkipped(job string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job).Inc()
}

func (m *JobMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobError(err)).Inc()
}

// ClassifyJobError maps err to a bounded reason label.
func ClassifyJobError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case apperr.Is(err, apperr.ErrConflict):
		return JobReasonConflict
	case apperr.Is(err, apperr.ErrUndefinedState):
		return JobReasonUndefinedState
	default:
		return JobReasonUnknown
	}
}
