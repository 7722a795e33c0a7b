// Package jobmetrics instruments asynq handlers of the console worker.
package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded on learnhub_job_runs_total.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	retried  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// NewMetrics registers the collectors on reg. A nil reg yields a process-wide instance
// on the default registerer, so repeated nil calls never double-register.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	sharedOnce.Do(func() { shared = register(prometheus.DefaultRegisterer) })
	return shared
}

// Run is one in-flight handler execution.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Start opens a run for job. Attempts after the first are counted as retries.
func (m *Metrics) Start(ctx context.Context, job string) *Run {
	if m == nil {
		return &Run{job: job}
	}
	if n, ok := asynq.GetRetryCount(ctx); ok && n > 0 {
		m.retried.WithLabelValues(job).Inc()
	}
	return &Run{metrics: m, job: job, started: time.Now()}
}

// Finish records the outcome of err and hands err back.
func (r *Run) Finish(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	r.metrics.runs.WithLabelValues(r.job, Outcome(err)).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.started).Seconds())
	return err
}

// Outcome classifies a handler result. SkipRetry means the task was discarded.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeDropped
	default:
		return OutcomeError
	}
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_job_runs_total",
			Help: "Worker handler executions by task type and outcome.",
		}, []string{"job", "outcome"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_job_retries_total",
			Help: "Handler executions that were a retry of an earlier failure.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnhub_job_duration_seconds",
			Help:    "Handler execution time.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30},
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.retried, m.duration)
	return m
}
