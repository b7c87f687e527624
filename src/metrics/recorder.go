package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tagexceptions/src/model"
)

// Recorder tracks exception lifecycle metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	created              *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	violations           *prometheus.CounterVec
	notificationFailures prometheus.Counter
	storeErrors          *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagging_exceptions_created_total",
				Help: "Tagging exceptions created, by whether an active one was superseded",
			},
			[]string{"superseded"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagging_exceptions_transitions_total",
				Help: "Tagging exception state transitions out of active",
			},
			[]string{"to"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagging_exception_violations_total",
				Help: "Compliance violations handled, by outcome",
			},
			[]string{"outcome"},
		),
		notificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tagging_exception_notification_failures_total",
				Help: "Lifecycle notifications that could not be delivered",
			},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagging_exception_store_errors_total",
				Help: "Store failures surfaced to callers, by operation",
			},
			[]string{"op"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tagging_exception_sweep_duration_seconds",
				Help:    "Duration of expiry sweeps",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
		),
	}

	reg.MustRegister(
		r.created,
		r.transitions,
		r.violations,
		r.notificationFailures,
		r.storeErrors,
		r.sweepDuration,
	)

	return r
}

func (r *Recorder) ExceptionCreated(superseded bool) {
	if r == nil {
		return
	}
	r.created.WithLabelValues(strconv.FormatBool(superseded)).Inc()
}

func (r *Recorder) Transition(to model.ExceptionStatus) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(string(to)).Inc()
}

func (r *Recorder) Violation(outcome model.ViolationOutcome) {
	if r == nil {
		return
	}
	r.violations.WithLabelValues(string(outcome)).Inc()
}

func (r *Recorder) NotificationFailed() {
	if r == nil {
		return
	}
	r.notificationFailures.Inc()
}

func (r *Recorder) StoreError(op string) {
	if r == nil {
		return
	}
	r.storeErrors.WithLabelValues(op).Inc()
}

func (r *Recorder) ObserveSweep(d time.Duration) {
	if r == nil {
		return
	}
	r.sweepDuration.Observe(d.Seconds())
}
