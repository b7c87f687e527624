package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tagexceptions/src/model"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ExceptionCreated(false)
	r.ExceptionCreated(true)
	r.ExceptionCreated(true)
	r.Transition(model.ExceptionStatusExpired)
	r.Violation(model.ViolationWaived)
	r.NotificationFailed()
	r.StoreError("sweep")
	r.ObserveSweep(20 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(r.created.WithLabelValues("true")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.created.WithLabelValues("false")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.violations.WithLabelValues("waived")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.notificationFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(r.storeErrors.WithLabelValues("sweep")))
	require.Equal(t, 1, testutil.CollectAndCount(r.sweepDuration))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.ExceptionCreated(true)
		r.Transition(model.ExceptionStatusRevoked)
		r.Violation(model.ViolationUnwaived)
		r.NotificationFailed()
		r.StoreError("create")
		r.ObserveSweep(time.Second)
	})
}
