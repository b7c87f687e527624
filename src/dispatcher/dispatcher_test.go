package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagexceptions/src/apperr"
	"tagexceptions/src/lifecycle"
	"tagexceptions/src/model"
)

type stubService struct {
	createIn  lifecycle.CreateInput
	created   *model.TaggingException
	sweep     lifecycle.SweepResult
	violation lifecycle.ViolationResult
	revoked   *model.TaggingException
	err       error
	panicMsg  string
	calls     int
}

func (s *stubService) Create(_ context.Context, in lifecycle.CreateInput) (*model.TaggingException, error) {
	s.calls++
	s.createIn = in
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.created, s.err
}

func (s *stubService) Sweep(context.Context) (lifecycle.SweepResult, error) {
	s.calls++
	return s.sweep, s.err
}

func (s *stubService) HandleViolation(context.Context, string, json.RawMessage) (lifecycle.ViolationResult, error) {
	s.calls++
	return s.violation, s.err
}

func (s *stubService) Revoke(context.Context, string, string) (*model.TaggingException, error) {
	s.calls++
	return s.revoked, s.err
}

type stubFailures struct {
	recorded []*model.SystemError
}

func (f *stubFailures) Create(_ context.Context, rec *model.SystemError) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func TestDecode(t *testing.T) {
	t.Run("create with ttl", func(t *testing.T) {
		req, err := Decode([]byte(`{"action":"create_exception","resource_arn":"arn:aws:ec2:eu-west-2:1:instance/i-1","reason":"migration","ttl":"72h"}`))
		require.NoError(t, err)
		create, ok := req.(CreateException)
		require.True(t, ok)
		assert.Equal(t, "arn:aws:ec2:eu-west-2:1:instance/i-1", create.ResourceARN)
		require.NotNil(t, create.TTL)
		assert.Equal(t, 72*time.Hour, *create.TTL)
	})

	t.Run("cleanup", func(t *testing.T) {
		req, err := Decode([]byte(`{"action":"cleanup_expired"}`))
		require.NoError(t, err)
		assert.Equal(t, ActionCleanupExpired, req.Action())
	})

	t.Run("violation keeps raw details", func(t *testing.T) {
		req, err := Decode([]byte(`{"action":"handle_compliance_violation","resource_arn":"r1","violation_details":{"rule":"required-tags"}}`))
		require.NoError(t, err)
		v := req.(HandleViolation)
		assert.JSONEq(t, `{"rule":"required-tags"}`, string(v.ViolationDetails))
	})

	invalid := map[string]string{
		"not json":               `{"action":`,
		"missing action":         `{}`,
		"unknown action":         `{"action":"delete_everything"}`,
		"create without reason":  `{"action":"create_exception","resource_arn":"r1"}`,
		"create without arn":     `{"action":"create_exception","reason":"x"}`,
		"create with bad ttl":    `{"action":"create_exception","resource_arn":"r1","reason":"x","ttl":"a week"}`,
		"violation w/o details":  `{"action":"handle_compliance_violation","resource_arn":"r1"}`,
		"violation null details": `{"action":"handle_compliance_violation","resource_arn":"r1","violation_details":null}`,
		"violation list details": `{"action":"handle_compliance_violation","resource_arn":"r1","violation_details":[1]}`,
		"revoke without reason":  `{"action":"revoke_exception","resource_arn":"r1"}`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestHandleUnknownActionIs400(t *testing.T) {
	svc := &stubService{}
	resp := New(svc, nil).Handle(context.Background(), []byte(`{"action":"nope"}`))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unknown action", resp.Body.Error)
	assert.Zero(t, svc.calls)
}

func TestDispatchCreate(t *testing.T) {
	svc := &stubService{created: &model.TaggingException{ID: 9, ResourceID: "r1", Status: model.ExceptionStatusActive}}
	d := New(svc, nil)

	resp := d.Handle(context.Background(), []byte(`{"action":"create_exception","resource_arn":"r1","reason":"approved","requested_by":"ops"}`))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Exception created", resp.Body.Message)
	require.NotNil(t, resp.Body.Exception)
	assert.EqualValues(t, 9, resp.Body.Exception.ID)
	assert.Equal(t, "ops", svc.createIn.RequestedBy)
	assert.Nil(t, svc.createIn.TTL)
}

func TestDispatchCleanupReportsPartialFailure(t *testing.T) {
	svc := &stubService{sweep: lifecycle.SweepResult{Expired: 2, NotificationFailures: 1, PartialFailure: true}}

	resp := New(svc, nil).Dispatch(context.Background(), CleanupExpired{})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cleanup completed with notification failures", resp.Body.Message)
	require.NotNil(t, resp.Body.Sweep)
	assert.Equal(t, 2, resp.Body.Sweep.Expired)
}

func TestDispatchViolationOutcomes(t *testing.T) {
	id := uint(3)
	svc := &stubService{violation: lifecycle.ViolationResult{Outcome: model.ViolationWaived, ExceptionID: &id}}
	d := New(svc, nil)

	resp := d.Dispatch(context.Background(), HandleViolation{ResourceARN: "r1", ViolationDetails: json.RawMessage(`{}`)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Violation handled: waived by active exception", resp.Body.Message)

	svc.violation = lifecycle.ViolationResult{Outcome: model.ViolationUnwaived}
	svc.err = apperr.Remediation("handle_compliance_violation", errors.New("502"))
	resp = d.Dispatch(context.Background(), HandleViolation{ResourceARN: "r1", ViolationDetails: json.RawMessage(`{}`)})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.True(t, resp.Body.Retryable)
	require.NotNil(t, resp.Body.Violation)
	assert.Equal(t, model.ViolationUnwaived, resp.Body.Violation.Outcome)
}

func TestDispatchErrorKinds(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		message   string
		retryable bool
		persisted bool
	}{
		{"validation", apperr.Validation("create_exception", "reason is required"), http.StatusBadRequest, "reason is required", false, false},
		{"not found", apperr.NotFound("revoke_exception", "no active exception for resource"), http.StatusNotFound, "no active exception for resource", false, false},
		{"store", apperr.StoreUnavailable("revoke_exception", errors.New("dial tcp 10.0.0.1:5432: i/o timeout")), http.StatusInternalServerError, "store unavailable", true, true},
		{"conflict", apperr.Conflict("revoke_exception", errors.New("version")), http.StatusInternalServerError, "concurrent update", true, true},
		{"unclassified", errors.New("nil pointer somewhere"), http.StatusInternalServerError, "internal error", false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			failures := &stubFailures{}
			d := New(&stubService{err: tc.err}, failures)

			resp := d.Dispatch(context.Background(), RevokeException{ResourceARN: "r1", Reason: "done"})

			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.message, resp.Body.Error)
			assert.Equal(t, tc.retryable, resp.Body.Retryable)
			assert.Equal(t, tc.persisted, len(failures.recorded) == 1)
			assert.NotContains(t, resp.Body.Error, "10.0.0.1")
		})
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	failures := &stubFailures{}
	d := New(&stubService{panicMsg: "boom"}, failures)

	resp := d.Dispatch(context.Background(), CreateException{ResourceARN: "r1", Reason: "x"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", resp.Body.Error)
	require.Len(t, failures.recorded, 1)
	assert.Equal(t, "create_exception", failures.recorded[0].Method)
	assert.Contains(t, failures.recorded[0].Message, "boom")
}

func TestDispatchCreateReportsNotificationFailure(t *testing.T) {
	svc := &stubService{created: &model.TaggingException{ID: 10, ResourceID: "r1", NotificationFailed: true}}

	resp := New(svc, nil).Dispatch(context.Background(), CreateException{ResourceARN: "r1", Reason: "extended"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Exception created with notification failures", resp.Body.Message)
	require.NotNil(t, resp.Body.Exception)
	assert.True(t, resp.Body.Exception.NotificationFailed)
}

func TestDispatchNilRequest(t *testing.T) {
	failures := &stubFailures{}
	d := New(&stubService{}, failures)

	var resp Response
	require.NotPanics(t, func() { resp = d.Dispatch(context.Background(), nil) })

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", resp.Body.Error)
	assert.Len(t, failures.recorded, 1)
}
