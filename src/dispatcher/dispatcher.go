// Package dispatcher turns invocation events into lifecycle operations and
// renders their outcome in the {statusCode, body} response contract.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tagexceptions/src/apperr"
	"tagexceptions/src/lifecycle"
	"tagexceptions/src/model"
)

// Service is the lifecycle surface the dispatcher drives.
type Service interface {
	Create(ctx context.Context, in lifecycle.CreateInput) (*model.TaggingException, error)
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
	HandleViolation(ctx context.Context, resourceID string, details json.RawMessage) (lifecycle.ViolationResult, error)
	Revoke(ctx context.Context, resourceID, reason string) (*model.TaggingException, error)
}

type failureRecorder interface {
	Create(ctx context.Context, rec *model.SystemError) error
}

// Response is the invocation result.
type Response struct {
	StatusCode int  `json:"statusCode"`
	Body       Body `json:"body"`
}

type Body struct {
	Message   string                     `json:"message,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Retryable bool                       `json:"retryable,omitempty"`
	Exception *model.TaggingException    `json:"exception,omitempty"`
	Sweep     *lifecycle.SweepResult     `json:"sweep,omitempty"`
	Violation *lifecycle.ViolationResult `json:"violation,omitempty"`
}

const failureRecordTimeout = 2 * time.Second

type Dispatcher struct {
	svc      Service
	failures failureRecorder
	log      *logrus.Entry
}

// New creates a dispatcher. failures may be nil.
func New(svc Service, failures failureRecorder) *Dispatcher {
	return &Dispatcher{
		svc:      svc,
		failures: failures,
		log:      logrus.WithField("component", "dispatcher"),
	}
}

// Handle decodes a raw event and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) Response {
	req, err := Decode(raw)
	if err != nil {
		d.log.WithError(err).Warn("Rejected invocation")
		return d.errorResponse(ctx, "", err)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch runs req against the service. Panics are reported as 500s.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	if req == nil {
		return d.errorResponse(ctx, "", apperr.Internal("dispatch", errors.New("nil request")))
	}

	defer func() {
		if r := recover(); r != nil {
			resp = d.errorResponse(ctx, req.Action(), apperr.Internal(string(req.Action()), fmt.Errorf("panic: %v", r)))
		}
	}()

	d.log.WithField("action", req.Action()).Debug("Dispatching request")

	switch r := req.(type) {
	case CreateException:
		rec, err := d.svc.Create(ctx, lifecycle.CreateInput{
			ResourceID:  r.ResourceARN,
			Reason:      r.Reason,
			TTL:         r.TTL,
			RequestedBy: r.RequestedBy,
		})
		if err != nil {
			return d.errorResponse(ctx, r.Action(), err)
		}
		return ok(Body{Message: withNotificationStatus("Exception created", rec), Exception: rec})

	case CleanupExpired:
		result, err := d.svc.Sweep(ctx)
		if err != nil {
			return d.errorResponse(ctx, r.Action(), err)
		}
		msg := "Cleanup completed"
		if result.PartialFailure {
			msg = "Cleanup completed with notification failures"
		}
		return ok(Body{Message: msg, Sweep: &result})

	case HandleViolation:
		result, err := d.svc.HandleViolation(ctx, r.ResourceARN, r.ViolationDetails)
		if err != nil {
			resp := d.errorResponse(ctx, r.Action(), err)
			if result.Outcome != "" {
				resp.Body.Violation = &result
			}
			return resp
		}
		msg := "Violation handled: remediation triggered"
		if result.Waived() {
			msg = "Violation handled: waived by active exception"
		}
		return ok(Body{Message: msg, Violation: &result})

	case RevokeException:
		rec, err := d.svc.Revoke(ctx, r.ResourceARN, r.Reason)
		if err != nil {
			return d.errorResponse(ctx, r.Action(), err)
		}
		return ok(Body{Message: withNotificationStatus("Exception revoked", rec), Exception: rec})

	default:
		return d.errorResponse(ctx, req.Action(), apperr.Internal("dispatch", fmt.Errorf("unsupported request %T", req)))
	}
}

func withNotificationStatus(msg string, rec *model.TaggingException) string {
	if rec != nil && rec.NotificationFailed {
		return msg + " with notification failures"
	}
	return msg
}

func ok(body Body) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

func (d *Dispatcher) errorResponse(ctx context.Context, action Action, err error) Response {
	kind := apperr.KindOf(err)
	status := kind.StatusCode()

	log := d.log.WithFields(logrus.Fields{"action": action, "kind": kind.String()}).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Error processing request")
		d.recordFailure(ctx, action, kind, err)
	} else {
		log.Info("Request rejected")
	}

	return Response{
		StatusCode: status,
		Body: Body{
			Error:     publicMessage(err),
			Retryable: kind.Retryable(),
		},
	}
}

// publicMessage hides driver and transport details behind the error kind.
func publicMessage(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		return "internal error"
	}
	return e.Message
}

func (d *Dispatcher) recordFailure(ctx context.Context, action Action, kind apperr.Kind, err error) {
	if d.failures == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	extra, _ := json.Marshal(map[string]string{"kind": kind.String()})
	rec := &model.SystemError{
		Service: "exception_manager",
		Module:  "dispatcher",
		Method:  string(action),
		Message: err.Error(),
		Level:   logrus.ErrorLevel.String(),
		Context: string(extra),
	}
	if err := d.failures.Create(ctx, rec); err != nil {
		d.log.WithError(err).Warn("Failed to persist system error")
	}
}
