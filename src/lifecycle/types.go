package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"tagexceptions/src/model"
	"tagexceptions/src/repository"
)

// Store is the durable store the manager reads and writes through.
type Store = repository.TaggingExceptionStore

// Notifier delivers lifecycle notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, resourceID string, kind model.EventKind) error
}

// Remediator is invoked once for every unwaived compliance violation.
type Remediator interface {
	Remediate(ctx context.Context, resourceID string, details json.RawMessage) error
}

// CreateInput describes a new exception. A nil TTL means the configured default.
type CreateInput struct {
	ResourceID  string
	Reason      string
	TTL         *time.Duration
	RequestedBy string
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Expired              int  `json:"expired"`
	NotificationFailures int  `json:"notification_failures,omitempty"`
	PartialFailure       bool `json:"partial_failure"`
}

// ViolationResult is the outcome of correlating a violation with the
// resource's active exception.
type ViolationResult struct {
	Outcome     model.ViolationOutcome `json:"outcome"`
	ExceptionID *uint                  `json:"exception_id,omitempty"`
	Remediated  bool                   `json:"remediated"`
}

// Waived reports whether the violation was suppressed.
func (r ViolationResult) Waived() bool { return r.Outcome == model.ViolationWaived }
