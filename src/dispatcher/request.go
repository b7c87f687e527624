package dispatcher

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"tagexceptions/src/apperr"
)

// Action names the operation an invocation asks for.
type Action string

const (
	ActionCreateException Action = "create_exception"
	ActionCleanupExpired  Action = "cleanup_expired"
	ActionHandleViolation Action = "handle_compliance_violation"
	ActionRevokeException Action = "revoke_exception"
)

const opDecode = "decode_request"

// Request is a validated invocation. It is closed over the variants below;
// Dispatch handles each of them.
type Request interface {
	Action() Action
	isRequest()
}

type CreateException struct {
	ResourceARN string
	Reason      string
	RequestedBy string
	TTL         *time.Duration
}

type CleanupExpired struct{}

type HandleViolation struct {
	ResourceARN      string
	ViolationDetails json.RawMessage
}

type RevokeException struct {
	ResourceARN string
	Reason      string
}

func (CreateException) Action() Action { return ActionCreateException }
func (CleanupExpired) Action() Action  { return ActionCleanupExpired }
func (HandleViolation) Action() Action { return ActionHandleViolation }
func (RevokeException) Action() Action { return ActionRevokeException }

func (CreateException) isRequest() {}
func (CleanupExpired) isRequest()  {}
func (HandleViolation) isRequest() {}
func (RevokeException) isRequest() {}

// Event is the wire shape of an invocation.
type Event struct {
	Action           string          `json:"action"`
	ResourceARN      string          `json:"resource_arn,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	TTL              string          `json:"ttl,omitempty"` // Go duration, e.g. "72h"
	RequestedBy      string          `json:"requested_by,omitempty"`
	ViolationDetails json.RawMessage `json:"violation_details,omitempty"`
}

// Decode parses and validates a raw invocation event.
func Decode(raw []byte) (Request, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, apperr.Validation(opDecode, "request body is not valid JSON")
	}
	return event.Request()
}

// Request validates the event and converts it to its request variant.
func (e Event) Request() (Request, error) {
	resourceARN := strings.TrimSpace(e.ResourceARN)

	switch Action(strings.TrimSpace(e.Action)) {
	case ActionCreateException:
		if resourceARN == "" {
			return nil, apperr.Validation(opDecode, "resource_arn is required")
		}
		if strings.TrimSpace(e.Reason) == "" {
			return nil, apperr.Validation(opDecode, "reason is required")
		}
		req := CreateException{
			ResourceARN: resourceARN,
			Reason:      strings.TrimSpace(e.Reason),
			RequestedBy: strings.TrimSpace(e.RequestedBy),
		}
		if ttl := strings.TrimSpace(e.TTL); ttl != "" {
			d, err := time.ParseDuration(ttl)
			if err != nil {
				return nil, apperr.Validation(opDecode, "ttl is not a valid duration")
			}
			req.TTL = &d
		}
		return req, nil

	case ActionCleanupExpired:
		return CleanupExpired{}, nil

	case ActionHandleViolation:
		if resourceARN == "" {
			return nil, apperr.Validation(opDecode, "resource_arn is required")
		}
		details := bytes.TrimSpace(e.ViolationDetails)
		if len(details) == 0 || bytes.Equal(details, []byte("null")) {
			return nil, apperr.Validation(opDecode, "violation_details is required")
		}
		if details[0] != '{' {
			return nil, apperr.Validation(opDecode, "violation_details must be an object")
		}
		return HandleViolation{ResourceARN: resourceARN, ViolationDetails: details}, nil

	case ActionRevokeException:
		if resourceARN == "" {
			return nil, apperr.Validation(opDecode, "resource_arn is required")
		}
		if strings.TrimSpace(e.Reason) == "" {
			return nil, apperr.Validation(opDecode, "reason is required")
		}
		return RevokeException{ResourceARN: resourceARN, Reason: strings.TrimSpace(e.Reason)}, nil

	case "":
		return nil, apperr.Validation(opDecode, "action is required")

	default:
		return nil, apperr.Validation(opDecode, "Unknown action")
	}
}
