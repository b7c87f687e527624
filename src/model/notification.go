package model

import "time"

// EventKind identifies a lifecycle notification.
type EventKind string

const (
	EventExceptionExpired    EventKind = "exception_expired"
	EventExceptionSuperseded EventKind = "exception_superseded"
	EventExceptionRevoked    EventKind = "exception_revoked"
)

// Notification is the payload delivered to the notification webhook.
type Notification struct {
	EventID    string    `json:"event_id"`
	ResourceID string    `json:"resource_id"`
	EventKind  EventKind `json:"event_kind"`
	OccurredAt time.Time `json:"occurred_at"`
}
