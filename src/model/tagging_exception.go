package model

import "time"

// ExceptionStatus is the lifecycle state of a tagging exception.
// Records only move forward: active -> expired or active -> revoked.
type ExceptionStatus string

const (
	ExceptionStatusActive  ExceptionStatus = "active"
	ExceptionStatusExpired ExceptionStatus = "expired"
	ExceptionStatusRevoked ExceptionStatus = "revoked"
)

// RevokeReasonSuperseded marks a record revoked because a newer exception
// was created for the same resource.
const RevokeReasonSuperseded = "superseded"

// TaggingException is a recorded waiver permitting a resource to violate a
// tagging policy until ExpiresAt.
//
// A resource may own many historical records but at most one active one;
// the database backs that with a partial unique index on resource_id.
type TaggingException struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ResourceID  string          `gorm:"size:2048;not null;index:idx_tagging_exceptions_resource" json:"resource_id"`
	Reason      string          `gorm:"type:text;not null" json:"reason"`
	RequestedBy string          `gorm:"size:255" json:"requested_by,omitempty"`
	Status      ExceptionStatus `gorm:"size:20;not null;index:idx_tagging_exceptions_status_expiry,priority:1" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index:idx_tagging_exceptions_status_expiry,priority:2" json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `gorm:"type:text" json:"revoke_reason,omitempty"`

	// SupersedesID points at the record this one replaced, if any.
	SupersedesID *uint `json:"supersedes_id,omitempty"`

	// Version is bumped on every conditional write.
	Version int `gorm:"not null;default:1" json:"version"`

	// NotificationFailed reports that the notification for the operation
	// that returned this record could not be delivered. Not persisted.
	NotificationFailed bool `gorm:"-" json:"notification_failed,omitempty"`
}

func (TaggingException) TableName() string { return "tagging_exceptions" }

// IsActiveAt reports whether the exception still waives violations at t.
func (e *TaggingException) IsActiveAt(t time.Time) bool {
	return e.Status == ExceptionStatusActive && t.Before(e.ExpiresAt)
}
