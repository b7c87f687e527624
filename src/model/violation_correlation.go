package model

import "time"

// ViolationOutcome is the result of checking a compliance violation
// against the resource's exceptions.
type ViolationOutcome string

const (
	// ViolationWaived means an active exception covers the resource.
	ViolationWaived ViolationOutcome = "waived"
	// ViolationUnwaived means remediation should proceed.
	ViolationUnwaived ViolationOutcome = "unwaived"
)

// ViolationCorrelation records how a compliance violation was resolved.
type ViolationCorrelation struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ResourceID  string           `gorm:"size:2048;not null;index" json:"resource_id"`
	ExceptionID *uint            `gorm:"index" json:"exception_id,omitempty"`
	Outcome     ViolationOutcome `gorm:"size:20;not null;index" json:"outcome"`
	Details     string           `gorm:"type:text" json:"details"` // raw violation JSON

	// RemediationRequested is set when the violation was handed to remediation.
	RemediationRequested bool `gorm:"not null;default:false" json:"remediation_requested"`

	CreatedAt time.Time `json:"created_at"`
}

func (ViolationCorrelation) TableName() string { return "violation_correlations" }
