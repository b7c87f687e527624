package model

import "time"

// SystemError is an unanticipated failure persisted for auditing and
// debugging after it has been reported to the caller as a 500.
type SystemError struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "exception_manager"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "dispatcher"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "create_exception"

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"` // warn | error | fatal

	// Extra context stored as JSON text (optional)
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (SystemError) TableName() string { return "system_errors" }
