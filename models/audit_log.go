// Package models contains the persisted entities of the numbering service
package models

import (
	"time"
)

// AuditLog is one business event written by the audit sink
type AuditLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Action      string    `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	ActorID     *string   `gorm:"size:64;index:idx_audit_actor_id" json:"actor_id,omitempty"`
	ActorName   *string   `gorm:"size:255" json:"actor_name,omitempty"`
	TargetType  string    `gorm:"size:64;not null" json:"target_type"`
	TargetID    string    `gorm:"size:64;not null;index:idx_audit_target_id" json:"target_id"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	IPAddress   *string   `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent   *string   `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID   *string   `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata    *string   `gorm:"type:text" json:"metadata,omitempty"`
	Success     *bool     `gorm:"default:true" json:"success"`
	CreatedAt   time.Time `gorm:"not null;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionNumberGenerated = "number_generated"
	AuditActionNumberCorrected = "number_corrected"
)

// Audit target types
const (
	AuditTargetSequence = "sequence"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	Action        *string
	ActorID       *string
	TargetType    *string
	TargetID      *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsCorrection reports whether the event records a manual counter overwrite
func (a *AuditLog) IsCorrection() bool {
	return a.Action == AuditActionNumberCorrected
}
