package dto

// ListAuditLogsRequest represents the request to browse the audit trail
type ListAuditLogsRequest struct {
	Action     *string `json:"action,omitempty" validate:"omitempty,max=64"`
	ActorID    *string `json:"actor_id,omitempty" validate:"omitempty,max=64"`
	TargetType *string `json:"target_type,omitempty" validate:"omitempty,max=64"`
	TargetID   *string `json:"target_id,omitempty" validate:"omitempty,max=64"`
	Page       int     `json:"page"`      // 1-based, values below 1 mean 1
	PageSize   int     `json:"page_size"` // Defaults to 50, capped at 100
}

// AuditLogDTO represents one audit event
type AuditLogDTO struct {
	ID          uint    `json:"id"`
	Action      string  `json:"action"`
	ActorID     *string `json:"actor_id,omitempty"`
	ActorName   *string `json:"actor_name,omitempty"`
	TargetType  string  `json:"target_type"`
	TargetID    string  `json:"target_id"`
	Description *string `json:"description,omitempty"`
	IPAddress   *string `json:"ip_address,omitempty"`
	RequestID   *string `json:"request_id,omitempty"`
	Metadata    *string `json:"metadata,omitempty"`
	Success     bool    `json:"success"`
	CreatedAt   string  `json:"created_at"`
}

// ListAuditLogsResponse represents one page of audit events, newest first
type ListAuditLogsResponse struct {
	Items      []AuditLogDTO `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}
