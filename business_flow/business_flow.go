// Package businessflow contains the use cases of the numbering service
package businessflow

import (
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
)

// Actor roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Actor is the authenticated caller, supplied by the upstream gateway
type Actor struct {
	ID   string
	Name string
	Role string
}

// IsAdmin reports whether the actor may correct counters
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(a.Role, RoleAdmin)
}

// ClientMetadata holds client information recorded with audit events
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// NormalizeDocumentTypeCode trims and upper-cases a code as typed by a user
func NormalizeDocumentTypeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ToNumberLogDTO converts a history entry for API responses
func ToNumberLogDTO(entry *models.NumberLog) dto.NumberLogDTO {
	return dto.NumberLogDTO{
		ID:               entry.ID,
		DocumentTypeCode: entry.DocumentTypeCode,
		Year:             entry.Year,
		Number:           entry.Number,
		Formatted:        models.FormatDocumentNumber(entry.DocumentTypeCode, entry.Number, entry.Year),
		Action:           entry.Action,
		ActorID:          entry.ActorID,
		ActorName:        entry.ActorName,
		PreviousNumber:   entry.PreviousNumber,
		Notes:            entry.Notes,
		CreatedAt:        utils.ToLocal(entry.CreatedAt).Format(time.RFC3339),
	}
}

// ToSequenceCounterDTO converts a counter for API responses
func ToSequenceCounterDTO(counter *models.SequenceCounter) dto.SequenceCounterDTO {
	return dto.SequenceCounterDTO{
		ScopeKey:         counter.ScopeKey,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		CurrentNumber:    counter.CurrentNumber,
		LastFormatted:    counter.Formatted(),
		UpdatedAt:        utils.ToLocal(counter.UpdatedAt).Format(time.RFC3339),
	}
}

// ToDocumentTypeDTO converts a document type for API responses
func ToDocumentTypeDTO(documentType *models.DocumentType) dto.DocumentTypeDTO {
	return dto.DocumentTypeDTO{
		Code:        documentType.Code,
		Name:        documentType.Name,
		Description: documentType.Description,
		IsActive:    documentType.Active(),
	}
}
