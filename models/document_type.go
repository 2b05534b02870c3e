package models

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var documentTypeCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// DocumentType is a kind of numbered document (e.g. "OF" for official letters)
type DocumentType struct {
	Code        string    `gorm:"primaryKey;size:10" json:"code"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	IsActive    *bool     `gorm:"not null;default:true;index:idx_document_types_is_active" json:"is_active"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentType) TableName() string { return "document_types" }

// DocumentTypeFilter represents filter criteria for document type queries
type DocumentTypeFilter struct {
	Code     *string
	IsActive *bool
}

// Active reports whether new numbers may be allocated for the type
func (d *DocumentType) Active() bool {
	return d.IsActive != nil && *d.IsActive
}

// Validate checks the code format and name
func (d *DocumentType) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Code, validation.Required, validation.Length(1, 10), validation.Match(documentTypeCodePattern)),
		validation.Field(&d.Name, validation.Required, validation.Length(1, 100)),
	)
}

// IsValidDocumentTypeCode reports whether code has the stored form (upper case, alphanumeric, at most 10)
func IsValidDocumentTypeCode(code string) bool {
	return len(code) >= 1 && len(code) <= 10 && documentTypeCodePattern.MatchString(code)
}
