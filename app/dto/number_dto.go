package dto

// GenerateNumberRequest represents the request to allocate the next document number
type GenerateNumberRequest struct {
	DocumentTypeCode string `json:"document_type_code" validate:"required,min=1,max=10,alphanum"` // Document type code, case insensitive
	Year             *int   `json:"year,omitempty" validate:"omitempty,gte=2020,lte=2100"`       // Defaults to the current year
}

// GenerateNumberResponse represents an allocated document number
type GenerateNumberResponse struct {
	Number           int64  `json:"number"`             // Sequential number within the scope
	DocumentTypeCode string `json:"document_type_code"` // Normalized type code
	DocumentTypeName string `json:"document_type_name"` // Display name of the type
	Year             int    `json:"year"`               // Scope year
	Formatted        string `json:"formatted"`          // e.g. "OF 0001/2025"
}

// CorrectNumberRequest represents an administrative overwrite of a scope's counter
type CorrectNumberRequest struct {
	DocumentTypeCode string `json:"document_type_code" validate:"required,min=1,max=10,alphanum"`
	Year             int    `json:"year" validate:"required,gte=2020,lte=2100"`
	NewNumber        *int64 `json:"new_number" validate:"required,gte=0"` // Value the counter is set to
	Notes            string `json:"notes" validate:"required,min=10,max=500"`
}

// CorrectNumberResponse represents the outcome of a correction
type CorrectNumberResponse struct {
	PreviousNumber   int64  `json:"previous_number"`
	NewNumber        int64  `json:"new_number"`
	DocumentTypeCode string `json:"document_type_code"`
	Year             int    `json:"year"`
	Formatted        string `json:"formatted"` // Formatted value of the new counter
	Notes            string `json:"notes"`
}

// SequenceCounterDTO represents the state of one scope's counter
type SequenceCounterDTO struct {
	ScopeKey         string `json:"scope_key"`
	DocumentTypeCode string `json:"document_type_code"`
	Year             int    `json:"year"`
	CurrentNumber    int64  `json:"current_number"`
	LastFormatted    string `json:"last_formatted"`
	UpdatedAt        string `json:"updated_at"`
}

// ListSequencesResponse lists every counter ordered by scope
type ListSequencesResponse struct {
	Sequences []SequenceCounterDTO `json:"sequences"`
}

// DocumentTypeDTO represents a document type in API responses
type DocumentTypeDTO struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// ListDocumentTypesResponse lists active document types
type ListDocumentTypesResponse struct {
	DocumentTypes []DocumentTypeDTO `json:"document_types"`
}

// SetDocumentTypeActiveRequest switches a document type on or off
type SetDocumentTypeActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}
