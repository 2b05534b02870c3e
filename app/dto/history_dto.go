package dto

// HistoryFilter holds the exact-match filters shared by listing, export and statistics
type HistoryFilter struct {
	DocumentTypeCode *string `json:"document_type_code,omitempty" validate:"omitempty,min=1,max=10,alphanum"`
	Year             *int    `json:"year,omitempty" validate:"omitempty,gte=2020,lte=2100"`
	ActorID          *string `json:"actor_id,omitempty" validate:"omitempty,max=64"`
	Action           *string `json:"action,omitempty"` // generated or corrected; other values are ignored
}

// ListHistoryRequest represents the request to browse the history log
type ListHistoryRequest struct {
	Filter   HistoryFilter `json:"filter"`
	Page     int           `json:"page"`      // 1-based, values below 1 mean 1
	PageSize int           `json:"page_size"` // Defaults to 50, capped at 100
}

// NumberLogDTO represents one history entry
type NumberLogDTO struct {
	ID               string  `json:"id"`
	DocumentTypeCode string  `json:"document_type_code"`
	Year             int     `json:"year"`
	Number           int64   `json:"number"`
	Formatted        string  `json:"formatted"`
	Action           string  `json:"action"`
	ActorID          string  `json:"actor_id"`
	ActorName        string  `json:"actor_name"`
	PreviousNumber   *int64  `json:"previous_number,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// ListHistoryResponse represents one page of history, newest first
type ListHistoryResponse struct {
	Items      []NumberLogDTO `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// ExportHistoryRequest represents the request to download the history
type ExportHistoryRequest struct {
	Filter HistoryFilter `json:"filter"`
	Format string        `json:"format" validate:"omitempty,oneof=csv xlsx"` // Defaults to csv
}

// HistoryStatisticsResponse summarises the history matching a filter
type HistoryStatisticsResponse struct {
	Total          int64            `json:"total"`
	Generated      int64            `json:"generated"`
	Corrected      int64            `json:"corrected"`
	ByDocumentType map[string]int64 `json:"by_document_type"`
	ByActor        map[string]int64 `json:"by_user"`
}
